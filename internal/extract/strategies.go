package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	titleSeparator = " - "
	siteSuffix     = " - BOOTH"

	mainContentMinRunes = 100
	pageBlockMinRunes   = 150

	blockSelector  = "p, pre, div, section, article"
	chromeSelector = "nav, header, footer"
	noiseSelector  = "script, style, noscript"
)

var (
	authorSelectors               = []string{".shop-name", ".u-text-ellipsis"}
	alternateDescriptionSelectors = []string{".item-description", ".with-indent", ".detail-description"}
	mainContentSelectors          = []string{".market-item-detail", ".item-description-container", "main"}
	purchaseSelector              = chromeSelector + ", .price, .cart-button, .js-cart-button, .add-cart, button, form"

	excessNewlines = regexp.MustCompile(`\n{3,}`)
)

// CollapseNewlines reduces every run of three or more newlines to two.
func CollapseNewlines(s string) string {
	return excessNewlines.ReplaceAllString(s, "\n\n")
}

func titleFromHead(doc *goquery.Document) (string, bool) {
	text := strings.TrimSpace(doc.Find("head title").First().Text())
	if text == "" {
		text = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if !strings.Contains(text, titleSeparator) {
		return "", false
	}
	text = strings.TrimSuffix(text, siteSuffix)
	// "<item> - <seller>": the seller is the last segment.
	if i := strings.LastIndex(text, titleSeparator); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	return text, text != ""
}

func titleFromHeading(doc *goquery.Document) (string, bool) {
	return nonEmpty(doc.Find("h1.item-header__title").First().Text())
}

func priceFromTag(doc *goquery.Document) (int, bool) {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, doc.Find(".price").First().Text())
	if digits == "" {
		return 0, false
	}
	price, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return price, true
}

// firstText returns a strategy yielding the first non-empty text among selectors.
func firstText(selectors ...string) Strategy[string] {
	return func(doc *goquery.Document) (string, bool) {
		for _, sel := range selectors {
			if v, ok := nonEmpty(doc.Find(sel).First().Text()); ok {
				return v, true
			}
		}
		return "", false
	}
}

func descriptionFromDetail(doc *goquery.Document) (string, bool) {
	var b strings.Builder
	container := doc.Find(".js-market-item-detail-description")
	summary := container.Find(".description").First()
	if summary.Length() == 0 {
		summary = container.Find(".autolink").First()
	}
	if text, ok := nonEmpty(summary.Text()); ok {
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	doc.Find("section.shop__text").Each(func(_ int, section *goquery.Selection) {
		if heading, ok := nonEmpty(section.Find("h2").First().Text()); ok {
			fmt.Fprintf(&b, "**%s**\n", heading)
		}
		if body, ok := nonEmpty(section.Find("p").First().Text()); ok {
			fmt.Fprintf(&b, "%s\n\n", body)
		}
	})
	return nonEmpty(b.String())
}

func descriptionFromMainContent(doc *goquery.Document) (string, bool) {
	for _, sel := range mainContentSelectors {
		area := doc.Find(sel).First()
		if area.Length() == 0 {
			continue
		}
		area = area.Clone()
		area.Find(noiseSelector).Remove()
		area.Find(purchaseSelector).Remove()

		var found string
		leafBlocks(area).EachWithBreak(func(_ int, block *goquery.Selection) bool {
			text := strings.TrimSpace(block.Text())
			if utf8.RuneCountInString(text) > mainContentMinRunes {
				found = text
				return false
			}
			return true
		})
		if found != "" {
			return found, true
		}
	}
	return "", false
}

func descriptionFromPage(doc *goquery.Document) (string, bool) {
	root := doc.Selection.Clone()
	root.Find(noiseSelector).Remove()

	var (
		best      string
		bestRunes int
	)
	leafBlocks(root).Each(func(_ int, block *goquery.Selection) {
		if block.ParentsFiltered(chromeSelector).Length() > 0 {
			return
		}
		text := strings.TrimSpace(block.Text())
		n := utf8.RuneCountInString(text)
		if n > pageBlockMinRunes && n > bestRunes {
			best, bestRunes = text, n
		}
	})
	return best, best != ""
}

func thumbnailFromGallery(doc *goquery.Document) (string, bool) {
	return imageSource(doc.Find(".item-view__image-link img").First())
}

func thumbnailFromCDN(doc *goquery.Document) (string, bool) {
	var found string
	doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
		src, ok := imageSource(img)
		if ok && (strings.Contains(src, "market") || strings.Contains(src, "pximg")) {
			found = src
			return false
		}
		return true
	})
	return found, found != ""
}

func imageSource(img *goquery.Selection) (string, bool) {
	if img.Length() == 0 {
		return "", false
	}
	for _, attr := range []string{"src", "data-original"} {
		if v, ok := img.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v, true
			}
		}
	}
	return "", false
}

// leafBlocks selects block elements under root that contain no other blocks.
func leafBlocks(root *goquery.Selection) *goquery.Selection {
	return root.Find(blockSelector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find(blockSelector).Length() == 0
	})
}

func nonEmpty(s string) (string, bool) {
	s = strings.TrimFunc(s, unicode.IsSpace)
	return s, s != ""
}
