package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const searchPage = `<html><head><title>検索結果 - BOOTH</title></head><body><ul>
<li class="item-card" data-product-id="101"><a class="item-card__title-anchor--multiline" href="/ja/items/101">霧の館</a></li>
<li class="item-card" data-product-id="102"><a class="item-card__title-anchor--multiline" href="/ja/items/102">星の庭</a></li>
</ul></body></html>`

func detailPage(title string) string {
	return fmt.Sprintf(`<html><head><title>%s - shopA - BOOTH</title></head><body>
<div class="price">¥ 1,000</div><a class="shop-name">shopA</a>
<div class="js-market-item-detail-description"><p class="autolink">4人用マーダーミステリー。GM不要。</p></div>
</body></html>`, title)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestScrapeCommand(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		switch {
		case strings.HasPrefix(r.URL.Path, "/ja/search/"):
			_, _ = w.Write([]byte(searchPage))
		case r.URL.Path == "/ja/items/101":
			_, _ = w.Write([]byte(detailPage("霧の館")))
		case r.URL.Path == "/ja/items/102":
			_, _ = w.Write([]byte(detailPage("星の庭")))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	outDir := filepath.Join(t.TempDir(), "data")
	cfgPath := writeConfig(t, fmt.Sprintf(`
logging:
  development: false
  level: error
scrape:
  base_url: %s
  min_wait_seconds: 0
  max_wait_seconds: 0
headless:
  enabled: false
storage:
  backend: local
`, srv.URL))

	out, err := run(t, "scrape", "--config", cfgPath, "--keyword", "マダミス", "--end-page", "1", "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "collected 2 items from 1 pages")

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(filepath.Join(outDir, "booth_data_マダミス.json"))
	require.NoError(t, err)
	var items []map[string]any
	require.NoError(t, json.Unmarshal(raw, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "101", items[0]["id"])
	assert.Equal(t, "霧の館", items[0]["title"])
	assert.Equal(t, "shopA", items[0]["author"])
	assert.EqualValues(t, 1000, items[0]["price"])
	assert.Nil(t, items[0]["likes"])
	assert.FileExists(t, filepath.Join(outDir, "booth_data_page_1-1.json"))
}

func TestScrapeRejectsBadRange(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "logging:\n  level: error\nstorage:\n  backend: memory\n")
	_, err := run(t, "scrape", "--config", cfgPath, "--start-page", "4", "--end-page", "2")
	require.ErrorContains(t, err, "scrape.end_page")
}

func TestFormatCommand(t *testing.T) {
	t.Parallel()

	reply := `{"url":"https://booth.pm/ja/items/101","id":"101","title":"霧の館","price":1000,"likes":null,` +
		`"author":"shopA","game_type":"マーダーミステリー","gm_required":"不要","min_players":4,"max_players":4,` +
		`"play_time":{"min":0,"avg":0},"thumbnail_url":null}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_, _ = w.Write([]byte(`{"models":[]}`))
		case "/api/generate":
			body, _ := json.Marshal(map[string]any{"response": "```json\n" + reply + "\n```", "done": true})
			_, _ = w.Write(body)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	inDir := t.TempDir()
	input := filepath.Join(inDir, "booth_data_マダミス.json")
	require.NoError(t, os.WriteFile(input, []byte(`[{"id":"101","title":"霧の館【4人用】"},{"id":"102"}]`), 0o600))
	outDir := filepath.Join(t.TempDir(), "formatted")
	cfgPath := writeConfig(t, fmt.Sprintf("logging:\n  level: error\nollama:\n  api_url: %s/api\n", srv.URL))

	out, err := run(t, "format", input, "--config", cfgPath, "--api", "ollama", "--delay", "0", "--output-dir", outDir)
	require.NoError(t, err)
	assert.Contains(t, out, "formatted 2 records")

	// #nosec G304 -- test reads from the controlled temp directory.
	raw, err := os.ReadFile(filepath.Join(outDir, "booth_data_マダミス.json"))
	require.NoError(t, err)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(raw, &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "マーダーミステリー", recs[0]["game_type"])
}

func TestFormatRequiresInput(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, "logging:\n  level: error\n")
	_, err := run(t, "format", "--config", cfgPath)
	require.Error(t, err)
}
