// Package formatter rewrites scraped listings into a normalized schema by
// prompting a text-generation provider with worked examples.
package formatter

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var (
	// ErrParse means no JSON object could be recovered from a response.
	ErrParse = errors.New("response is not valid JSON")
	// ErrShape means the JSON parsed but is not a usable formatted record.
	ErrShape = errors.New("response has the wrong shape")
)

// GameType classifies a listing.
type GameType string

// Game types, spelled the way the worked examples spell them.
const (
	GameTypeTRPG          GameType = "TRPG"
	GameTypeMurderMystery GameType = "マーダーミステリー"
	GameTypeOther         GameType = "その他"
)

var gameTypeAliases = map[string]GameType{
	"TRPG":           GameTypeTRPG,
	"マーダーミステリー":      GameTypeMurderMystery,
	"MURDER_MYSTERY": GameTypeMurderMystery,
	"その他":            GameTypeOther,
	"OTHER":          GameTypeOther,
}

// ParseGameType accepts the Japanese labels and the English enum names.
func ParseGameType(s string) (GameType, bool) {
	g, ok := gameTypeAliases[strings.TrimSpace(s)]
	return g, ok
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GameType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: game_type: %v", ErrShape, err)
	}
	parsed, ok := ParseGameType(s)
	if !ok {
		return fmt.Errorf("%w: unknown game_type %q", ErrShape, s)
	}
	*g = parsed
	return nil
}

// GMRequired says whether a game master is needed.
type GMRequired string

// GM requirement values.
const (
	GMRequiredYes    GMRequired = "必要"
	GMRequiredNo     GMRequired = "不要"
	GMRequiredEither GMRequired = "どちらでも可"
)

var gmRequiredAliases = map[string]GMRequired{
	"必要":           GMRequiredYes,
	"REQUIRED":     GMRequiredYes,
	"不要":           GMRequiredNo,
	"NOT_REQUIRED": GMRequiredNo,
	"どちらでも可":       GMRequiredEither,
	"EITHER":       GMRequiredEither,
}

// ParseGMRequired accepts the Japanese labels and the English enum names.
func ParseGMRequired(s string) (GMRequired, bool) {
	g, ok := gmRequiredAliases[strings.TrimSpace(s)]
	return g, ok
}

// UnmarshalJSON implements json.Unmarshaler.
func (g *GMRequired) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: gm_required: %v", ErrShape, err)
	}
	parsed, ok := ParseGMRequired(s)
	if !ok {
		return fmt.Errorf("%w: unknown gm_required %q", ErrShape, s)
	}
	*g = parsed
	return nil
}

// PlayTime is measured in minutes.
type PlayTime struct {
	Min int `json:"min"`
	Avg int `json:"avg"`
}

// FormattedRecord is the normalized listing written by the formatter.
type FormattedRecord struct {
	URL          string     `json:"url"`
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Price        *int       `json:"price"`
	Likes        *int       `json:"likes"`
	Author       string     `json:"author"`
	GameType     GameType   `json:"game_type"`
	GMRequired   GMRequired `json:"gm_required"`
	MinPlayers   int        `json:"min_players"`
	MaxPlayers   int        `json:"max_players"`
	PlayTime     PlayTime   `json:"play_time"`
	ThumbnailURL *string    `json:"thumbnail_url"`
}

// Validate checks the fields the provider is asked to derive.
func (r *FormattedRecord) Validate() error {
	if _, ok := ParseGameType(string(r.GameType)); !ok {
		return fmt.Errorf("%w: missing or invalid game_type", ErrShape)
	}
	if _, ok := ParseGMRequired(string(r.GMRequired)); !ok {
		return fmt.Errorf("%w: missing or invalid gm_required", ErrShape)
	}
	if r.MinPlayers < 0 || r.MaxPlayers < 0 {
		return fmt.Errorf("%w: negative player count", ErrShape)
	}
	if r.PlayTime.Min < 0 || r.PlayTime.Avg < 0 {
		return fmt.Errorf("%w: negative play time", ErrShape)
	}
	return nil
}

var bracketSegment = regexp.MustCompile(`【[^】]*】`)

// CleanTitle drops decorative 【…】 segments, keeping the original when
// nothing else is left.
func CleanTitle(title string) string {
	cleaned := strings.TrimSpace(bracketSegment.ReplaceAllString(title, ""))
	if cleaned == "" {
		return strings.TrimSpace(title)
	}
	return cleaned
}
