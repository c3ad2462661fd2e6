package formatter

import (
	"encoding/json"
	"fmt"
	"os"
)

// Example is one worked input/output pair shown to the provider.
type Example struct {
	Input  json.RawMessage `json:"input"`
	Output json.RawMessage `json:"output"`
}

// DefaultExamples returns the built-in worked examples: a murder mystery that
// needs a GM and a supplementary story that is not a game.
func DefaultExamples() []Example {
	return []Example{
		{Input: json.RawMessage(hempelInput), Output: json.RawMessage(hempelOutput)},
		{Input: json.RawMessage(storyInput), Output: json.RawMessage(storyOutput)},
	}
}

// LoadExamples reads a JSON array of {"input": ..., "output": ...} objects.
func LoadExamples(path string) ([]Example, error) {
	// #nosec G304 -- path comes from operator configuration.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read examples: %w", err)
	}
	var examples []Example
	if err := json.Unmarshal(data, &examples); err != nil {
		return nil, fmt.Errorf("decode examples %s: %w", path, err)
	}
	for i, ex := range examples {
		if len(ex.Input) == 0 || len(ex.Output) == 0 {
			return nil, fmt.Errorf("example %d in %s needs both input and output", i+1, path)
		}
	}
	if len(examples) == 0 {
		return nil, fmt.Errorf("no examples in %s", path)
	}
	return examples, nil
}

const hempelInput = `{
  "url": "https://booth.pm/ja/items/2867487",
  "id": "2867487",
  "title": "ヘンペルのカラス【2人協力型マーダーミステリー】",
  "price": 500,
  "likes": 1679,
  "author": "らしょちゃんshop",
  "description": "２人協力型マーダーミステリー 「ヘンペルのカラス」\nPL2＋GM\nタイムアタック：最短75分〜（読み込み時間含む。平均120分）\nオフライン＆オンライン　\n\n＜キャラクター＞\nHO1：青年\nHO2: 少女\n\n＜あらすじ＞\n２人は森の中で出会いました。\nそれぞれ、目的があるようです。",
  "thumbnail_url": "https://example.com/thumbnail1.jpg"
}`

const hempelOutput = `{
  "url": "https://booth.pm/ja/items/2867487",
  "id": "2867487",
  "title": "ヘンペルのカラス",
  "price": 500,
  "likes": 1679,
  "author": "らしょちゃんshop",
  "game_type": "マーダーミステリー",
  "gm_required": "必要",
  "min_players": 2,
  "max_players": 3,
  "play_time": {
    "min": 75,
    "avg": 120
  },
  "thumbnail_url": "https://example.com/thumbnail1.jpg"
}`

const storyInput = `{
  "url": "https://booth.pm/ja/items/4374013",
  "id": "4374013",
  "title": "【支援用SS】「ふわふわクリームさらにジューシー」ショートストーリー",
  "price": 1500,
  "likes": 851,
  "author": "ahashop",
  "description": "マーダーミステリー「ふわふわクリームさらにジューシー」支援用SS(ショートストーリー）です。\n\n※本作品は、ゲームではありません。\n※本編のネタバレを含みます。未プレイの方はご注意下さい。\n\n※本編URL：\nhttps://booth.pm/ja/items/4358468",
  "thumbnail_url": "https://example.com/thumbnail2.jpg"
}`

const storyOutput = `{
  "url": "https://booth.pm/ja/items/4374013",
  "id": "4374013",
  "title": "「ふわふわクリームさらにジューシー」ショートストーリー",
  "price": 1500,
  "likes": 851,
  "author": "ahashop",
  "game_type": "その他",
  "gm_required": "不要",
  "min_players": 0,
  "max_players": 0,
  "play_time": {
    "min": 0,
    "avg": 0
  },
  "thumbnail_url": "https://example.com/thumbnail2.jpg"
}`
