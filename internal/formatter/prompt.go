package formatter

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const promptPreamble = `
以下はゲームシナリオや関連コンテンツのJSONデータを特定の形式に整形する例です。
以下の情報を抽出・整形してください：

1. game_type: タイトルや説明文から「TRPG」「マーダーミステリー」「その他」のいずれかを判断
2. gm_required: 説明文からGM必要性（「必要」「不要」「どちらでも可」のいずれか）
3. min_players, max_players: 最小・最大プレイ人数
4. play_time: プレイ時間（最短と平均）を分単位で数値化
5. title: タイトルから【】などの記号を取り除いてシンプルに

元のデータと整形後のデータの例を示します：
`

const promptClosing = "新しい出力（整形されたJSON）を作成してください。JSONフォーマットのみを返してください。"

// BuildPrompt renders the few-shot prompt for input. maxExamples <= 0 uses
// every example. Key order and non-ASCII text are kept as given.
func BuildPrompt(examples []Example, input json.RawMessage, maxExamples int) (string, error) {
	if maxExamples > 0 && len(examples) > maxExamples {
		examples = examples[:maxExamples]
	}

	var b strings.Builder
	b.WriteString(promptPreamble)
	for i, ex := range examples {
		in, err := indent(ex.Input)
		if err != nil {
			return "", fmt.Errorf("example %d input: %w", i+1, err)
		}
		out, err := indent(ex.Output)
		if err != nil {
			return "", fmt.Errorf("example %d output: %w", i+1, err)
		}
		fmt.Fprintf(&b, "\n例 %d:\n入力: %s\n出力: %s\n", i+1, in, out)
	}

	in, err := indent(input)
	if err != nil {
		return "", fmt.Errorf("input record: %w", err)
	}
	fmt.Fprintf(&b, "\n新しい入力:\n%s\n\n", in)
	b.WriteString(promptClosing)
	return b.String(), nil
}

func indent(raw json.RawMessage) (string, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(raw), "", "  "); err != nil {
		return "", err
	}
	return buf.String(), nil
}
