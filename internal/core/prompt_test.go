package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrimContextTailWithinBudget(t *testing.T) {
	assert.Equal(t, "short", TrimContextTail("short", 1500))
}

func TestTrimContextTailKeepsTail(t *testing.T) {
	head := strings.Repeat("古", 1000)
	tail := strings.Repeat("新", 1000)
	got := TrimContextTail(head+tail, 1500)

	assert.Equal(t, 1500, len([]rune(got)))
	assert.True(t, strings.HasSuffix(got, tail), "most recent content must survive")
	assert.False(t, strings.HasPrefix(got, "古古"), "head beyond budget must be dropped")
}

func TestTrimContextTailCountsRunes(t *testing.T) {
	got := TrimContextTail("あいうえお", 3)
	assert.Equal(t, "うえお", got)
}

func TestTrimContextTailZeroBudget(t *testing.T) {
	assert.Equal(t, "", TrimContextTail("anything", 0))
}

func TestAssemblePromptStructure(t *testing.T) {
	got := AssemblePrompt("あなたは親切なAIです。", []string{"u1: おはよう", "bot: おはようございます"}, "調子はどう？", 1500)

	assert.True(t, strings.HasPrefix(got, "あなたは親切なAIです。"))
	assert.Contains(t, got, "【過去ログ（参考）】\nu1: おはよう\nbot: おはようございます")
	assert.Contains(t, got, "【ユーザーの入力】\n調子はどう？")
	assert.Contains(t, got, "返答は丁寧で自然な日本語で書いてください。")
}

func TestAssemblePromptContextNeverExceedsBudget(t *testing.T) {
	entries := []string{strings.Repeat("あ", 900), strings.Repeat("い", 900)}
	got := AssemblePrompt("sys", entries, "input", 1500)

	start := strings.Index(got, "【過去ログ（参考）】\n") + len("【過去ログ（参考）】\n")
	end := strings.Index(got, "\n\n【ユーザーの入力】")
	context := got[start:end]
	assert.LessOrEqual(t, len([]rune(context)), 1500)
	assert.True(t, strings.HasSuffix(context, strings.Repeat("い", 900)))
}
