package core

import (
	"fmt"
	"strings"
)

// DefaultContextBudget is the trailing character budget for the
// assembled context block.
const DefaultContextBudget = 1500

const promptTemplate = `%s

【過去ログ（参考）】
%s

【ユーザーの入力】
%s

返答は丁寧で自然な日本語で書いてください。
文章の長さは内容に応じて調整し、必要なら簡潔に、必要なら十分に詳しく回答してください。
改行は適切に行い、不自然な空行は避けてください。
（表情）や（動作）は文の冒頭で改行せず、文と同じ行で返してください。`

// AssemblePrompt combines the persona system prompt, the context window
// and the new user input into one completion prompt. Context entries
// are joined in caller order — callers append the most relevant content
// last, and TrimContextTail keeps the tail — then trimmed to budget.
// Pure transform, no side effects.
func AssemblePrompt(systemPrompt string, contextEntries []string, userInput string, budget int) string {
	context := TrimContextTail(strings.Join(contextEntries, "\n"), budget)
	return fmt.Sprintf(promptTemplate, strings.TrimSpace(systemPrompt), context, userInput)
}

// TrimContextTail cuts s down to at most budget runes, dropping from
// the front so the most recently appended content survives.
func TrimContextTail(s string, budget int) string {
	if budget <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[len(runes)-budget:])
}
