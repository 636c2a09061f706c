package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aimine/bunshin/internal/llm"
	"github.com/aimine/bunshin/internal/store"
)

// ErrEmptyLog rejects an analysis request before any LLM call when the
// underlying conversation log has nothing to analyze.
var ErrEmptyLog = errors.New("conversation log is empty")

const employeeSummaryTemplate = `以下の社員との会話ログを元に、社員の状態を次の4項目で簡潔に分析してください。

1. モチベーション（高い・普通・低い）とその理由
2. コミュニケーション傾向（例：積極的、控えめ、遠慮がち等）
3. 抱えている悩み・課題（なければ「特になし」）
4. 総合コメント（励ましや改善提案など、自然な日本語で簡潔に）

ログ:
%s`

const selfAnalysisTemplate = `以下の1ヶ月分の会話ログをもとに、ユーザーの性格傾向をMBTIとTEGの両方で分析し、最後にそれらを掛け合わせた総評を出力してください。

【MBTI分析】
1. MBTIタイプ（4文字＋日本語ネーミング、例：INTJ（建築家））
2. MBTIタイプの根拠（発言や態度から）

【TEG分析】
1. CP（厳格な親）: 0.0〜2.0 の数値
2. NP（養育的な親）: 0.0〜2.0
3. A（大人）: 0.0〜2.0
4. FC（自由な子）: 0.0〜2.0
5. AC（順応する子）: 0.0〜2.0

2. TEGタイプ名（例：NP優勢型、A安定型、CP高型 等）
3. タイプの特徴（長所と短所）
4. 傾向（行動や思考の特徴）
5. 留意点（注意すべき点）

【MBTI × TEG 総評】
MBTIとTEGの組み合わせから読み取れる観点を自然な日本語でまとめてください。
最初の1文は必ず「現在のあなたの思考は〜です」で始めてください。

ログ:
%s`

const feedbackTemplate = `以下の1ヶ月分の発言ログを元に、次の項目に基づいてフィードバックを作成してください。

【フィードバック出力内容】
1. 現時点での自己課題（過去の発言内容に基づく）
2. 明確または暗示された目標（ある場合）
3. 未解決の懸念やモヤモヤ（気になる発言などから推定）
4. 今後に向けたフィードバックと提案（行動・思考のヒント）

ログ:
%s`

// AnalysisStore is the read-only slice of the store the analysis
// features need.
type AnalysisStore interface {
	ListMessages(ctx context.Context, p store.Partition, f store.MessageFilter) ([]store.Message, error)
	ListUsersByRole(ctx context.Context, companyID, role string) ([]store.User, error)
}

// AnalysisService turns conversation logs into AI-generated behavioral
// summaries for admins: per-employee reviews, and the admin's own
// monthly self-analysis and feedback.
type AnalysisService struct {
	store     AnalysisStore
	completer llm.Completer
	timeout   time.Duration
}

func NewAnalysisService(st AnalysisStore, completer llm.Completer, timeout time.Duration) *AnalysisService {
	if timeout <= 0 {
		timeout = defaultProviderTimeout
	}
	return &AnalysisService{store: st, completer: completer, timeout: timeout}
}

func (s *AnalysisService) ListEmployees(ctx context.Context, companyID string) ([]store.User, error) {
	return s.store.ListUsersByRole(ctx, companyID, store.RoleEmployee)
}

// EmployeeMessages returns one employee's conversation with the given
// bot, oldest first.
func (s *AnalysisService) EmployeeMessages(ctx context.Context, companyID, employeeID, botID string) ([]store.Message, error) {
	p, err := store.NewPartition(companyID, employeeID)
	if err != nil {
		return nil, err
	}
	return s.store.ListMessages(ctx, p, store.MessageFilter{BotID: botID, PairOnly: true})
}

// SummarizeEmployee generates the 4-item behavioral summary of an
// employee's conversation log with the admin's bot.
func (s *AnalysisService) SummarizeEmployee(ctx context.Context, companyID, employeeID, botID string) (string, error) {
	msgs, err := s.EmployeeMessages(ctx, companyID, employeeID, botID)
	if err != nil {
		return "", err
	}
	log := joinLog(msgs)
	if log == "" {
		return "", ErrEmptyLog
	}
	return s.complete(ctx, fmt.Sprintf(employeeSummaryTemplate, log))
}

// SelfAnalysis runs the MBTI × TEG analysis over the admin's own
// messages from the last month.
func (s *AnalysisService) SelfAnalysis(ctx context.Context, p store.Partition, botID string) (string, error) {
	log, err := s.monthlyOwnLog(ctx, p, botID)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, fmt.Sprintf(selfAnalysisTemplate, log))
}

// MonthlyFeedback generates goals/concerns feedback over the admin's
// own messages from the last month.
func (s *AnalysisService) MonthlyFeedback(ctx context.Context, p store.Partition, botID string) (string, error) {
	log, err := s.monthlyOwnLog(ctx, p, botID)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, fmt.Sprintf(feedbackTemplate, log))
}

// monthlyOwnLog collects only the partition user's side of the
// conversation over the trailing month.
func (s *AnalysisService) monthlyOwnLog(ctx context.Context, p store.Partition, botID string) (string, error) {
	oneMonthAgo := time.Now().AddDate(0, -1, 0)
	msgs, err := s.store.ListMessages(ctx, p, store.MessageFilter{BotID: botID, PairOnly: true, Since: oneMonthAgo})
	if err != nil {
		return "", err
	}

	var own []store.Message
	for _, msg := range msgs {
		if msg.Sender == p.UserID {
			own = append(own, msg)
		}
	}
	log := joinLog(own)
	if log == "" {
		return "", ErrEmptyLog
	}
	return log, nil
}

func (s *AnalysisService) complete(ctx context.Context, prompt string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	result, err := s.completer.Complete(cctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(result), nil
}

func joinLog(msgs []store.Message) string {
	var sb strings.Builder
	for _, msg := range msgs {
		if strings.TrimSpace(msg.Text) == "" {
			continue
		}
		sb.WriteString(msg.Sender)
		sb.WriteString(": ")
		sb.WriteString(msg.Text)
		sb.WriteString("\n")
	}
	return strings.TrimSpace(sb.String())
}
