package lifecycle

import "regexp"

// BudgetSignal is textual evidence that an entry's budget or quota ran out,
// or for first_come_end that it may run out before the deadline.
type BudgetSignal struct {
	Code  string
	Quote string
}

// Budget signal codes.
const (
	SignalBudgetCapReached = "budget_cap_reached"
	SignalFirstComeEnd     = "first_come_end"
	SignalQuotaReached     = "quota_reached"
	SignalEarlyClose       = "early_close"
)

const maxQuoteRunes = 80

var budgetPatterns = []struct {
	re   *regexp.Regexp
	code string
}{
	{regexp.MustCompile(`予算上限に達し次第.{0,20}終了`), SignalBudgetCapReached},
	{regexp.MustCompile(`予算がなくなり次第.{0,20}終了`), SignalBudgetCapReached},
	{regexp.MustCompile(`予定件数に達し`), SignalQuotaReached},
	{regexp.MustCompile(`早期終了`), SignalEarlyClose},
	{regexp.MustCompile(`予算の範囲内.{0,20}先着順`), SignalFirstComeEnd},
	{regexp.MustCompile(`先着順`), SignalFirstComeEnd},
}

// DetectBudgetSignal returns the first budget pattern found in text.
// Closing signals are tried before first-come notices.
func DetectBudgetSignal(text string) (BudgetSignal, bool) {
	for _, p := range budgetPatterns {
		if m := p.re.FindString(text); m != "" {
			return BudgetSignal{Code: p.code, Quote: truncateRunes(m, maxQuoteRunes)}, true
		}
	}
	return BudgetSignal{}, false
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
