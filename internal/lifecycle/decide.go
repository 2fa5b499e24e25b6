package lifecycle

import "time"

// ClosingSoonWindow is how close to the deadline an open entry becomes
// closing_soon.
const ClosingSoonWindow = 24 * time.Hour

// Evidence is what one evaluation knows about an entry's application window.
type Evidence struct {
	OpenAt  *time.Time
	CloseAt *time.Time
	Ongoing bool

	// Text is scanned for budget signals when Budget is nil.
	Text   string
	Budget *BudgetSignal
	URL    string

	// Operator actions.
	Suspend bool
	Resume  bool
	Reason  string
}

// Decision is the status chosen for an evaluation.
type Decision struct {
	Status        Status
	Reason        string
	EvidenceURL   string
	EvidenceQuote string
}

// Decide picks the status for an entry currently in prev. Precedence:
// operator suspension, budget evidence, past deadline, future opening,
// imminent deadline, current window. A first-come notice only marks an
// otherwise current window closing_soon. With no usable evidence the
// previous status is kept.
func Decide(prev Status, ev Evidence, now time.Time) Decision {
	if !prev.Valid() {
		prev = StatusUnknown
	}

	switch {
	case ev.Suspend:
		return Decision{Status: StatusSuspended, Reason: orDefault(ev.Reason, "operator_suspended"), EvidenceURL: ev.URL}
	case ev.Resume:
		prev = StatusUnknown
	case prev == StatusSuspended:
		return Decision{Status: StatusSuspended, Reason: "operator_suspended"}
	}

	signal := ev.Budget
	if signal == nil && ev.Text != "" {
		if s, ok := DetectBudgetSignal(ev.Text); ok {
			signal = &s
		}
	}
	var firstCome *BudgetSignal
	if signal != nil && signal.Code == SignalFirstComeEnd {
		firstCome, signal = signal, nil
	}
	if signal != nil {
		return Decision{
			Status:        StatusClosedByBudget,
			Reason:        signal.Code,
			EvidenceURL:   ev.URL,
			EvidenceQuote: signal.Quote,
		}
	}

	// A budget closure is not undone by dates alone.
	if prev == StatusClosedByBudget {
		return Decision{Status: StatusClosedByBudget, Reason: "budget_exhausted"}
	}

	if ev.CloseAt != nil && !ev.CloseAt.After(now) {
		return Decision{
			Status:        StatusClosedByDeadline,
			Reason:        "deadline_passed",
			EvidenceURL:   ev.URL,
			EvidenceQuote: ev.CloseAt.UTC().Format(time.RFC3339),
		}
	}

	if ev.OpenAt != nil && ev.OpenAt.After(now) {
		return Decision{Status: StatusScheduled, Reason: "opens_later", EvidenceURL: ev.URL}
	}

	if firstCome != nil {
		return Decision{
			Status:        StatusClosingSoon,
			Reason:        firstCome.Code,
			EvidenceURL:   ev.URL,
			EvidenceQuote: firstCome.Quote,
		}
	}

	if ev.CloseAt != nil && ev.CloseAt.Sub(now) <= ClosingSoonWindow {
		return Decision{Status: StatusClosingSoon, Reason: "deadline_within_24h", EvidenceURL: ev.URL}
	}

	if ev.CloseAt != nil || ev.OpenAt != nil || ev.Ongoing {
		return Decision{Status: StatusOpen, Reason: "window_current", EvidenceURL: ev.URL}
	}

	return Decision{Status: prev}
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
