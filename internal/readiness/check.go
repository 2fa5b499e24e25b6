package readiness

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/grantwatch/internal/catalog"
)

// Required field names, in reporting order.
const (
	FieldMaxAmountOrRate   = "maxAmountOrRate"
	FieldDeadline          = "deadline"
	FieldOverview          = "overview"
	FieldRequiredDocuments = "requiredDocuments"
)

// MaxScore is the number of required fields.
const MaxScore = 4

// Result is the outcome of a readiness check.
type Result struct {
	Ready           bool     `json:"ready"`
	Excluded        bool     `json:"excluded"`
	ExclusionCode   string   `json:"exclusion_code,omitempty"`
	ExclusionReason string   `json:"exclusion_reason,omitempty"`
	MissingFields   []string `json:"missing_fields"`
	Score           int      `json:"score"`
	Searchable      bool     `json:"searchable"`
	FallbackApplied bool     `json:"fallback_applied,omitempty"`
}

// Check evaluates title and fields against the rules. Excluded entries are
// never ready and report no missing fields.
func (r *Rules) Check(title string, f catalog.Fields) Result {
	if rule, ok := r.Exclusion(title, f.Overview); ok {
		return Result{
			Excluded:        true,
			ExclusionCode:   rule.Code,
			ExclusionReason: rule.Reason,
			MissingFields:   []string{},
		}
	}

	missing := make([]string, 0, MaxScore)
	if !f.HasAmountOrRate() {
		missing = append(missing, FieldMaxAmountOrRate)
	}
	if !f.HasDeadline() {
		missing = append(missing, FieldDeadline)
	}
	if !f.HasOverview() {
		missing = append(missing, FieldOverview)
	}
	if !f.HasRequiredDocuments() {
		missing = append(missing, FieldRequiredDocuments)
	}

	return Result{
		Ready:         len(missing) == 0,
		MissingFields: missing,
		Score:         MaxScore - len(missing),
		Searchable:    r.IsSearchable(f),
	}
}

// ApplyFallback injects the default document list when required documents
// are the only missing field. Populated values are never overwritten. The
// boolean reports whether anything was injected.
func (r *Rules) ApplyFallback(f catalog.Fields) (catalog.Fields, bool) {
	if f.HasRequiredDocuments() {
		return f, false
	}
	if !f.HasAmountOrRate() || !f.HasDeadline() || !f.HasOverview() {
		return f, false
	}
	if len(r.Fallback.Documents) == 0 {
		return f, false
	}
	docs := append([]string(nil), r.Fallback.Documents...)
	return catalog.FillEmpty(f, catalog.Fields{
		RequiredDocuments:       docs,
		RequiredDocumentsSource: r.Fallback.Source,
	}), true
}

// IsSearchable reports whether the entry may appear in search results: at
// least MinSignals of overview text, eligible expenses, application
// requirements, attachments and an official URL.
func (r *Rules) IsSearchable(f catalog.Fields) bool {
	signals := 0
	if utf8.RuneCountInString(strings.TrimSpace(f.Overview)) >= r.Searchable.OverviewMinRunes {
		signals++
	}
	if nonBlank(f.EligibleExpenses) {
		signals++
	}
	if nonBlank(f.ApplicationRequirements) {
		signals++
	}
	if nonBlank(f.Attachments) {
		signals++
	}
	if strings.TrimSpace(f.OfficialURL) != "" {
		signals++
	}
	return signals >= r.Searchable.MinSignals
}

// Check evaluates an entry against the embedded rules.
func Check(e catalog.Entry) Result {
	return DefaultRules().Check(e.Title, e.Fields)
}

// ApplyFallback applies the embedded fallback document list.
func ApplyFallback(f catalog.Fields) (catalog.Fields, bool) {
	return DefaultRules().ApplyFallback(f)
}

func nonBlank(in []string) bool {
	for _, s := range in {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}
