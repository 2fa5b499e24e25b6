// Package catalog holds canonical subsidy entries and the merge rules for
// their semi-structured fields.
package catalog

import (
	"strings"
	"time"
)

// Fields is the structured detail of a catalog entry. Known fields are typed;
// anything else a source provides lands in Extra.
type Fields struct {
	MaxAmount  *int64 `json:"max_amount,omitempty"`
	MinAmount  *int64 `json:"min_amount,omitempty"`
	Rate       string `json:"rate,omitempty"`
	RateDetail string `json:"rate_detail,omitempty"`

	OpenAt       *time.Time `json:"open_at,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	DeadlineText string     `json:"deadline_text,omitempty"`
	Ongoing      bool       `json:"ongoing,omitempty"`

	Overview                string   `json:"overview,omitempty"`
	Eligibility             string   `json:"eligibility,omitempty"`
	ApplicationRequirements []string `json:"application_requirements,omitempty"`
	EligibleExpenses        []string `json:"eligible_expenses,omitempty"`

	RequiredDocuments       []string `json:"required_documents,omitempty"`
	RequiredDocumentsSource string   `json:"required_documents_source,omitempty"`

	RegionCode  string   `json:"region_code,omitempty"`
	OfficialURL string   `json:"official_url,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	SourceState string   `json:"source_status,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// HasAmountOrRate reports whether a monetary ceiling or a rate is known.
func (f Fields) HasAmountOrRate() bool {
	return (f.MaxAmount != nil && *f.MaxAmount > 0) || strings.TrimSpace(f.Rate) != ""
}

// HasDeadline reports whether a deadline is known or the program is ongoing.
func (f Fields) HasDeadline() bool {
	return f.Deadline != nil || strings.TrimSpace(f.DeadlineText) != "" || f.Ongoing
}

// HasOverview reports whether an overview or eligibility description exists.
func (f Fields) HasOverview() bool {
	return strings.TrimSpace(f.Overview) != "" || strings.TrimSpace(f.Eligibility) != ""
}

// HasRequiredDocuments reports whether at least one non-blank document is listed.
func (f Fields) HasRequiredDocuments() bool {
	return len(compact(f.RequiredDocuments)) > 0
}

// Merge applies update on top of base. Non-empty values in update win; empty
// values in update never replace populated values in base.
func Merge(base, update Fields) Fields {
	out := base

	out.MaxAmount = pickInt(base.MaxAmount, update.MaxAmount)
	out.MinAmount = pickInt(base.MinAmount, update.MinAmount)
	out.Rate = pickString(base.Rate, update.Rate)
	out.RateDetail = pickString(base.RateDetail, update.RateDetail)
	out.OpenAt = pickTime(base.OpenAt, update.OpenAt)
	out.Deadline = pickTime(base.Deadline, update.Deadline)
	out.DeadlineText = pickString(base.DeadlineText, update.DeadlineText)
	out.Ongoing = base.Ongoing || update.Ongoing
	out.Overview = pickString(base.Overview, update.Overview)
	out.Eligibility = pickString(base.Eligibility, update.Eligibility)
	out.ApplicationRequirements = pickSlice(base.ApplicationRequirements, update.ApplicationRequirements)
	out.EligibleExpenses = pickSlice(base.EligibleExpenses, update.EligibleExpenses)
	if docs := compact(update.RequiredDocuments); len(docs) > 0 {
		out.RequiredDocuments = docs
		out.RequiredDocumentsSource = update.RequiredDocumentsSource
	}
	out.RegionCode = pickString(base.RegionCode, update.RegionCode)
	out.OfficialURL = pickString(base.OfficialURL, update.OfficialURL)
	out.Attachments = pickSlice(base.Attachments, update.Attachments)
	out.SourceState = pickString(base.SourceState, update.SourceState)
	out.Extra = mergeExtra(base.Extra, update.Extra)

	return out
}

// FillEmpty copies values from defaults only into fields that are empty in
// base. Populated values in base are never touched.
func FillEmpty(base, defaults Fields) Fields {
	return Merge(defaults, base)
}

func pickString(base, update string) string {
	if strings.TrimSpace(update) != "" {
		return update
	}
	return base
}

func pickInt(base, update *int64) *int64 {
	if update != nil && *update > 0 {
		return update
	}
	return base
}

func pickTime(base, update *time.Time) *time.Time {
	if update != nil && !update.IsZero() {
		return update
	}
	return base
}

func pickSlice(base, update []string) []string {
	if c := compact(update); len(c) > 0 {
		return c
	}
	return base
}

func compact(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func mergeExtra(base, update map[string]any) map[string]any {
	if len(base) == 0 && len(update) == 0 {
		return nil
	}
	out := make(map[string]any, len(base)+len(update))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range update {
		if isEmptyValue(v) {
			continue
		}
		out[k] = v
	}
	return out
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(compact(x)) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}
