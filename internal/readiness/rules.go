// Package readiness decides whether a catalog entry carries enough structured
// data to be used in an automated screening conversation.
package readiness

import (
	_ "embed"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRulesYAML []byte

// Rule is one exclusion rule.
type Rule struct {
	Code      string `yaml:"code"`
	Pattern   string `yaml:"pattern"`
	TitleOnly bool   `yaml:"title_only"`
	Reason    string `yaml:"reason"`

	re *regexp.Regexp
}

// Fallback is the document list injected when documents are the only gap.
type Fallback struct {
	Source    string   `yaml:"source"`
	Documents []string `yaml:"documents"`
}

// SearchableRule configures the search gate.
type SearchableRule struct {
	MinSignals       int `yaml:"min_signals"`
	OverviewMinRunes int `yaml:"overview_min_runes"`
}

// Rules is the full readiness rule set.
type Rules struct {
	Exclusions []Rule         `yaml:"exclusions"`
	Fallback   Fallback       `yaml:"fallback"`
	Searchable SearchableRule `yaml:"searchable"`
}

// LoadRules parses and compiles a YAML rule set.
func LoadRules(data []byte) (*Rules, error) {
	var r Rules
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "readiness: parse rules")
	}
	for i := range r.Exclusions {
		rule := &r.Exclusions[i]
		if rule.Code == "" {
			return nil, eris.Errorf("readiness: exclusion rule %d has no code", i)
		}
		re, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "readiness: compile rule %s", rule.Code)
		}
		rule.re = re
	}
	if r.Searchable.MinSignals <= 0 {
		r.Searchable.MinSignals = 2
	}
	if r.Searchable.OverviewMinRunes <= 0 {
		r.Searchable.OverviewMinRunes = 20
	}
	return &r, nil
}

var builtin = mustLoad(defaultRulesYAML)

func mustLoad(data []byte) *Rules {
	r, err := LoadRules(data)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultRules returns the embedded rule set.
func DefaultRules() *Rules {
	return builtin
}

// Exclusion returns the first rule matching the entry, if any.
func (r *Rules) Exclusion(title, overview string) (Rule, bool) {
	full := strings.TrimSpace(title + " " + overview)
	for _, rule := range r.Exclusions {
		text := full
		if rule.TitleOnly {
			text = title
		}
		if rule.re.MatchString(text) {
			return rule, true
		}
	}
	return Rule{}, false
}
