package discovery

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Default scoring constants. They are product tuning and configurable.
const (
	DefaultThreshold = 50
	minTitleRunes    = 10
)

// Weights are the points awarded per populated field.
type Weights struct {
	Title   int `mapstructure:"title_weight"`
	Summary int `mapstructure:"summary_weight"`
	Region  int `mapstructure:"region_weight"`
	URL     int `mapstructure:"url_weight"`
}

// DefaultWeights returns 30/30/20/20.
func DefaultWeights() Weights {
	return Weights{Title: 30, Summary: 30, Region: 20, URL: 20}
}

// Score computes the deterministic quality score of an item.
func Score(it Item, w Weights) int {
	score := 0
	if utf8.RuneCountInString(strings.TrimSpace(it.Title)) > minTitleRunes {
		score += w.Title
	}
	if strings.TrimSpace(it.Summary) != "" {
		score += w.Summary
	}
	if strings.TrimSpace(it.RegionCode) != "" {
		score += w.Region
	}
	if strings.TrimSpace(it.URL) != "" {
		score += w.URL
	}
	return score
}

func validatedNote(score int) string {
	return fmt.Sprintf("Auto-validated: score=%d", score)
}

func rejectedNote(score, threshold int) string {
	return fmt.Sprintf("Rejected: score=%d (min=%d)", score, threshold)
}
