package scheduler

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/grantwatch/internal/db"
	"github.com/sells-group/grantwatch/internal/domainpolicy"
	"github.com/sells-group/grantwatch/internal/lifecycle"
)

// DefaultRegistryPriority applies to sources without a priority.
const DefaultRegistryPriority = 4

// Source is one row of source_registry.
type Source struct {
	ID              string     `yaml:"id" json:"id" validate:"required"`
	RootURL         string     `yaml:"root_url" json:"root_url" validate:"required,url"`
	DomainKey       string     `yaml:"-" json:"domain_key"`
	Scope           string     `yaml:"scope" json:"scope" validate:"omitempty,oneof=national prefecture city secretariat portal"`
	UpdateFrequency string     `yaml:"update_frequency" json:"update_frequency" validate:"omitempty,oneof=hourly daily weekly monthly"`
	Priority        int        `yaml:"priority" json:"priority" validate:"omitempty,min=1,max=5"`
	Enabled         *bool      `yaml:"enabled" json:"enabled"`
	NextCrawlAt     *time.Time `yaml:"-" json:"next_crawl_at,omitempty"`
	LastCrawledAt   *time.Time `yaml:"-" json:"last_crawled_at,omitempty"`
}

// RegistryNext returns when a source crawled at now is next due.
func RegistryNext(freq string, now time.Time) time.Time {
	switch lifecycle.Frequency(freq) {
	case lifecycle.Hourly:
		return now.Add(time.Hour)
	case lifecycle.Daily:
		return now.Add(24 * time.Hour)
	case lifecycle.Monthly:
		return now.Add(30 * 24 * time.Hour)
	default:
		return now.Add(7 * 24 * time.Hour)
	}
}

type registryFile struct {
	Sources []Source `yaml:"sources" validate:"dive"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseSources reads a YAML registry file and fills defaults.
func ParseSources(data []byte) ([]Source, error) {
	var f registryFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "scheduler: parse registry")
	}
	if err := validate.Struct(f); err != nil {
		return nil, eris.Wrap(err, "scheduler: validate registry")
	}

	seen := make(map[string]bool, len(f.Sources))
	for i := range f.Sources {
		s := &f.Sources[i]
		if seen[s.ID] {
			return nil, eris.Errorf("scheduler: duplicate source id %q", s.ID)
		}
		seen[s.ID] = true

		s.RootURL = strings.TrimSpace(s.RootURL)
		s.DomainKey = domainpolicy.DomainKey(s.RootURL)
		if s.Scope == "" {
			s.Scope = "national"
		}
		if s.UpdateFrequency == "" {
			s.UpdateFrequency = string(lifecycle.Weekly)
		}
		if s.Priority == 0 {
			s.Priority = DefaultRegistryPriority
		}
		if s.Enabled == nil {
			enabled := true
			s.Enabled = &enabled
		}
	}
	return f.Sources, nil
}

// ImportSources upserts sources into source_registry. next_crawl_at and
// last_crawled_at are left untouched for existing rows.
func ImportSources(ctx context.Context, pool db.Pool, sources []Source, now time.Time) (int64, error) {
	rows := make([][]any, len(sources))
	for i, s := range sources {
		enabled := s.Enabled == nil || *s.Enabled
		rows[i] = []any{s.ID, s.RootURL, s.DomainKey, s.Scope, s.UpdateFrequency, s.Priority, enabled, now}
	}
	n, err := db.BulkUpsert(ctx, pool, db.UpsertConfig{
		Table:        "source_registry",
		Columns:      []string{"id", "root_url", "domain_key", "scope", "update_frequency", "priority", "enabled", "updated_at"},
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "scheduler: import registry")
	}
	return n, nil
}
