package lifecycle

import (
	"context"
	"net/url"
	"path"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/grantwatch/internal/db"
)

// Source types of a check URL, in the order checks prefer them.
const (
	SourceSecretariat = "secretariat"
	SourcePrefecture  = "prefecture"
	SourceCity        = "city"
	SourceMinistry    = "ministry"
	SourcePortal      = "portal"
)

// Document types of a check URL, in the order checks prefer them.
const (
	DocFAQ       = "faq"
	DocNews      = "news"
	DocGuideline = "guideline"
	DocForm      = "form"
)

var (
	validSourceTypes = map[string]bool{
		SourceSecretariat: true, SourcePrefecture: true, SourceCity: true, SourceMinistry: true, SourcePortal: true,
	}
	validDocTypes = map[string]bool{DocFAQ: true, DocNews: true, DocGuideline: true, DocForm: true}
)

// Source is one URL checked for an entry's lifecycle evidence.
type Source struct {
	URL        string `json:"url"`
	SourceType string `json:"source_type"`
	DocType    string `json:"doc_type"`
}

// Validate reports an invalid URL, source type or document type.
func (s Source) Validate() error {
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return eris.Errorf("lifecycle: invalid source url %q", s.URL)
	}
	if !validSourceTypes[s.SourceType] {
		return eris.Errorf("lifecycle: unknown source type %q", s.SourceType)
	}
	if !validDocTypes[s.DocType] {
		return eris.Errorf("lifecycle: unknown doc type %q", s.DocType)
	}
	return nil
}

// ClassifySource guesses the source type from the host and the document
// type from the path of rawURL.
func ClassifySource(rawURL string) Source {
	s := Source{URL: rawURL, SourceType: SourcePortal, DocType: DocNews}
	u, err := url.Parse(rawURL)
	if err != nil {
		return s
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case strings.HasSuffix(host, ".go.jp"):
		s.SourceType = SourceMinistry
	case strings.HasSuffix(host, ".lg.jp"):
		if strings.HasPrefix(host, "pref.") || strings.HasPrefix(host, "www.pref.") {
			s.SourceType = SourcePrefecture
		} else {
			s.SourceType = SourceCity
		}
	case strings.HasPrefix(host, "pref.") || strings.Contains(host, ".pref."):
		s.SourceType = SourcePrefecture
	case strings.HasPrefix(host, "city.") || strings.Contains(host, ".city."):
		s.SourceType = SourceCity
	}

	p := strings.ToLower(u.Path)
	switch ext := path.Ext(p); {
	case strings.Contains(p, "faq") || strings.Contains(p, "/qa"):
		s.DocType = DocFAQ
	case ext == ".doc" || ext == ".docx" || ext == ".xls" || ext == ".xlsx" ||
		strings.Contains(p, "yoshiki") || strings.Contains(p, "/form"):
		s.DocType = DocForm
	case ext == ".pdf" || strings.Contains(p, "koubo") || strings.Contains(p, "youryou") ||
		strings.Contains(p, "guide"):
		s.DocType = DocGuideline
	}
	return s
}

// SourcesFor classifies the distinct non-empty URLs of an entry. The
// official URL, when not a government host, is treated as the secretariat.
func SourcesFor(detailURL, officialURL string, attachments []string) []Source {
	seen := make(map[string]bool)
	var out []Source
	add := func(raw string, secretariat bool) {
		raw = strings.TrimSpace(raw)
		if raw == "" || seen[raw] {
			return
		}
		seen[raw] = true
		s := ClassifySource(raw)
		if secretariat && s.SourceType == SourcePortal {
			s.SourceType = SourceSecretariat
		}
		if s.Validate() != nil {
			return
		}
		out = append(out, s)
	}

	add(officialURL, officialURL != detailURL)
	add(detailURL, false)
	for _, a := range attachments {
		add(a, false)
	}
	return out
}

// AddSources registers sources for entryID on q. Existing rows keep their
// tags unless replace is set. It returns the number of rows written.
func AddSources(ctx context.Context, q db.Querier, entryID string, sources []Source, replace bool) (int, error) {
	conflict := `DO NOTHING`
	if replace {
		conflict = `DO UPDATE SET source_type = excluded.source_type, doc_type = excluded.doc_type`
	}

	n := 0
	for _, s := range sources {
		if err := s.Validate(); err != nil {
			return n, err
		}
		tag, err := q.Exec(ctx, `
			INSERT INTO lifecycle_sources (entry_id, url, source_type, doc_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (entry_id, url) `+conflict,
			entryID, s.URL, s.SourceType, s.DocType,
		)
		if err != nil {
			return n, eris.Wrapf(err, "lifecycle: add source %s", entryID)
		}
		n += int(tag.RowsAffected())
	}
	return n, nil
}
