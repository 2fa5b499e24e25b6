package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// DedupeKey fingerprints a candidate as sourceID plus the first 12 hex chars
// of sha256 over the normalized URL. Candidates without a URL fall back to
// the normalized title.
func DedupeKey(sourceID, rawURL, title string) string {
	basis := normalizeURL(rawURL)
	if basis == "" {
		basis = strings.ToLower(normalizeText(title))
	}
	sum := sha256.Sum256([]byte(basis))
	return sourceID + ":" + hex.EncodeToString(sum[:])[:12]
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFKC.String(s))
}

func normalizeURL(raw string) string {
	s := normalizeText(raw)
	if s == "" {
		return ""
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

type hashedContent struct {
	Title    string `json:"title"`
	Summary  string `json:"summary"`
	Amount   *int64 `json:"amount"`
	Rate     string `json:"rate"`
	Deadline string `json:"deadline"`
	Status   string `json:"status"`
}

// ContentHash is the first 16 hex chars of sha256 over the candidate's
// change-relevant fields. Any change in them yields a new hash.
func ContentHash(c Candidate) string {
	hc := hashedContent{
		Title:   c.Title,
		Summary: c.Summary,
		Amount:  c.MaxAmount,
		Rate:    c.Rate,
		Status:  c.Status,
	}
	if c.Deadline != nil {
		hc.Deadline = c.Deadline.UTC().Format("2006-01-02")
	}
	// Marshal of a flat struct with string and pointer fields cannot fail.
	body, _ := json.Marshal(hc)
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])[:16]
}
