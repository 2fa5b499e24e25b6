package enrich

import (
	"net/url"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/grantwatch/internal/fetcher"
)

// MaxAttachments caps the PDFs kept per entry.
const MaxAttachments = 3

// PDF categories.
const (
	PDFGuideline = "koubo_youryou"
	PDFRules     = "kofu_youkou"
	PDFForm      = "application_form"
	PDFManual    = "manual"
	PDFOther     = "other"
)

var pdfRules = []struct {
	re       *regexp.Regexp
	score    int
	category string
}{
	{regexp.MustCompile(`(?i)公募要領|募集要項|公募案内|応募要項`), 100, PDFGuideline},
	{regexp.MustCompile(`(?i)koubo|boshu|youryou|youryo`), 95, PDFGuideline},
	{regexp.MustCompile(`(?i)交付要綱|交付規程|補助金交付|助成金交付`), 80, PDFRules},
	{regexp.MustCompile(`(?i)kofu|youkou|kitei`), 75, PDFRules},
	{regexp.MustCompile(`(?i)申請様式|申請書|様式|記入例|記載例`), 60, PDFForm},
	{regexp.MustCompile(`(?i)shinsei|youshiki`), 55, PDFForm},
	{regexp.MustCompile(`(?i)マニュアル|手引き|ガイド|利用案内|操作説明`), 30, PDFManual},
	{regexp.MustCompile(`(?i)manual|guide|tebiki`), 25, PDFManual},
	{regexp.MustCompile(`(?i)ロゴ|logo|規約|利用規約|プライバシー|privacy`), -50, PDFOther},
	{regexp.MustCompile(`(?i)チラシ|flyer|ポスター|poster`), -30, PDFOther},
}

// ScorePDF rates how useful a PDF is for an application. Any negative rule
// that matches wins over positive ones.
func ScorePDF(rawURL, name string) (int, string) {
	text := rawURL + " " + name
	score, category := 0, PDFOther
	for _, r := range pdfRules {
		if !r.re.MatchString(text) {
			continue
		}
		if r.score > score || (r.score < 0 && score >= 0) {
			score, category = r.score, r.category
		}
	}
	return score, category
}

// SelectBestPDFs returns up to n PDF URLs from links, best first, skipping
// anything that scores below zero.
func SelectBestPDFs(links []fetcher.Link, n int) []string {
	type scored struct {
		url   string
		score int
	}
	var cands []scored
	seen := make(map[string]bool)
	for _, l := range links {
		if !isPDF(l.URL) || seen[l.URL] {
			continue
		}
		seen[l.URL] = true
		s, _ := ScorePDF(l.URL, l.Text)
		if s < 0 {
			continue
		}
		cands = append(cands, scored{l.URL, s})
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].score > cands[j].score })

	var out []string
	for _, c := range cands {
		if len(out) == n {
			break
		}
		out = append(out, c.url)
	}
	return out
}

func extOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(path.Ext(u.Path))
}

func isPDF(rawURL string) bool {
	return extOf(rawURL) == ".pdf"
}

func isDocumentURL(rawURL string) bool {
	switch extOf(rawURL) {
	case ".pdf", ".doc", ".docx", ".xls", ".xlsx", ".zip":
		return true
	}
	return false
}
