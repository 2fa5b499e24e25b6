// Package enrich fetches detail pages for catalog entries in the current
// shard window and folds what it finds back into the catalog.
package enrich

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/grantwatch/internal/catalog"
	"github.com/sells-group/grantwatch/internal/fetcher"
)

// Sources recorded in Fields.RequiredDocumentsSource.
const (
	DocsFromPage  = "page_section"
	DocsFromLinks = "page_links"
)

// jst is the zone deadlines on Japanese pages are written in.
var jst = time.FixedZone("JST", 9*60*60)

// Result is what one page yields.
type Result struct {
	// Fields holds values read directly from the page.
	Fields catalog.Fields
	// Estimates holds guesses that should only fill gaps.
	Estimates catalog.Fields
}

const amountExpr = `([0-9][0-9,]*(?:\.[0-9]+)?)\s*(億|千万|百万|万)?\s*円`

var maxAmountPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:補助|助成|奨励|給付|交付)金?(?:の)?(?:上限額|限度額|上限)[\s:]*(?:最大|最高)?[\s:]*` + amountExpr),
	regexp.MustCompile(`(?:補助|助成|奨励|給付)金?額[\s:]*(?:最大|上限|最高)?[\s:]*` + amountExpr),
	regexp.MustCompile(`上限(?:額)?[\s:]*` + amountExpr),
	regexp.MustCompile(`最大[\s:]*` + amountExpr),
}

var (
	minAmountPattern = regexp.MustCompile(`下限(?:額)?[\s:]*` + amountExpr)

	ratePattern = regexp.MustCompile(`(?:補助|助成)率[\s:]*[^0-9\n]{0,12}?([0-9]+\s*/\s*[0-9]+|[0-9]+\s*分の\s*[0-9]+|[0-9]+(?:\.[0-9]+)?\s*%|定額)`)
	fractionJa  = regexp.MustCompile(`([0-9]+)\s*分の\s*([0-9]+)`)

	datePattern = regexp.MustCompile(`令和\s*(元|[0-9]{1,2})\s*年\s*([0-9]{1,2})\s*月\s*([0-9]{1,2})\s*日|([0-9]{4})\s*年\s*([0-9]{1,2})\s*月\s*([0-9]{1,2})\s*日|([0-9]{4})/([0-9]{1,2})/([0-9]{1,2})`)
	periodLabel = regexp.MustCompile(`(?:申請|受付|募集|公募|応募|提出)(?:受付)?(?:期間|期限|締切|締め切り)|締切日?|締め切り|〆切`)
	shortEnd    = regexp.MustCompile(`^\s*(?:\([^)]{1,3}\))?\s*(?:~|〜|-|から)\s*([0-9]{1,2})\s*月\s*([0-9]{1,2})\s*日`)
	startOnly   = regexp.MustCompile(`^\s*(?:\([^)]{1,3}\))?\s*(?:[0-9:]+\s*)?(?:から|より|~|〜)`)
	untilDate   = regexp.MustCompile(`(` + datePattern.String() + `)\s*(?:まで|必着|締切|〆切)`)
	ongoing     = regexp.MustCompile(`随時(?:受付|募集|申請)|通年(?:受付|募集)`)
	fiscalYear  = regexp.MustCompile(`令和\s*(元|[0-9]{1,2})\s*年度|([0-9]{4})\s*年度`)

	documentLink = regexp.MustCompile(`公募要領|募集要項|申請書|様式|計画書|見積|誓約書|決算書|登記|チェックリスト`)
	bullet       = regexp.MustCompile(`^[\s■●◆◇○・•※\-]*(?:\(?[0-9]{1,2}[).][\s]*)?`)
	listSplit    = regexp.MustCompile(`\n|・|•|●|■|※`)
)

// Section labels. A line starting with any label ends the previous section.
var (
	overviewLabels    = []string{"事業概要", "制度概要", "制度の概要", "事業の目的", "事業目的", "概要", "目的"}
	eligibilityLabels = []string{"補助対象者", "助成対象者", "対象事業者", "申請対象者", "対象となる方", "申請資格", "対象者"}
	expenseLabels     = []string{"補助対象経費", "助成対象経費", "対象経費"}
	documentLabels    = []string{"申請に必要な書類", "提出書類", "必要書類", "申請書類"}
	requirementLabels = []string{"申請要件", "応募要件", "補助要件"}
	terminatorLabels  = []string{"補助上限額", "補助率", "助成率", "申請期間", "受付期間", "募集期間", "公募期間", "お問い合わせ", "問い合わせ先", "申請方法", "スケジュール"}
	allSectionLabels  = concat(overviewLabels, eligibilityLabels, expenseLabels, documentLabels, requirementLabels, terminatorLabels)
)

func concat(lists ...[]string) []string {
	var out []string
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}

// Extract reads structured fields from a fetched page.
func Extract(page *fetcher.Page, now time.Time) Result {
	var res Result
	if page == nil {
		return res
	}
	text := norm.NFKC.String(page.Text)
	lines := strings.Split(text, "\n")

	f := &res.Fields
	f.MaxAmount = firstAmount(text, maxAmountPatterns...)
	f.MinAmount = firstAmount(text, minAmountPattern)
	f.Rate, f.RateDetail = parseRate(text)

	f.OpenAt, f.Deadline, f.DeadlineText = parsePeriod(text, now)
	f.Ongoing = ongoing.MatchString(text)

	f.Overview = section(lines, overviewLabels, 400)
	if f.Overview == "" {
		f.Overview = firstSentenceLine(lines)
	}
	f.Eligibility = section(lines, eligibilityLabels, 400)
	f.EligibleExpenses = toList(section(lines, expenseLabels, 1200))
	f.ApplicationRequirements = toList(section(lines, requirementLabels, 1200))

	if docs := toList(section(lines, documentLabels, 1200)); len(docs) > 0 {
		f.RequiredDocuments = docs
		f.RequiredDocumentsSource = DocsFromPage
	} else if docs := linkedDocuments(page.Links); len(docs) > 0 {
		f.RequiredDocuments = docs
		f.RequiredDocumentsSource = DocsFromLinks
	}
	f.Attachments = SelectBestPDFs(page.Links, MaxAttachments)

	if f.Deadline == nil && !f.Ongoing {
		if end := fiscalYearEnd(text); end != nil {
			res.Estimates.Deadline = end
			res.Estimates.Extra = map[string]any{"deadline_estimated": "fiscal_year_end"}
		}
	}
	res.Estimates.OfficialURL = page.URL
	return res
}

// ParseAmount converts "1,250万円" style text to yen.
func ParseAmount(num, unit string) (int64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(num, ",", ""), 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	switch unit {
	case "億":
		v *= 1e8
	case "千万":
		v *= 1e7
	case "百万":
		v *= 1e6
	case "万":
		v *= 1e4
	}
	return int64(v + 0.5), true
}

func firstAmount(text string, patterns ...*regexp.Regexp) *int64 {
	for _, re := range patterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v, ok := ParseAmount(m[1], m[2]); ok {
			return &v
		}
	}
	return nil
}

// parseRate returns the first rate and the whole line it appears on.
func parseRate(text string) (rate, detail string) {
	loc := ratePattern.FindStringSubmatchIndex(text)
	if loc == nil {
		return "", ""
	}
	rate = strings.Join(strings.Fields(text[loc[2]:loc[3]]), "")
	if m := fractionJa.FindStringSubmatch(rate); m != nil {
		// "3分の2" reads denominator first.
		rate = m[2] + "/" + m[1]
	}

	start := strings.LastIndexByte(text[:loc[2]], '\n') + 1
	end := strings.IndexByte(text[loc[3]:], '\n')
	if end < 0 {
		end = len(text)
	} else {
		end += loc[3]
	}
	detail = strings.TrimSpace(text[start:end])
	if detail == rate {
		detail = ""
	}
	return rate, truncate(detail, 100)
}

// ParseDate reads one Japanese or slash date as the start of that day in JST.
func ParseDate(s string) (time.Time, bool) {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	var y, mo, d int
	switch {
	case m[1] != "":
		era := 1
		if m[1] != "元" {
			era, _ = strconv.Atoi(m[1])
		}
		y = 2018 + era
		mo, _ = strconv.Atoi(m[2])
		d, _ = strconv.Atoi(m[3])
	case m[4] != "":
		y, _ = strconv.Atoi(m[4])
		mo, _ = strconv.Atoi(m[5])
		d, _ = strconv.Atoi(m[6])
	default:
		y, _ = strconv.Atoi(m[7])
		mo, _ = strconv.Atoi(m[8])
		d, _ = strconv.Atoi(m[9])
	}
	t := time.Date(y, time.Month(mo), d, 0, 0, 0, 0, jst)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false
	}
	return t, true
}

func endOfDay(t time.Time) time.Time {
	return t.Add(24*time.Hour - time.Second)
}

func plausible(t time.Time, now time.Time) bool {
	return t.Year() >= 2000 && t.Year() <= now.Year()+5
}

// parsePeriod finds the application window. After a period label, two dates
// are the opening and the deadline; "4月1日~6月30日" borrows the year of the
// first; a lone date followed by "から" is only an opening.
func parsePeriod(text string, now time.Time) (openAt, deadline *time.Time, label string) {
	for _, loc := range periodLabel.FindAllStringIndex(text, -1) {
		window := lineWindow(runeWindow(text[loc[1]:], 120), 2)

		var dates []time.Time
		lastEnd := 0
		for _, m := range datePattern.FindAllStringIndex(window, -1) {
			if t, ok := ParseDate(window[m[0]:m[1]]); ok && plausible(t, now) {
				dates = append(dates, t)
				lastEnd = m[1]
			}
		}
		if len(dates) == 0 {
			continue
		}

		if len(dates) == 1 {
			rest := window[lastEnd:]
			if m := shortEnd.FindStringSubmatchIndex(rest); m != nil {
				mo, _ := strconv.Atoi(rest[m[2]:m[3]])
				d, _ := strconv.Atoi(rest[m[4]:m[5]])
				end := time.Date(dates[0].Year(), time.Month(mo), d, 0, 0, 0, 0, jst)
				if end.Before(dates[0]) {
					end = end.AddDate(1, 0, 0)
				}
				if int(end.Month()) == mo && end.Day() == d {
					dates = append(dates, end)
					lastEnd += m[1]
				}
			} else if startOnly.MatchString(rest) {
				start := dates[0].UTC()
				openAt = &start
				continue
			}
		}

		end := endOfDay(dates[len(dates)-1]).UTC()
		deadline = &end
		if len(dates) > 1 {
			start := dates[0].UTC()
			openAt = &start
		}
		snippet := strings.Join(strings.Fields(text[loc[0]:loc[1]]+" "+window[:lastEnd]), " ")
		return openAt, deadline, truncate(snippet, 100)
	}

	if m := untilDate.FindStringSubmatchIndex(text); m != nil {
		if t, ok := ParseDate(text[m[2]:m[3]]); ok && plausible(t, now) {
			end := endOfDay(t).UTC()
			return openAt, &end, truncate(text[m[0]:m[1]], 100)
		}
	}
	return openAt, nil, ""
}

// fiscalYearEnd guesses March 31 after the first fiscal year mentioned.
func fiscalYearEnd(text string) *time.Time {
	m := fiscalYear.FindStringSubmatch(text)
	if m == nil {
		return nil
	}
	var y int
	if m[1] != "" {
		era := 1
		if m[1] != "元" {
			era, _ = strconv.Atoi(m[1])
		}
		y = 2018 + era
	} else {
		y, _ = strconv.Atoi(m[2])
	}
	end := endOfDay(time.Date(y+1, time.March, 31, 0, 0, 0, 0, jst)).UTC()
	return &end
}

// section returns the text following the first line that starts with one of
// labels, up to the next labelled line or maxRunes.
func section(lines []string, labels []string, maxRunes int) string {
	for i, line := range lines {
		rest, ok := cutLabel(line, labels)
		if !ok {
			continue
		}
		var b strings.Builder
		b.WriteString(rest)
		for _, next := range lines[i+1:] {
			if _, isLabel := cutLabel(next, allSectionLabels); isLabel {
				break
			}
			if utf8.RuneCountInString(b.String()) >= maxRunes {
				break
			}
			if b.Len() > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(strings.TrimSpace(next))
		}
		return truncate(strings.TrimSpace(b.String()), maxRunes)
	}
	return ""
}

// cutLabel reports whether line starts with a label followed by a delimiter
// or the end of the line, and returns the rest.
func cutLabel(line string, labels []string) (string, bool) {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "■●◆◇○・【[( ")
	for _, l := range labels {
		after, ok := strings.CutPrefix(s, l)
		if !ok {
			continue
		}
		if r, _ := utf8.DecodeRuneInString(after); after != "" && !strings.ContainsRune("】]): \t", r) {
			continue
		}
		return strings.TrimSpace(strings.TrimLeft(after, "】]): \t")), true
	}
	return "", false
}

func firstSentenceLine(lines []string) string {
	for _, l := range lines {
		l = strings.TrimSpace(l)
		if utf8.RuneCountInString(l) >= 40 && strings.Contains(l, "。") {
			return truncate(l, 400)
		}
	}
	return ""
}

// toList splits a section into items of 2..200 runes, at most 30.
func toList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, part := range listSplit.Split(s, -1) {
		part = strings.TrimSpace(bullet.ReplaceAllString(part, ""))
		n := utf8.RuneCountInString(part)
		if n < 2 || n > 200 || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
		if len(out) == 30 {
			break
		}
	}
	return out
}

// linkedDocuments names downloadable documents linked from the page.
func linkedDocuments(links []fetcher.Link) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range links {
		if !isDocumentURL(l.URL) {
			continue
		}
		name := strings.TrimSpace(norm.NFKC.String(l.Text))
		n := utf8.RuneCountInString(name)
		if n < 3 || n > 100 || seen[name] || !documentLink.MatchString(name) {
			continue
		}
		seen[name] = true
		out = append(out, name)
		if len(out) == 20 {
			break
		}
	}
	return out
}

func runeWindow(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

// lineWindow keeps the first n lines of s. The remainder of a label's own
// line counts as a line only when it holds text.
func lineWindow(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 && strings.TrimSpace(strings.Trim(s[:i], ":")) == "" {
		n++
	}
	pos := 0
	for range n {
		i := strings.IndexByte(s[pos:], '\n')
		if i < 0 {
			return s
		}
		pos += i + 1
	}
	return s[:pos]
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
