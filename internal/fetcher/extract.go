package fetcher

import (
	"bytes"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var metaCharset = regexp.MustCompile(`(?i)<meta[^>]+charset\s*=\s*["']?([\w-]+)`)

const sniffBytes = 2048

// decodeCharset converts body to UTF-8 using the Content-Type charset or a
// <meta charset> declaration. Unknown charsets are passed through.
func decodeCharset(body []byte, contentType string) string {
	name := ""
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		name = params["charset"]
	}
	if name == "" {
		head := body
		if len(head) > sniffBytes {
			head = head[:sniffBytes]
		}
		if m := metaCharset.FindSubmatch(head); m != nil {
			name = string(m[1])
		}
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" || name == "utf-8" || name == "utf8" {
		return string(body)
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return string(body)
	}
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return string(body)
	}
	return string(decoded)
}

var spaceRun = regexp.MustCompile(`[ \t\r\f\v\x{3000}]+`)
var blankLines = regexp.MustCompile(`\n\s*\n+`)

// collapseSpace squeezes horizontal whitespace and blank lines.
func collapseSpace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}

// parseHTML fills the page's HTML, Title, Text and Links.
func parseHTML(page *Page, base *url.URL, html string) error {
	doc, err := goquery.NewDocumentFromReader(bytes.NewBufferString(html))
	if err != nil {
		return eris.Wrapf(err, "fetcher: parse html %s", page.URL)
	}
	page.HTML = html
	page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	if page.Title == "" {
		page.Title = strings.TrimSpace(doc.Find("h1").First().Text())
	}

	seen := make(map[string]bool)
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		abs := resolve(base, href)
		if abs == "" || seen[abs] {
			return
		}
		seen[abs] = true
		page.Links = append(page.Links, Link{URL: abs, Text: collapseSpace(s.Text())})
	})

	doc.Find("script, style, noscript, template").Remove()
	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	// Block elements end a line so that labels stay next to their values.
	body.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6, dt, dd, th, td").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})
	page.Text = collapseSpace(body.Text())
	return nil
}

func resolve(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	abs.Fragment = ""
	return abs.String()
}
