package discovery

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeKey(t *testing.T) {
	k := DedupeKey("src-jnet21", "https://j-net21.smrj.go.jp/snavi/articles/123", "")

	assert.True(t, strings.HasPrefix(k, "src-jnet21:"))
	assert.Len(t, strings.TrimPrefix(k, "src-jnet21:"), 12)
	assert.Equal(t, k, DedupeKey("src-jnet21", "https://j-net21.smrj.go.jp/snavi/articles/123", ""))
}

func TestDedupeKey_Normalization(t *testing.T) {
	base := DedupeKey("s", "https://example.go.jp/a/123", "")

	assert.Equal(t, base, DedupeKey("s", "  HTTPS://Example.GO.JP/a/123#section  ", ""))
	assert.Equal(t, base, DedupeKey("s", "https://example.go.jp/a/１２３", ""))
	assert.NotEqual(t, base, DedupeKey("s", "https://example.go.jp/a/124", ""))
	assert.NotEqual(t, base, DedupeKey("other", "https://example.go.jp/a/123", ""))
}

func TestDedupeKey_TitleFallback(t *testing.T) {
	a := DedupeKey("s", "", "ものづくり補助金")
	b := DedupeKey("s", "", " ものづくり補助金 ")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, DedupeKey("s", "", "IT導入補助金"))
}

func TestContentHash(t *testing.T) {
	amount := int64(10_000_000)
	deadline := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	c := Candidate{SourceID: "s", Title: "t", Summary: "sum", MaxAmount: &amount, Rate: "1/2", Deadline: &deadline, Status: "open"}

	h := ContentHash(c)
	assert.Len(t, h, 16)
	assert.Equal(t, h, ContentHash(c))

	changed := []Candidate{c, c, c, c, c, c}
	changed[0].Title = "t2"
	changed[1].Summary = "sum2"
	other := int64(1)
	changed[2].MaxAmount = &other
	changed[3].Rate = "2/3"
	later := deadline.AddDate(0, 1, 0)
	changed[4].Deadline = &later
	changed[5].Status = "closed"
	for i, cc := range changed {
		assert.NotEqual(t, h, ContentHash(cc), "field %d", i)
	}

	// URL and region are not part of the content fingerprint.
	same := c
	same.URL = "https://x.go.jp"
	same.RegionCode = "13"
	assert.Equal(t, h, ContentHash(same))
}
