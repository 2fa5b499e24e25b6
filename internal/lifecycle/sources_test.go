package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySource(t *testing.T) {
	tests := []struct {
		url        string
		sourceType string
		docType    string
	}{
		{"https://www.chusho.meti.go.jp/koubo/youryou.pdf", SourceMinistry, DocGuideline},
		{"https://www.pref.aichi.jp/soshiki/faq.html", SourcePrefecture, DocFAQ},
		{"https://www.pref.kyoto.lg.jp/news/123.html", SourcePrefecture, DocNews},
		{"https://www.city.osaka.lg.jp/keizai/yoshiki.xlsx", SourceCity, DocForm},
		{"https://portal.example.jp/information/1", SourcePortal, DocNews},
		{"https://jgrants-portal.go.jp/subsidy/a0W", SourceMinistry, DocNews},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			s := ClassifySource(tt.url)
			assert.Equal(t, tt.sourceType, s.SourceType)
			assert.Equal(t, tt.docType, s.DocType)
		})
	}
}

func TestSourcesFor(t *testing.T) {
	got := SourcesFor(
		"https://portal.example.jp/s/1",
		"https://hojo-jimukyoku.jp/faq/",
		[]string{"", "https://portal.example.jp/s/1", "ftp://x/y.pdf", "https://www.meti.go.jp/a.pdf"},
	)
	require.Len(t, got, 3)
	assert.Equal(t, Source{URL: "https://hojo-jimukyoku.jp/faq/", SourceType: SourceSecretariat, DocType: DocFAQ}, got[0])
	assert.Equal(t, SourcePortal, got[1].SourceType)
	assert.Equal(t, Source{URL: "https://www.meti.go.jp/a.pdf", SourceType: SourceMinistry, DocType: DocGuideline}, got[2])

	assert.Empty(t, SourcesFor("", "", nil))
}

func TestSourceValidate(t *testing.T) {
	assert.NoError(t, Source{URL: "https://a.jp/x", SourceType: SourceCity, DocType: DocForm}.Validate())
	assert.Error(t, Source{URL: "not a url", SourceType: SourceCity, DocType: DocForm}.Validate())
	assert.Error(t, Source{URL: "https://a.jp/x", SourceType: "blog", DocType: DocForm}.Validate())
	assert.Error(t, Source{URL: "https://a.jp/x", SourceType: SourceCity, DocType: "misc"}.Validate())
}

func TestAddSources(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO lifecycle_sources .* DO NOTHING").
		WithArgs("e1", "https://a.jp/faq", SourceSecretariat, DocFAQ).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO lifecycle_sources .* DO NOTHING").
		WithArgs("e1", "https://a.jp/news", SourceSecretariat, DocNews).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	n, err := AddSources(context.Background(), mock, "e1", []Source{
		{URL: "https://a.jp/faq", SourceType: SourceSecretariat, DocType: DocFAQ},
		{URL: "https://a.jp/news", SourceType: SourceSecretariat, DocType: DocNews},
	}, false)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSources_ReplaceUpdatesTags(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO lifecycle_sources .* DO UPDATE SET source_type").
		WithArgs("e1", "https://a.jp/x", SourcePrefecture, DocGuideline).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	n, err := AddSources(context.Background(), mock, "e1",
		[]Source{{URL: "https://a.jp/x", SourceType: SourcePrefecture, DocType: DocGuideline}}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddSources_Errors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = AddSources(context.Background(), mock, "e1", []Source{{URL: "https://a.jp/x", SourceType: "blog", DocType: DocNews}}, false)
	assert.Error(t, err)

	mock.ExpectExec("INSERT INTO lifecycle_sources").WillReturnError(errors.New("fk violation"))
	_, err = AddSources(context.Background(), mock, "missing",
		[]Source{{URL: "https://a.jp/x", SourceType: SourcePortal, DocType: DocNews}}, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lifecycle: add source missing")
	assert.NoError(t, mock.ExpectationsWereMet())
}
