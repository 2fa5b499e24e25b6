package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/grantwatch/internal/fetcher"
)

var testNow = time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)

const monodukuriText = `ものづくり・商業・サービス生産性向上促進補助金
事業概要
中小企業等が行う革新的な製品・サービス開発又は生産プロセス等の省力化に必要な設備投資等を支援します。
補助上限額
1,250万円
補助率
中小企業 1/2、小規模事業者 2/3
申請期間
令和8年4月1日(水)~令和8年6月30日(火)17:00
対象者
日本国内に本社を有する中小企業者
補助対象経費
・機械装置・システム構築費
・技術導入費
・専門家経費
必要書類
・事業計画書
・賃金引上げ計画の誓約書
・決算書(直近2期分)
お問い合わせ
事務局`

func TestExtract_FullPage(t *testing.T) {
	page := &fetcher.Page{URL: "https://portal.monodukuri-hojo.jp/about.html", Text: monodukuriText}
	res := Extract(page, testNow)
	f := res.Fields

	require.NotNil(t, f.MaxAmount)
	assert.Equal(t, int64(12_500_000), *f.MaxAmount)
	assert.Nil(t, f.MinAmount)

	assert.Equal(t, "1/2", f.Rate)
	assert.Equal(t, "中小企業 1/2、小規模事業者 2/3", f.RateDetail)

	require.NotNil(t, f.OpenAt)
	require.NotNil(t, f.Deadline)
	assert.Equal(t, time.Date(2026, 3, 31, 15, 0, 0, 0, time.UTC), *f.OpenAt)
	assert.Equal(t, time.Date(2026, 6, 30, 14, 59, 59, 0, time.UTC), *f.Deadline)
	assert.Equal(t, "申請期間 令和8年4月1日(水)~令和8年6月30日", f.DeadlineText)
	assert.False(t, f.Ongoing)

	assert.Equal(t, "中小企業等が行う革新的な製品・サービス開発又は生産プロセス等の省力化に必要な設備投資等を支援します。", f.Overview)
	assert.Equal(t, "日本国内に本社を有する中小企業者", f.Eligibility)
	assert.Equal(t, []string{"機械装置", "システム構築費", "技術導入費", "専門家経費"}, f.EligibleExpenses)
	assert.Equal(t, []string{"事業計画書", "賃金引上げ計画の誓約書", "決算書(直近2期分)"}, f.RequiredDocuments)
	assert.Equal(t, DocsFromPage, f.RequiredDocumentsSource)

	assert.True(t, f.HasAmountOrRate())
	assert.True(t, f.HasDeadline())
	assert.True(t, f.HasOverview())
	assert.True(t, f.HasRequiredDocuments())

	assert.Nil(t, res.Estimates.Deadline)
	assert.Equal(t, page.URL, res.Estimates.OfficialURL)
}

func TestExtract_LinksAndOngoing(t *testing.T) {
	page := &fetcher.Page{
		URL:  "https://www.city.example.lg.jp/shien/index.html",
		Text: "令和8年度 小規模事業者支援補助金\n随時受付\n補助率：２／３以内",
		Links: []fetcher.Link{
			{URL: "https://www.city.example.lg.jp/shien/koubo.pdf", Text: "公募要領"},
			{URL: "https://www.city.example.lg.jp/shien/youshiki1.docx", Text: "申請様式第1号"},
			{URL: "https://www.city.example.lg.jp/shien/logo.pdf", Text: "ロゴマーク"},
			{URL: "https://www.city.example.lg.jp/shien/about.html", Text: "申請書について"},
		},
	}
	res := Extract(page, testNow)
	f := res.Fields

	assert.True(t, f.Ongoing)
	assert.Nil(t, f.Deadline)
	assert.Nil(t, res.Estimates.Deadline)
	assert.Equal(t, "2/3", f.Rate)
	assert.Equal(t, "補助率:2/3以内", f.RateDetail)
	assert.Equal(t, []string{"公募要領", "申請様式第1号"}, f.RequiredDocuments)
	assert.Equal(t, DocsFromLinks, f.RequiredDocumentsSource)
	assert.Equal(t, []string{"https://www.city.example.lg.jp/shien/koubo.pdf"}, f.Attachments)
}

func TestExtract_FiscalYearEstimate(t *testing.T) {
	res := Extract(&fetcher.Page{Text: "令和8年度 地域産業振興補助金のご案内"}, testNow)
	assert.Nil(t, res.Fields.Deadline)
	require.NotNil(t, res.Estimates.Deadline)
	assert.Equal(t, time.Date(2027, 3, 31, 14, 59, 59, 0, time.UTC), *res.Estimates.Deadline)
	assert.Equal(t, "fiscal_year_end", res.Estimates.Extra["deadline_estimated"])
}

func TestExtract_NilPage(t *testing.T) {
	res := Extract(nil, testNow)
	assert.Nil(t, res.Fields.MaxAmount)
	assert.Empty(t, res.Estimates.OfficialURL)
}

func TestParsePeriod(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		open     *time.Time
		deadline *time.Time
	}{
		{
			name:     "short end date borrows year",
			text:     "受付期間：2026年5月1日（金）～6月12日（金）",
			open:     ptr(time.Date(2026, 4, 30, 15, 0, 0, 0, time.UTC)),
			deadline: ptr(time.Date(2026, 6, 12, 14, 59, 59, 0, time.UTC)),
		},
		{
			name:     "single deadline",
			text:     "申請締切 令和8年7月31日",
			deadline: ptr(time.Date(2026, 7, 31, 14, 59, 59, 0, time.UTC)),
		},
		{
			name:     "until without label",
			text:     "申請書は2026/08/15まで必着で郵送してください。",
			deadline: ptr(time.Date(2026, 8, 15, 14, 59, 59, 0, time.UTC)),
		},
		{
			name: "start only",
			text: "募集期間\n令和8年9月1日(月)から受付開始",
			open: ptr(time.Date(2026, 8, 31, 15, 0, 0, 0, time.UTC)),
		},
		{
			name: "implausible year ignored",
			text: "申請期限 1999年1月1日",
		},
		{
			name: "invalid date ignored",
			text: "申請期限 2026年2月30日",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Extract(&fetcher.Page{Text: tt.text}, testNow)
			assert.Equal(t, tt.open, res.Fields.OpenAt)
			assert.Equal(t, tt.deadline, res.Fields.Deadline)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		num, unit string
		want      int64
		ok        bool
	}{
		{"1,250", "万", 12_500_000, true},
		{"1.5", "億", 150_000_000, true},
		{"500,000", "", 500_000, true},
		{"3", "千万", 30_000_000, true},
		{"0", "万", 0, false},
		{"abc", "", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.num, tt.unit)
		assert.Equal(t, tt.ok, ok, tt.num+tt.unit)
		assert.Equal(t, tt.want, got, tt.num+tt.unit)
	}
}

func TestExtract_Amounts(t *testing.T) {
	tests := []struct {
		text string
		want int64
	}{
		{"助成限度額：300万円", 3_000_000},
		{"補助金額 最大1億円", 100_000_000},
		{"上限 50万円(下限10万円)", 500_000},
		{"１事業者あたり最大２００万円を補助します", 2_000_000},
	}
	for _, tt := range tests {
		res := Extract(&fetcher.Page{Text: tt.text}, testNow)
		require.NotNil(t, res.Fields.MaxAmount, tt.text)
		assert.Equal(t, tt.want, *res.Fields.MaxAmount, tt.text)
	}

	res := Extract(&fetcher.Page{Text: "上限 50万円(下限10万円)"}, testNow)
	require.NotNil(t, res.Fields.MinAmount)
	assert.Equal(t, int64(100_000), *res.Fields.MinAmount)
}

func TestExtract_Rates(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"補助率 3分の2以内", "2/3"},
		{"助成率：50％", "50%"},
		{"補助率 定額", "定額"},
		{"概要のみ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Extract(&fetcher.Page{Text: tt.text}, testNow).Fields.Rate, tt.text)
	}
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("令和元年5月1日")
	require.True(t, ok)
	assert.Equal(t, 2019, d.Year())

	d, ok = ParseDate("2026/4/1")
	require.True(t, ok)
	assert.Equal(t, time.April, d.Month())

	_, ok = ParseDate("来年度")
	assert.False(t, ok)
}

func TestToList(t *testing.T) {
	got := toList("1. 申請書\n(2) 事業計画書\n※ 見積書\n・\n申請書")
	assert.Equal(t, []string{"申請書", "事業計画書", "見積書"}, got)
	assert.Nil(t, toList(""))
}

func TestCutLabel(t *testing.T) {
	rest, ok := cutLabel("【概要】この事業は", overviewLabels)
	assert.True(t, ok)
	assert.Equal(t, "この事業は", rest)

	_, ok = cutLabel("目的別に探す", overviewLabels)
	assert.False(t, ok)

	rest, ok = cutLabel("■ 対象者: 中小企業", eligibilityLabels)
	assert.True(t, ok)
	assert.Equal(t, "中小企業", rest)
}

func ptr(t time.Time) *time.Time { return &t }
