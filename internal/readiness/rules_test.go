package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRules_Loaded(t *testing.T) {
	r := DefaultRules()
	codes := make([]string, 0, len(r.Exclusions))
	for _, rule := range r.Exclusions {
		codes = append(codes, rule.Code)
	}
	assert.Equal(t, []string{"KOFU_SHINSEI", "SENGEN_NINTEI", "GUIDELINE_ONLY", "RENSHU_TEST", "CLOSED", "OLD_FISCAL_YEAR"}, codes)
	assert.Equal(t, "default_fallback_v1", r.Fallback.Source)
	assert.Equal(t, []string{"公募要領", "申請書", "事業計画書", "見積書", "会社概要"}, r.Fallback.Documents)
	assert.Equal(t, 2, r.Searchable.MinSignals)
}

func TestExclusion(t *testing.T) {
	r := DefaultRules()
	tests := []struct {
		title    string
		overview string
		want     string
	}{
		{"ものづくり補助金 交付決定後の手続きについて", "", "KOFU_SHINSEI"},
		{"【成長宣言】企業の募集", "", "SENGEN_NINTEI"},
		{"認定制度 のご案内", "", "SENGEN_NINTEI"},
		{"地域振興補助金", "本事業は 認定制度 として運用", "SENGEN_NINTEI"},
		{"補助金申請の手引き", "", "GUIDELINE_ONLY"},
		{"テスト用 申請フォーム", "", "RENSHU_TEST"},
		{"【受付終了】IT導入補助金", "", "CLOSED"},
		{"令和2年度 持続化補助金", "", "OLD_FISCAL_YEAR"},
		{"平成31年度 創業補助金", "", "OLD_FISCAL_YEAR"},
		{"令和8年度ものづくり補助金公募", "", ""},
		// title-only rules ignore the overview.
		{"事業再構築補助金", "交付決定後に実績報告書の提出が必要です。手引きを参照。", ""},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			rule, ok := r.Exclusion(tt.title, tt.overview)
			if tt.want == "" {
				assert.False(t, ok, "matched %s", rule.Code)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.want, rule.Code)
		})
	}
}

func TestLoadRules_Errors(t *testing.T) {
	_, err := LoadRules([]byte("exclusions: [\n"))
	assert.Error(t, err)

	_, err = LoadRules([]byte("exclusions:\n  - code: BAD\n    pattern: '(unclosed'\n"))
	assert.Error(t, err)

	_, err = LoadRules([]byte("exclusions:\n  - pattern: 'x'\n"))
	assert.Error(t, err)
}

func TestLoadRules_SearchableDefaults(t *testing.T) {
	r, err := LoadRules([]byte("exclusions: []\n"))
	require.NoError(t, err)
	assert.Equal(t, 2, r.Searchable.MinSignals)
	assert.Equal(t, 20, r.Searchable.OverviewMinRunes)
}
