package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResponseBareString(t *testing.T) {
	rule := &Rule{RuleID: "RL1", Type: RuleTypeKeyword, ResponseRaw: "Halo, ada yang bisa dibantu?"}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindText, rule.Response.Kind)
	assert.Equal(t, "Halo, ada yang bisa dibantu?", rule.Response.Text)
}

func TestNormalizeResponseQuotedJSONString(t *testing.T) {
	rule := &Rule{RuleID: "RL1", Type: RuleTypeKeyword, ResponseRaw: `{"message": "Selamat datang!"}`}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindText, rule.Response.Kind)
	assert.Equal(t, "Selamat datang!", rule.Response.Text)
}

func TestNormalizeResponseTextField(t *testing.T) {
	rule := &Rule{RuleID: "RL1", Type: RuleTypeKeyword, ResponseRaw: `{"text": "Info paket menyusul ya"}`}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindText, rule.Response.Kind)
	assert.Equal(t, "Info paket menyusul ya", rule.Response.Text)
}

func TestNormalizeResponseMedia(t *testing.T) {
	rule := &Rule{
		RuleID:      "RL1",
		Type:        RuleTypeKeyword,
		ResponseRaw: `{"media_url": "https://cdn.example.com/brosur.pdf", "caption": "Brosur umroh 2026"}`,
	}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindMedia, rule.Response.Kind)
	assert.Equal(t, "https://cdn.example.com/brosur.pdf", rule.Response.MediaURL)
	assert.Equal(t, "Brosur umroh 2026", rule.Response.Text)
}

func TestNormalizeResponseSequence(t *testing.T) {
	rule := &Rule{
		RuleID:      "RL1",
		Type:        RuleTypeWelcome,
		ResponseRaw: `{"messages": [{"text": "Assalamualaikum!"}, {"text": "Ada yang bisa kami bantu?", "delay_seconds": 2}]}`,
	}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindSequence, rule.Response.Kind)
	require.Len(t, rule.Response.Messages, 2)
	assert.Equal(t, 2, rule.Response.Messages[1].DelaySeconds)
}

func TestNormalizeResponseButtons(t *testing.T) {
	rule := &Rule{
		RuleID:      "RL1",
		Type:        RuleTypeKeyword,
		ResponseRaw: `{"text": "Pilih paket:", "buttons": ["Umroh Reguler", "Umroh Plus Turki"]}`,
	}

	require.NoError(t, rule.NormalizeResponse())
	assert.Equal(t, ResponseKindButtons, rule.Response.Kind)
	assert.Equal(t, []string{"Umroh Reguler", "Umroh Plus Turki"}, rule.Response.Buttons)
	assert.Equal(t, "Pilih paket:", rule.Response.Text)
}

func TestNormalizeResponseEmptyAllowedForDynamicTypes(t *testing.T) {
	for _, ruleType := range []string{RuleTypeWorkflow, RuleTypeLLMAgent, RuleTypeTemplate} {
		rule := &Rule{RuleID: "RL1", Type: ruleType}
		require.NoError(t, rule.NormalizeResponse(), "type %s", ruleType)
		assert.Nil(t, rule.Response)
	}
}

func TestNormalizeResponseEmptyRejectedForStaticTypes(t *testing.T) {
	rule := &Rule{RuleID: "RL1", Type: RuleTypeKeyword}
	assert.Error(t, rule.NormalizeResponse())
}

func TestNormalizeResponseMalformed(t *testing.T) {
	rule := &Rule{RuleID: "RL1", Type: RuleTypeKeyword, ResponseRaw: `{"messages": "not-an-array"}`}
	assert.Error(t, rule.NormalizeResponse())

	rule = &Rule{RuleID: "RL2", Type: RuleTypeKeyword, ResponseRaw: `{}`}
	assert.Error(t, rule.NormalizeResponse())
}

func TestKeywordListFormats(t *testing.T) {
	rule := &Rule{Keywords: `["harga", "paket"]`}
	assert.Equal(t, []string{"harga", "paket"}, rule.KeywordList())

	// Legacy comma-separated form
	rule = &Rule{Keywords: "harga, paket , jadwal"}
	assert.Equal(t, []string{"harga", "paket", "jadwal"}, rule.KeywordList())

	rule = &Rule{}
	assert.Nil(t, rule.KeywordList())
}

func TestAwayScheduleConfig(t *testing.T) {
	rule := &Rule{}
	assert.Nil(t, rule.AwayScheduleConfig())

	rule = &Rule{Schedule: `{"days": [1,2,3,4,5], "start_hour": 9, "end_hour": 17}`}
	schedule := rule.AwayScheduleConfig()
	require.NotNil(t, schedule)
	assert.Equal(t, 9, schedule.StartHour)
	assert.Equal(t, 17, schedule.EndHour)
	assert.Contains(t, schedule.Days, time.Monday)
}

func TestResponsePreviewTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "panjang_sekali "
	}
	resp := &RuleResponse{Kind: ResponseKindText, Text: long}
	preview := resp.Preview()
	assert.LessOrEqual(t, len(preview), 123)
	assert.Contains(t, preview, "...")
}

func TestResponsePreviewKeepsRunesIntact(t *testing.T) {
	resp := &RuleResponse{Kind: ResponseKindText, Text: strings.Repeat("🕌", 130)}
	preview := resp.Preview()
	assert.True(t, utf8.ValidString(preview))
	assert.Equal(t, strings.Repeat("🕌", 120)+"...", preview)
}
