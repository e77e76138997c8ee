package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyPicksBestLabel(t *testing.T) {
	classifier := NewKeywordIntentClassifier()

	intent, err := classifier.Classify("Berapa harga paketnya?")
	require.NoError(t, err)
	assert.Equal(t, "price_inquiry", intent.Label)
	assert.Greater(t, intent.Confidence, 0.5)
}

func TestClassifyNeutralWhenNothingMatches(t *testing.T) {
	classifier := NewKeywordIntentClassifier()

	intent, err := classifier.Classify("zzz")
	require.NoError(t, err)
	assert.Equal(t, IntentNeutral, intent.Label)
	assert.Equal(t, 0.3, intent.Confidence)
}

func TestExtractEntities(t *testing.T) {
	extractor := NewLexiconEntityExtractor(DefaultLexicon())

	entities, err := extractor.Extract("Umroh reguler dari Surabaya bulan maret, 3 orang budget 30 juta", "")
	require.NoError(t, err)
	assert.Equal(t, "surabaya", entities["city"])
	assert.Equal(t, "maret", entities["month"])
	assert.Equal(t, "umroh reguler", entities["package"])
	assert.Equal(t, "3", entities["party_size"])
	assert.Equal(t, "30", entities["budget"])
}

func TestExtractEntitiesEmptyMessage(t *testing.T) {
	extractor := NewLexiconEntityExtractor(DefaultLexicon())

	entities, err := extractor.Extract("ok", "")
	require.NoError(t, err)
	assert.Empty(t, entities)
}
