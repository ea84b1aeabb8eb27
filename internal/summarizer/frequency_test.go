package summarizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrequencySummarizer_PicksFrequentSentences(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Zebras graze on the plains.\nThe weather was mild today. Zebras run and zebras graze together! Nothing else happened."

	out, err := s.Summarize(text, 2)
	require.NoError(t, err)
	assert.Equal(t, "Zebras graze on the plains. Zebras run and zebras graze together!", out)
}

func TestFrequencySummarizer_EdgeCases(t *testing.T) {
	s := NewFrequencySummarizer()

	out, err := s.Summarize("  \n\t ", 3)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = s.Summarize("no terminal punctuation\nhere", 3)
	require.NoError(t, err)
	assert.Equal(t, "no terminal punctuation here", out)

	out, err = s.Summarize("One. Two.", 10)
	require.NoError(t, err)
	assert.Equal(t, "One. Two.", out)
}
