package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextShortInputIsOneChunk(t *testing.T) {
	chunks := SplitText("Just one short sentence.", 1000, 100)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Just one short sentence.", chunks[0])
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Nil(t, SplitText("", 1000, 100))
	assert.Nil(t, SplitText("   \n\t  ", 1000, 100))
}

func TestSplitTextRespectsSize(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 80; i++ {
		b.WriteString("The quick brown fox jumps over the lazy dog near the river bank. ")
	}

	chunks := SplitText(b.String(), 500, 50)
	require.Greater(t, len(chunks), 1)

	for _, c := range chunks {
		// sentence boundaries may push slightly past the target
		assert.LessOrEqual(t, len(c), 600)
	}
}

func TestSplitTextCarriesOverlap(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString("Sentence number fills the buffer with ordinary words today. ")
	}

	chunks := SplitText(b.String(), 300, 100)
	require.Greater(t, len(chunks), 1)

	// the tail of each chunk reappears at the head of the next
	for i := 1; i < len(chunks); i++ {
		prev := chunks[i-1]
		tail := prev[len(prev)-30:]
		assert.Contains(t, chunks[i][:150], strings.TrimSpace(tail))
	}
}

func TestSplitTextHardSplitsOversizedSentence(t *testing.T) {
	long := strings.Repeat("x", 2500)

	chunks := SplitText(long, 1000, 100)
	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 1000)
	}

	// no content lost
	joined := strings.Join(chunks, "")
	assert.GreaterOrEqual(t, len(joined), 2500)
}

func TestHardSplitCoversWholeInput(t *testing.T) {
	text := strings.Repeat("abcdefghij", 30)

	chunks := hardSplit(text, 100, 20)
	require.NotEmpty(t, chunks)
	assert.Equal(t, text[:100], chunks[0])
	last := chunks[len(chunks)-1]
	assert.True(t, strings.HasSuffix(text, last))
}
