package builder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_Short(t *testing.T) {
	chunks := SplitText("hello\nworld\n", 1000, 200)
	require.Len(t, chunks, 1)
	assert.Equal(t, "hello\nworld", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 12, chunks[0].End)
}

func TestSplitText_Empty(t *testing.T) {
	assert.Empty(t, SplitText("", 1000, 200))
	assert.Empty(t, SplitText("   \n\n", 1000, 200))
}

func TestSplitText_SizeAndOverlap(t *testing.T) {
	line := strings.Repeat("x", 39) + "\n"
	content := strings.Repeat(line, 100) // 4000 bytes

	chunks := SplitText(content, 1000, 200)
	require.Greater(t, len(chunks), 4)

	for i, c := range chunks {
		assert.LessOrEqual(t, c.End-c.Start, 1000, "chunk %d too large", i)
		assert.Equal(t, strings.TrimSpace(content[c.Start:c.End]), c.Text)
		if i > 0 {
			assert.Equal(t, chunks[i-1].End-200, c.Start, "chunk %d overlap", i)
		}
	}
	assert.Equal(t, len(content), chunks[len(chunks)-1].End)
}

func TestSplitText_LongLine(t *testing.T) {
	content := strings.Repeat("é", 1500) // 3000 bytes, no newline
	chunks := SplitText(content, 1000, 200)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 1000)
		assert.True(t, strings.HasPrefix(content[c.Start:], c.Text))
	}
	assert.Equal(t, len(content), chunks[len(chunks)-1].End)
}

func TestSplitText_InvalidOverlap(t *testing.T) {
	chunks := SplitText(strings.Repeat("word ", 100), 100, 500)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Text), 100)
	}
}
