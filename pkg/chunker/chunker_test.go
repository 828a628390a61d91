package chunker_test

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilarc/ragfence/pkg/chunker"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "a b c", chunker.Clean("  a\t\tb \n\n c "))
	assert.Equal(t, "", chunker.Clean(" \n\t "))
	assert.Equal(t, "plain", chunker.Clean("plain"))
}

func TestSplit_WindowOffsets(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 900, Overlap: 150})
	require.NoError(t, err)

	text := strings.Repeat("x", 2000)
	chunks := c.Split(text)

	require.Len(t, chunks, 3) // offsets 0, 750, 1500
	assert.Len(t, chunks[0], 900)
	assert.Len(t, chunks[1], 900)
	assert.Len(t, chunks[2], 500)
}

func TestSplit_CoverageReconstruction(t *testing.T) {
	cases := []struct {
		size, overlap, length int
	}{
		{10, 0, 95},
		{10, 3, 95},
		{900, 150, 2000},
		{50, 49, 130},
		{64, 16, 64},
		{64, 16, 10},
	}
	for _, tc := range cases {
		c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: tc.size, Overlap: tc.overlap})
		require.NoError(t, err)

		text := strings.Repeat("abcdefghij", tc.length/10+1)[:tc.length]
		chunks := c.Split(text)
		require.NotEmpty(t, chunks)

		// Concatenating chunks with the overlap removed reconstructs the
		// input exactly.
		rebuilt := chunks[0]
		for _, ch := range chunks[1:] {
			rebuilt += ch[tc.overlap:]
		}
		assert.Equal(t, text, rebuilt, "size=%d overlap=%d len=%d", tc.size, tc.overlap, tc.length)

		// Termination bound from the window arithmetic.
		maxSteps := (tc.length+(tc.size-tc.overlap)-1)/(tc.size-tc.overlap) + 1
		assert.LessOrEqual(t, len(chunks), maxSteps)
	}
}

func TestSplit_MultibyteRuneBoundaries(t *testing.T) {
	// Windows count runes, so a boundary never cuts a multibyte character
	// in half and every chunk stays valid UTF-8.
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 5, Overlap: 0})
	require.NoError(t, err)

	text := strings.Repeat("é", 10)
	chunks := c.Split(text)
	require.Len(t, chunks, 2)
	for i, ch := range chunks {
		assert.True(t, utf8.ValidString(ch), "chunk %d is invalid UTF-8: %q", i, ch)
		assert.Equal(t, 5, utf8.RuneCountInString(ch))
	}
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestSplit_MultibyteWithOverlap(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 6, Overlap: 2})
	require.NoError(t, err)

	text := strings.Repeat("日本語", 5) // 15 runes, 45 bytes
	chunks := c.Split(text)
	require.NotEmpty(t, chunks)

	rebuilt := []rune(chunks[0])
	for _, ch := range chunks[1:] {
		assert.True(t, utf8.ValidString(ch))
		rebuilt = append(rebuilt, []rune(ch)[2:]...)
	}
	assert.Equal(t, text, string(rebuilt))
}

func TestSplit_EmptyText(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 100, Overlap: 10})
	require.NoError(t, err)
	assert.Empty(t, c.Split(""))
}

func TestSplitCapped(t *testing.T) {
	c, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 10, Overlap: 0})
	require.NoError(t, err)

	text := strings.Repeat("y", 100)
	assert.Len(t, c.SplitCapped(text, 3), 3)
	assert.Len(t, c.SplitCapped(text, 0), 10)
	assert.Len(t, c.SplitCapped(text, 50), 10)
}

func TestNewWithConfig_RejectsBadOverlap(t *testing.T) {
	// overlap >= chunk_size would never advance; it must fail before any
	// chunking starts.
	_, err := chunker.NewWithConfig(chunker.Config{ChunkSize: 100, Overlap: 100})
	assert.ErrorIs(t, err, chunker.ErrInvalidChunking)

	_, err = chunker.NewWithConfig(chunker.Config{ChunkSize: 100, Overlap: 150})
	assert.ErrorIs(t, err, chunker.ErrInvalidChunking)

	_, err = chunker.NewWithConfig(chunker.Config{ChunkSize: 100, Overlap: -1})
	assert.ErrorIs(t, err, chunker.ErrInvalidChunking)
}
