package chunker

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidChunking marks a bad chunk_size/overlap combination. It is a
// configuration error: reject at startup, never start the sliding window.
var ErrInvalidChunking = errors.New("invalid chunking parameters")

type Config struct {
	ChunkSize int
	Overlap   int
}

type Chunker struct {
	config Config
}

func NewWithConfig(config Config) (Chunker, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = 900
	}
	if config.ChunkSize < 1 {
		return Chunker{}, fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunking, config.ChunkSize)
	}
	if config.Overlap < 0 || config.Overlap >= config.ChunkSize {
		return Chunker{}, fmt.Errorf("%w: overlap must be in [0, chunk_size), got overlap=%d chunk_size=%d",
			ErrInvalidChunking, config.Overlap, config.ChunkSize)
	}
	return Chunker{config: config}, nil
}

// Clean collapses every whitespace run to a single space and trims the
// ends. Chunking operates on cleaned text only.
func Clean(text string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(text), " "))
}

// Split emits fixed windows of ChunkSize characters, each starting
// ChunkSize-Overlap after the previous, clipped at the end of the text.
// Windows are measured in runes, not bytes, so a boundary never lands
// inside a multibyte character. Chunks come out in left-to-right order
// and together cover every character of the input.
func (c Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	step := c.config.ChunkSize - c.config.Overlap
	var chunks []string
	for i := 0; ; i += step {
		end := i + c.config.ChunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[i:]))
			return chunks
		}
		chunks = append(chunks, string(runes[i:end]))
	}
}

// SplitCapped keeps the first maxChunks windows and silently drops the
// rest. Callers that need full coverage raise the cap.
func (c Chunker) SplitCapped(text string, maxChunks int) []string {
	chunks := c.Split(text)
	if maxChunks > 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}
	return chunks
}
