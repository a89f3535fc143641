package agent

import (
	"context"
	"io"
	"strings"
	"time"
	"unicode"

	"github.com/cloudwego/eino/schema"

	"personachat/internal/models"
)

// TokenSource yields successive raw content values from one runner
// invocation. Values may be bare suffixes, suffix-extended text, or the full
// accumulated text so far; the driver normalizes them. Next returns io.EOF on
// a clean end of stream.
type TokenSource interface {
	Next(ctx context.Context) (string, error)
	// NewItems returns structured history items the runner supplied at end
	// of stream, or nil when the driver should synthesize them.
	NewItems() []models.HistoryItem
	// Pacing is the delay inserted between emitted fragments.
	Pacing() time.Duration
	// Close releases any underlying stream. Safe to call more than once
	// and after Next has returned io.EOF.
	Close()
}

// streamSource adapts a native incremental runner stream.
type streamSource struct {
	reader *schema.StreamReader[*schema.Message]
	delay  time.Duration
	closed bool
}

func newStreamSource(reader *schema.StreamReader[*schema.Message], delay time.Duration) *streamSource {
	return &streamSource{reader: reader, delay: delay}
}

func (s *streamSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	chunk, err := s.reader.Recv()
	if err != nil {
		s.Close()
		if err == io.EOF {
			return "", io.EOF
		}
		return "", err
	}
	return chunk.Content, nil
}

func (s *streamSource) NewItems() []models.HistoryItem { return nil }

func (s *streamSource) Pacing() time.Duration { return s.delay }

func (s *streamSource) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.reader.Close()
}

// completionSource synthesizes a stream from a single final string so
// downstream consumers observe uniform incremental behavior regardless of
// runner shape. Fragments rejoin to the original text byte for byte.
type completionSource struct {
	chunks []string
	pos    int
	items  []models.HistoryItem
	delay  time.Duration
}

func newCompletionSource(text string, wordsPerChunk int, delay time.Duration, items []models.HistoryItem) *completionSource {
	return &completionSource{
		chunks: chunkWords(text, wordsPerChunk),
		items:  items,
		delay:  delay,
	}
}

func (s *completionSource) Next(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s.pos >= len(s.chunks) {
		return "", io.EOF
	}
	chunk := s.chunks[s.pos]
	s.pos++
	return chunk, nil
}

func (s *completionSource) NewItems() []models.HistoryItem { return s.items }

func (s *completionSource) Pacing() time.Duration { return s.delay }

func (s *completionSource) Close() {}

// chunkWords splits text into word groups of at most wordsPerChunk words,
// flushing early after sentence-ending punctuation. Whitespace is kept
// verbatim so the chunks concatenate back to the input exactly.
func chunkWords(text string, wordsPerChunk int) []string {
	if text == "" {
		return nil
	}
	if wordsPerChunk <= 0 {
		wordsPerChunk = 1
	}

	tokens := splitKeepingWhitespace(text)
	var chunks []string
	var current strings.Builder
	wordCount := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		wordCount = 0
	}

	for _, token := range tokens {
		current.WriteString(token)
		if strings.TrimSpace(token) == "" {
			continue
		}
		wordCount++
		if wordCount >= wordsPerChunk || endsSentence(token) {
			flush()
		}
	}
	flush()
	return chunks
}

// splitKeepingWhitespace tokenizes into alternating runs of whitespace and
// non-whitespace, preserving every byte.
func splitKeepingWhitespace(text string) []string {
	var tokens []string
	var current strings.Builder
	var inSpace bool

	for i, r := range text {
		isSpace := unicode.IsSpace(r)
		if i > 0 && isSpace != inSpace {
			tokens = append(tokens, current.String())
			current.Reset()
		}
		inSpace = isSpace
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		tokens = append(tokens, current.String())
	}
	return tokens
}

func endsSentence(word string) bool {
	switch {
	case strings.HasSuffix(word, "."), strings.HasSuffix(word, "!"), strings.HasSuffix(word, "?"):
		return true
	default:
		return false
	}
}
