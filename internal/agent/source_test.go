package agent

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"personachat/internal/models"
)

func TestChunkWordsRoundTripsExactly(t *testing.T) {
	inputs := []string{
		"A quick test.",
		"Hello world this is a longer reply with quite a few words in it",
		"One. Two! Three?",
		"Line one.\n\nLine two with\ttabs and   extra spaces.",
		"trailing whitespace stays ",
		"  leading too",
		"emoji 🎉 and ünïcode survive",
		"single",
	}
	for _, input := range inputs {
		for _, words := range []int{1, 2, 4, 10} {
			chunks := chunkWords(input, words)
			assert.Equal(t, input, strings.Join(chunks, ""), "input %q words %d", input, words)
		}
	}
}

func TestChunkWordsEmptyInput(t *testing.T) {
	assert.Nil(t, chunkWords("", 4))
}

func TestChunkWordsFlushesAfterSentenceEnd(t *testing.T) {
	chunks := chunkWords("Hi. There we go", 4)
	require.NotEmpty(t, chunks)
	assert.Equal(t, "Hi.", chunks[0])
}

func TestChunkWordsRespectsWordLimit(t *testing.T) {
	chunks := chunkWords("a b c d e", 2)
	assert.Equal(t, []string{"a b", " c d", " e"}, chunks)
}

func TestCompletionSourceEmitsChunksThenEOF(t *testing.T) {
	source := newCompletionSource("one two three four five", 2, 0, nil)

	var got []string
	for {
		chunk, err := source.Next(context.Background())
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, chunk)
	}
	assert.Equal(t, "one two three four five", strings.Join(got, ""))
	assert.Len(t, got, 3)

	_, err := source.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCompletionSourceEmptyText(t *testing.T) {
	source := newCompletionSource("", 4, 0, nil)
	_, err := source.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestCompletionSourceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	source := newCompletionSource("hello there", 4, 0, nil)
	_, err := source.Next(ctx)
	assert.Error(t, err)
}

func TestCompletionSourceReturnsSuppliedItems(t *testing.T) {
	items := []models.HistoryItem{NewAssistantItem("hello there")}
	source := newCompletionSource("hello there", 4, 0, items)
	assert.Equal(t, items, source.NewItems())
	source.Close()
}
