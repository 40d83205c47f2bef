package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func para(word string, tokens int) string {
	// one word is 4 chars plus a space: about 1.25 tokens each
	n := tokens * charsPerToken / (len(word) + 1)
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestSplitTextDenseIndices(t *testing.T) {
	text := strings.Join([]string{
		para("lorem", 60),
		para("ipsum", 60),
		para("dolor", 60),
	}, "\n\n")

	chunks := SplitText(text, 100, 10)
	require.GreaterOrEqual(t, len(chunks), 2)

	for i, c := range chunks {
		assert.Equal(t, i, c.Index)
		assert.NotEmpty(t, c.Text)
		assert.Greater(t, c.TokenCount, 0)
	}
}

func TestSplitTextOverlapSeedsNextChunk(t *testing.T) {
	text := strings.Join([]string{
		para("alpha", 80),
		para("bravo", 80),
	}, "\n\n")

	chunks := SplitText(text, 100, 10)
	require.Len(t, chunks, 2)

	tail := tailRunes(chunks[0].Text, 10*charsPerToken)
	assert.True(t, strings.HasPrefix(chunks[1].Text, tail),
		"second chunk should start with the first chunk's tail")
	assert.Contains(t, chunks[1].Text, "bravo")
}

func TestSplitTextZeroOverlap(t *testing.T) {
	first := para("alpha", 80)
	second := para("bravo", 80)

	chunks := SplitText(first+"\n\n"+second, 100, 0)
	require.Len(t, chunks, 2)
	assert.Equal(t, first, chunks[0].Text)
	assert.Equal(t, second, chunks[1].Text)
}

func TestSplitTextOversizedParagraphStaysWhole(t *testing.T) {
	big := para("gigantic", 500)

	chunks := SplitText(big, 100, 10)
	require.Len(t, chunks, 1)
	assert.Equal(t, big, chunks[0].Text)
	assert.Greater(t, chunks[0].TokenCount, 100)
}

func TestSplitTextEmptyInput(t *testing.T) {
	assert.Nil(t, SplitText("", 100, 10))
	assert.Nil(t, SplitText("   \n\n \t\n\n  ", 100, 10))
}

func TestSplitTextDeterministic(t *testing.T) {
	text := strings.Join([]string{
		para("one", 40),
		para("two", 40),
		para("three", 40),
		para("four", 40),
	}, "\n\n")

	a := SplitText(text, 60, 8)
	b := SplitText(text, 60, 8)
	require.Equal(t, a, b)
}

func TestSplitTextEveryParagraphSurvives(t *testing.T) {
	paras := []string{
		para("first", 30),
		para("second", 30),
		para("third", 30),
		para("fourth", 30),
	}
	chunks := SplitText(strings.Join(paras, "\n\n"), 50, 5)

	joined := ""
	for _, c := range chunks {
		joined += c.Text + "\n\n"
	}
	for _, p := range paras {
		assert.Contains(t, joined, p)
	}
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 0, approxTokens(""))
	assert.Equal(t, 1, approxTokens("abc"))
	assert.Equal(t, 1, approxTokens("abcd"))
	assert.Equal(t, 2, approxTokens("abcde"))
}
