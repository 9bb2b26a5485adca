package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"paperdesk/internal/index"
)

func newTestEngine(t *testing.T) (*Engine, *fakeEngine, *index.VectorIndex) {
	t.Helper()
	fake := newFakeEngine()
	idx := index.New(openTestDB(t), fake)
	require.NoError(t, idx.InitOrLoad(context.Background()))
	return NewEngine(idx), fake, idx
}

func indexOne(t *testing.T, idx *index.VectorIndex, paperID, text string) {
	t.Helper()
	require.NoError(t, idx.IndexContent(context.Background(), paperID, []index.PageText{{Page: 1, Text: text}}))
}

func TestSearchUnbuiltIndexIsTypedError(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	_, err := eng.Search(context.Background(), "anything", Options{Index: index.Content, K: 5})
	var notInit *index.ErrNotInitialized
	require.ErrorAs(t, err, &notInit)
	require.Equal(t, index.Content, notInit.Index)
}

func TestSearchOrdersBySimilarityDescending(t *testing.T) {
	eng, fake, idx := newTestEngine(t)
	ctx := context.Background()

	fake.pin("the query", []float32{1, 0, 0, 0})
	fake.pin("close match", []float32{1, 0, 0, 0})
	fake.pin("middling match", []float32{0.6, 0.8, 0, 0})
	fake.pin("weak match", []float32{0.2, 0.98, 0, 0})

	indexOne(t, idx, "2107.03374v2", "close match")
	indexOne(t, idx, "2412.19437v2", "middling match")
	indexOne(t, idx, "2507.20534v1", "weak match")

	chunks, err := eng.Search(ctx, "the query", Options{Index: index.Content, K: 10})
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	require.Equal(t, "close match", chunks[0].Text)
	require.Equal(t, "middling match", chunks[1].Text)
	require.Equal(t, "weak match", chunks[2].Text)
	require.Greater(t, chunks[0].Similarity, chunks[1].Similarity)
	require.Greater(t, chunks[1].Similarity, chunks[2].Similarity)
}

func TestSearchAppliesSimilarityCutoff(t *testing.T) {
	eng, fake, idx := newTestEngine(t)
	ctx := context.Background()

	fake.pin("the query", []float32{1, 0, 0, 0})
	fake.pin("on topic", []float32{1, 0, 0, 0})
	fake.pin("off topic", []float32{0, 1, 0, 0})

	indexOne(t, idx, "2107.03374v2", "on topic")
	indexOne(t, idx, "2412.19437v2", "off topic")

	chunks, err := eng.Search(ctx, "the query", Options{Index: index.Content, K: 10, SimilarityCutoff: 0.5})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	require.Equal(t, "on topic", chunks[0].Text)
}

func TestSearchNoMatchesIsEmptyNotError(t *testing.T) {
	eng, fake, idx := newTestEngine(t)

	fake.pin("the query", []float32{1, 0, 0, 0})
	fake.pin("off topic", []float32{0, 1, 0, 0})
	indexOne(t, idx, "2412.19437v2", "off topic")

	chunks, err := eng.Search(context.Background(), "the query", Options{Index: index.Content, K: 10, SimilarityCutoff: 0.5})
	require.NoError(t, err)
	require.Empty(t, chunks)
}

func TestMMRPreferenceShiftsWithAlpha(t *testing.T) {
	eng, fake, idx := newTestEngine(t)
	ctx := context.Background()

	fake.pin("the query", []float32{1, 0, 0, 0})
	fake.pin("dup one", []float32{1, 0, 0, 0})
	fake.pin("dup two", []float32{0.99, 0.141, 0, 0})
	fake.pin("different", []float32{0.6, 0.8, 0, 0})

	indexOne(t, idx, "2107.03374v2", "dup one")
	indexOne(t, idx, "2107.03375v1", "dup two")
	indexOne(t, idx, "2412.19437v2", "different")

	// Pure relevance keeps the two near-duplicates.
	chunks, err := eng.Search(ctx, "the query", Options{Index: index.Content, K: 2, UseMMR: true, MMRAlpha: 1.0})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.ElementsMatch(t,
		[]string{"dup one", "dup two"},
		[]string{chunks[0].Text, chunks[1].Text})

	// Diversity-weighted selection trades the second duplicate for the
	// distinct chunk.
	chunks, err = eng.Search(ctx, "the query", Options{Index: index.Content, K: 2, UseMMR: true, MMRAlpha: 0.3})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	require.ElementsMatch(t,
		[]string{"dup one", "different"},
		[]string{chunks[0].Text, chunks[1].Text})
}

func TestComparisonFallbackRecoversSecondPaper(t *testing.T) {
	eng, fake, idx := newTestEngine(t)
	ctx := context.Background()

	fake.pin("compare Codex and DeepSeek", []float32{1, 0.05, 0, 0})
	fake.pin("codex evaluates code generation", []float32{1, 0, 0, 0})
	fake.pin("codex pass at k metric", []float32{0.97, 0.24, 0, 0})
	fake.pin("deepseek mixture of experts", []float32{0, 1, 0, 0})
	fake.pin("Codex", []float32{1, 0, 0, 0})
	fake.pin("DeepSeek", []float32{0, 1, 0, 0})

	require.NoError(t, idx.IndexContent(ctx, "2107.03374v2", []index.PageText{
		{Page: 1, Text: "codex evaluates code generation"},
		{Page: 2, Text: "codex pass at k metric"},
	}))
	indexOne(t, idx, "2412.19437v2", "deepseek mixture of experts")

	chunks, err := eng.Search(ctx, "compare Codex and DeepSeek",
		Options{Index: index.Content, K: 2, UseMMR: true, MMRAlpha: 0.7})
	require.NoError(t, err)

	papers := make(map[string]bool)
	for _, c := range chunks {
		papers[c.PaperID] = true
	}
	require.Len(t, papers, 2, "fallback must surface both compared papers")
	require.True(t, papers["2107.03374v2"])
	require.True(t, papers["2412.19437v2"])
}

func TestIsComparisonQuery(t *testing.T) {
	require.True(t, isComparisonQuery("compare llama and gpt"))
	require.True(t, isComparisonQuery("GPT-4 versus Claude"))
	require.True(t, isComparisonQuery("what do both papers say?"))
	require.True(t, isComparisonQuery("differences between v2 and v3"))
	require.False(t, isComparisonQuery("how does attention work"))
	require.False(t, isComparisonQuery("android runtime internals"))
}

func TestExtractEntityTerms(t *testing.T) {
	terms := extractEntityTerms("compare DeepSeek v3 and Kimi k2")
	require.Equal(t, []string{"DeepSeek", "v3", "Kimi", "k2"}, terms)

	terms = extractEntityTerms("what is the difference between GPT-4 and Claude?")
	require.Equal(t, []string{"GPT-4", "Claude"}, terms)

	require.Empty(t, extractEntityTerms("compare them both"))
}
