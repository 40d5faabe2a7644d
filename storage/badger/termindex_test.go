package badger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/docseek/core"
	"github.com/poiesic/docseek/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTermRepo(t *testing.T) *TermIndexRepository {
	t.Helper()
	termRepo, _, backend, err := NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return termRepo
}

func testDocument(id core.ID, text string, terms map[string]int) *core.DocumentText {
	return &core.DocumentText{
		ID:          id,
		Text:        text,
		Terms:       terms,
		ContentHash: core.ContentHash(text),
		IndexedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}
}

func TestReplaceDocument_StoresTextAndPostings(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	doc := testDocument(1, "alpha beta alpha", map[string]int{"alpha": 2, "beta": 1})
	require.NoError(t, repo.ReplaceDocument(ctx, doc))

	got, err := repo.GetDocument(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	postings, err := repo.FindPostings(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []storage.Posting{{DocumentID: 1, Frequency: 2}}, postings)

	text, ok, err := repo.GetStoredText(ctx, 1)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "alpha beta alpha", text)
}

func TestReplaceDocument_RemovesStaleTerms(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceDocument(ctx, testDocument(5, "alpha beta", map[string]int{"alpha": 1, "beta": 1})))
	require.NoError(t, repo.ReplaceDocument(ctx, testDocument(5, "beta gamma", map[string]int{"beta": 1, "gamma": 1})))

	postings, err := repo.FindPostings(ctx, "alpha")
	require.NoError(t, err)
	assert.Empty(t, postings, "alpha no longer occurs in document 5")

	postings, err = repo.FindPostings(ctx, "gamma")
	require.NoError(t, err)
	assert.Len(t, postings, 1)

	freqs, err := repo.GetTermFrequencies(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"beta": 1, "gamma": 1}, freqs)
}

func TestReplaceDocument_Idempotent(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	doc := testDocument(3, "alpha", map[string]int{"alpha": 1})
	require.NoError(t, repo.ReplaceDocument(ctx, doc))
	require.NoError(t, repo.ReplaceDocument(ctx, doc))

	postings, err := repo.FindPostings(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []storage.Posting{{DocumentID: 3, Frequency: 1}}, postings)
}

func TestReplaceDocument_Invalid(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	err := repo.ReplaceDocument(ctx, testDocument(0, "x", nil))
	assert.ErrorIs(t, err, core.ErrZeroID)

	err = repo.ReplaceDocument(ctx, testDocument(1, "x", map[string]int{"x": -1}))
	assert.ErrorIs(t, err, core.ErrNegativeFrequency)
}

func TestFindPostings_AscendingIDs(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	for _, id := range []core.ID{1000, 7, 70, 256} {
		require.NoError(t, repo.ReplaceDocument(ctx, testDocument(id, "alpha", map[string]int{"alpha": int(id)})))
	}

	postings, err := repo.FindPostings(ctx, "alpha")
	require.NoError(t, err)
	require.Len(t, postings, 4)
	for i, want := range []core.ID{7, 70, 256, 1000} {
		assert.Equal(t, want, postings[i].DocumentID)
		assert.Equal(t, int(want), postings[i].Frequency)
	}
}

func TestFindPostings_UnknownTerm(t *testing.T) {
	repo := newTestTermRepo(t)

	postings, err := repo.FindPostings(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, postings)
}

func TestNeverIndexedDocument(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	_, err := repo.GetDocument(ctx, 42)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	freqs, err := repo.GetTermFrequencies(ctx, 42)
	require.NoError(t, err)
	assert.NotNil(t, freqs)
	assert.Empty(t, freqs)

	text, ok, err := repo.GetStoredText(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, text)

	assert.ErrorIs(t, repo.DeleteDocument(ctx, 42), storage.ErrNotFound)
}

func TestDeleteDocument(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.ReplaceDocument(ctx, testDocument(9, "alpha beta", map[string]int{"alpha": 1, "beta": 1})))
	require.NoError(t, repo.ReplaceDocument(ctx, testDocument(10, "alpha", map[string]int{"alpha": 1})))
	require.NoError(t, repo.DeleteDocument(ctx, 9))

	postings, err := repo.FindPostings(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, []storage.Posting{{DocumentID: 10, Frequency: 1}}, postings)

	postings, err = repo.FindPostings(ctx, "beta")
	require.NoError(t, err)
	assert.Empty(t, postings)

	ids, err := repo.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{10}, ids)
}

func TestListDocumentIDs_NumericOrder(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	for _, id := range []core.ID{10, 9, 100, 2} {
		require.NoError(t, repo.ReplaceDocument(ctx, testDocument(id, "x", map[string]int{"x": 1})))
	}

	ids, err := repo.ListDocumentIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []core.ID{2, 9, 10, 100}, ids)
}

func TestReplaceDocument_Concurrent(t *testing.T) {
	repo := newTestTermRepo(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id core.ID) {
			defer wg.Done()
			doc := testDocument(id, "shared", map[string]int{"shared": 1})
			assert.NoError(t, repo.ReplaceDocument(ctx, doc))
		}(core.ID(i))
	}
	wg.Wait()

	postings, err := repo.FindPostings(ctx, "shared")
	require.NoError(t, err)
	assert.Len(t, postings, 20)
}
