package main

import (
	"context"
	"testing"

	"github.com/poiesic/docseek"
	"github.com/poiesic/docseek/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentsFrom(t *testing.T) {
	lines := []string{"", "first", "second", "", "", "third", "  ", "fourth"}

	var got []seedDocument
	for doc := range documentsFrom(linesFromSlice(lines)) {
		got = append(got, doc)
	}
	assert.Equal(t, []seedDocument{
		{id: 1, folder: 1, body: "first"},
		{id: 2, folder: 1, body: "second"},
		{id: 3, folder: 2, body: "third"},
		{id: 4, folder: 3, body: "fourth"},
	}, got)
}

func TestSeed(t *testing.T) {
	db, err := docseek.NewDatabase("", docseek.WithInMemory(), docseek.WithoutAI())
	require.NoError(t, err)
	defer db.Close()

	indexer, err := db.NewIndexer()
	require.NoError(t, err)
	defer indexer.Release()

	ctx := context.Background()
	n, err := seed(ctx, db, indexer, linesFromSlice(documents), 2)
	require.NoError(t, err)
	assert.Equal(t, 22, n)

	meta, err := db.Metadata().GetDocument(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, core.ID(2), meta.OwnerID)
	assert.Equal(t, core.ID(1), meta.FolderID)
	assert.True(t, meta.Indexed)

	lexical, err := db.NewLexical()
	require.NoError(t, err)
	results, err := lexical.Search(ctx, "garlic butter", 0)
	require.NoError(t, err)
	require.Len(t, results, 3)
}
