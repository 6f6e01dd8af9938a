package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchIndexerUpsertAndQuery(t *testing.T) {
	gdb := setupTestDB(t)
	ix := NewSearchIndexer(gdb)
	ix.Start()

	ix.Enqueue("survey", "s-1", "Customer Feedback", "quarterly pulse")
	ix.Enqueue("question", "q-1", "How satisfied are you?")
	ix.Enqueue("survey", "s-1", "Customer Feedback v2", "quarterly pulse")
	ix.Stop()

	docs, err := ix.Query(context.Background(), "feedback")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "survey", docs[0].EntityType)
	assert.Equal(t, "s-1", docs[0].EntityID)
	// The second enqueue replaced the row instead of duplicating it.
	assert.Contains(t, docs[0].Content, "v2")

	docs, err = ix.Query(context.Background(), "SATISFIED")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "q-1", docs[0].EntityID)
}

func TestSearchIndexerRemove(t *testing.T) {
	gdb := setupTestDB(t)
	ix := NewSearchIndexer(gdb)
	ix.Start()

	ix.Enqueue("question", "q-1", "favorite color")
	ix.Remove("question", "q-1")
	ix.Stop()

	docs, err := ix.Query(context.Background(), "color")
	require.NoError(t, err)
	assert.Empty(t, docs)
}
