package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func TestTransformAgainstConcurrentInsert(t *testing.T) {
	transformer := NewOperationTransformer()

	history := []Operation{
		{Type: OperationInsert, Index: 2, Text: "xy", Version: 1},
	}

	incoming := Operation{Type: OperationInsert, Index: 5, Text: "ab", BaseVersion: 0}
	transformed, err := transformer.Transform(incoming, history, 0)
	require.NoError(t, err)

	assert.Equal(t, 7, transformed.Index, "insert before incoming index shifts it right by the inserted length")
	assert.Equal(t, "ab", transformed.Text)

	// Incoming operation must not be mutated
	assert.Equal(t, 5, incoming.Index)
}

func TestTransformInsertAtOrAfterIncomingDoesNotShift(t *testing.T) {
	transformer := NewOperationTransformer()

	t.Run("insert at same index", func(t *testing.T) {
		history := []Operation{{Type: OperationInsert, Index: 5, Text: "zz"}}
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 5, Text: "a"}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, transformed.Index)
	})

	t.Run("insert after incoming index", func(t *testing.T) {
		history := []Operation{{Type: OperationInsert, Index: 9, Text: "zz"}}
		transformed, err := transformer.Transform(Operation{Type: OperationDelete, Index: 5, Length: 2}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, transformed.Index)
	})
}

func TestTransformAgainstConcurrentDelete(t *testing.T) {
	transformer := NewOperationTransformer()

	t.Run("delete fully before shifts left", func(t *testing.T) {
		history := []Operation{{Type: OperationDelete, Index: 1, Length: 3}}
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 8, Text: "a"}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 5, transformed.Index)
	})

	t.Run("delete ending exactly at incoming index shifts left", func(t *testing.T) {
		history := []Operation{{Type: OperationDelete, Index: 2, Length: 4}}
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 6, Text: "a"}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 2, transformed.Index)
	})

	t.Run("straddling delete clamps to delete start", func(t *testing.T) {
		history := []Operation{{Type: OperationDelete, Index: 3, Length: 5}}
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 6, Text: "a"}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 3, transformed.Index, "target position was deleted; anchor to the deletion start")
	})

	t.Run("delete entirely after does not shift", func(t *testing.T) {
		history := []Operation{{Type: OperationDelete, Index: 6, Length: 3}}
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 6, Text: "a"}, history, 0)
		require.NoError(t, err)
		assert.Equal(t, 6, transformed.Index)
	})
}

func TestTransformOnlyFoldsUnseenSuffix(t *testing.T) {
	transformer := NewOperationTransformer()

	history := []Operation{
		{Type: OperationInsert, Index: 0, Text: "aa", Version: 1},
		{Type: OperationInsert, Index: 0, Text: "bb", Version: 2},
	}

	// The sender saw version 1, so only the second insert is folded in.
	transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 4, Text: "x", BaseVersion: 1}, history, 1)
	require.NoError(t, err)
	assert.Equal(t, 6, transformed.Index)
}

func TestTransformChainedHistory(t *testing.T) {
	transformer := NewOperationTransformer()

	history := []Operation{
		{Type: OperationInsert, Index: 0, Text: "abc"},  // index 5 -> 8
		{Type: OperationDelete, Index: 1, Length: 2},    // index 8 -> 6
		{Type: OperationInsert, Index: 10, Text: "zzz"}, // after, no shift
	}

	transformed, err := transformer.Transform(Operation{Type: OperationDelete, Index: 5, Length: 1}, history, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, transformed.Index)
	assert.Equal(t, 1, transformed.Length)
}

func TestTransformRejectsNegativeIndex(t *testing.T) {
	transformer := NewOperationTransformer()

	_, err := transformer.Transform(Operation{Type: OperationInsert, Index: -1, Text: "a"}, nil, 0)
	assert.ErrorIs(t, err, ErrInvalidOperation)
}

func TestTransformClampsBaseVersion(t *testing.T) {
	transformer := NewOperationTransformer()

	history := []Operation{{Type: OperationInsert, Index: 0, Text: "ab"}}

	t.Run("negative base version folds the whole log", func(t *testing.T) {
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 3, Text: "x", BaseVersion: -5}, history, -5)
		require.NoError(t, err)
		assert.Equal(t, 5, transformed.Index)
	})

	t.Run("base version past the log folds nothing", func(t *testing.T) {
		transformed, err := transformer.Transform(Operation{Type: OperationInsert, Index: 3, Text: "x", BaseVersion: 10}, history, 10)
		require.NoError(t, err)
		assert.Equal(t, 3, transformed.Index)
	})
}
