package opindex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpoint-oss/telescope-core/atoms"
)

func TestReplaceForURI_TracksOccurrences(t *testing.T) {
	idx := New()
	changed := idx.ReplaceForURI("file:///a.yaml", []atoms.Operation{
		{URI: "file:///a.yaml", Pointer: "#/paths/~1a/get", OperationID: "op", HasOperationID: true},
	})
	assert.Equal(t, []string{"op"}, changed)
	assert.True(t, idx.IsUnique("op"))
	require.Len(t, idx.Occurrences("op"), 1)
}

func TestReplaceForURI_DuplicateAcrossFiles(t *testing.T) {
	idx := New()
	idx.ReplaceForURI("file:///a.yaml", []atoms.Operation{
		{URI: "file:///a.yaml", Pointer: "#/paths/~1a/get", OperationID: "op", HasOperationID: true},
	})
	idx.ReplaceForURI("file:///b.yaml", []atoms.Operation{
		{URI: "file:///b.yaml", Pointer: "#/paths/~1b/get", OperationID: "op", HasOperationID: true},
	})
	assert.False(t, idx.IsUnique("op"))
	require.Len(t, idx.Occurrences("op"), 2)
}

func TestReplaceForURI_ChangeSetOnRemoval(t *testing.T) {
	idx := New()
	idx.ReplaceForURI("file:///a.yaml", []atoms.Operation{
		{URI: "file:///a.yaml", Pointer: "#/x", OperationID: "op", HasOperationID: true},
	})
	changed := idx.ReplaceForURI("file:///a.yaml", nil)
	assert.Equal(t, []string{"op"}, changed)
	assert.Empty(t, idx.Occurrences("op"))
}

func TestRemoveURI(t *testing.T) {
	idx := New()
	idx.ReplaceForURI("file:///a.yaml", []atoms.Operation{
		{URI: "file:///a.yaml", Pointer: "#/x", OperationID: "op", HasOperationID: true},
	})
	idx.RemoveURI("file:///a.yaml")
	assert.Empty(t, idx.Occurrences("op"))
}

func TestReplaceForURI_NoChangeWhenStable(t *testing.T) {
	idx := New()
	ops := []atoms.Operation{
		{URI: "file:///a.yaml", Pointer: "#/x", OperationID: "op", HasOperationID: true},
	}
	idx.ReplaceForURI("file:///a.yaml", ops)
	changed := idx.ReplaceForURI("file:///a.yaml", ops)
	assert.Empty(t, changed)
}
