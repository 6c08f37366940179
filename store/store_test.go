package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpoint-oss/telescope-core/ir"
)

func TestStore_UpdateAndGet(t *testing.T) {
	s := New()
	s.Update("file:///a.yaml", "openapi: 3.1.0\ninfo:\n  title: t\n  version: \"1\"\n", "yaml", 1, ir.FormatYAML)
	entry, ok := s.Get("file:///a.yaml")
	require.True(t, ok)
	assert.Equal(t, ir.Version31, entry.IR.Version)
	assert.Equal(t, 1, s.Len())
}

func TestStore_NotOpenAPIHeuristic(t *testing.T) {
	s := New()
	s.Update("file:///package.json", `{"name":"x"}`, "json", 1, ir.FormatJSON)
	_, ok := s.Get("file:///package.json")
	assert.False(t, ok)
}

func TestStore_ParseFailureLeavesNoPartialState(t *testing.T) {
	s := New()
	s.Update("file:///a.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	_, ok := s.Get("file:///a.yaml")
	require.True(t, ok)

	s.Update("file:///a.yaml", "foo: [unterminated", "yaml", 2, ir.FormatYAML)
	_, ok = s.Get("file:///a.yaml")
	assert.False(t, ok)
}

func TestStore_Remove(t *testing.T) {
	s := New()
	s.Update("file:///a.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	s.Remove("file:///a.yaml")
	_, ok := s.Get("file:///a.yaml")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStore_Clear(t *testing.T) {
	s := New()
	s.Update("file:///a.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	s.Update("file:///b.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	s.Clear()
	assert.Equal(t, 0, s.Len())
}

func TestStore_LRUEviction(t *testing.T) {
	s := New(WithBound(2))
	s.Update("file:///a.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	s.Update("file:///b.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	// touch a so it is most-recently-used, then insert c, which should evict b.
	_, _ = s.Get("file:///a.yaml")
	s.Update("file:///c.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)

	_, aOK := s.Get("file:///a.yaml")
	_, bOK := s.Get("file:///b.yaml")
	_, cOK := s.Get("file:///c.yaml")
	assert.True(t, aOK)
	assert.False(t, bOK)
	assert.True(t, cOK)
	assert.Equal(t, 2, s.Len())
}

type fakeAffected struct {
	marked []string
}

func (f *fakeAffected) MarkAffected(uris ...string) {
	f.marked = append(f.marked, uris...)
}

func TestStore_MarksAffected(t *testing.T) {
	tracker := &fakeAffected{}
	s := New(WithAffectedTracker(tracker), WithDependentsOf(func(uri string) []string {
		if uri == "file:///sub.yaml" {
			return []string{"file:///main.yaml"}
		}
		return nil
	}))
	s.Update("file:///sub.yaml", "openapi: 3.1.0\n", "yaml", 1, ir.FormatYAML)
	assert.Contains(t, tracker.marked, "file:///sub.yaml")
	assert.Contains(t, tracker.marked, "file:///main.yaml")
}
