package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpoint-oss/telescope-core/engine"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/opindex"
	"github.com/sailpoint-oss/telescope-core/refgraph"
	"github.com/sailpoint-oss/telescope-core/rules"
	"github.com/sailpoint-oss/telescope-core/rules/builtin"
	"github.com/sailpoint-oss/telescope-core/store"
)

type storeDocs struct{ st *store.Store }

func (d storeDocs) Document(uri string) (*ir.Document, bool) {
	e, ok := d.st.Get(uri)
	if !ok {
		return nil, false
	}
	return e.IR, true
}

func newTestScheduler(t *testing.T, opts ...Option) (*Scheduler, *store.Store) {
	t.Helper()
	graph := refgraph.New()
	opIdx := opindex.New()

	st := store.New(
		store.WithGraph(graph),
		store.WithOpIndex(opIdx),
		store.WithDependentsOf(graph.DependentsOf),
	)
	isRoot := refgraph.RootClassifier(storeDocs{st: st})
	bindings := func() []engine.Binding {
		return []engine.Binding{
			{Rule: builtin.OperationOperationID(), Severity: rules.SeverityWarning},
			{Rule: builtin.OperationIDUnique(), Severity: rules.SeverityWarning},
		}
	}
	sched := New(st, graph, opIdx, isRoot, bindings, opts...)
	return sched, st
}

const specNoOpID = "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      responses:\n        '200':\n          description: ok\n"

func TestDocumentDiagnostics_FullThenUnchanged(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)

	report, err := sched.DocumentDiagnostics(context.Background(), "file:///a.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, KindFull, report.Kind)
	require.Len(t, report.Diagnostics, 1)
	assert.NotEmpty(t, report.ResultID)

	report2, err := sched.DocumentDiagnostics(context.Background(), "file:///a.yaml", report.ResultID)
	require.NoError(t, err)
	assert.Equal(t, KindUnchanged, report2.Kind)
	assert.Equal(t, report.ResultID, report2.ResultID)
	assert.Empty(t, report2.Diagnostics)
}

func TestDocumentDiagnostics_NotInStoreReturnsEmptyFull(t *testing.T) {
	sched, _ := newTestScheduler(t)
	report, err := sched.DocumentDiagnostics(context.Background(), "file:///missing.yaml", "")
	require.NoError(t, err)
	assert.Equal(t, KindFull, report.Kind)
	assert.Empty(t, report.Diagnostics)
}

func TestDocumentDiagnostics_ContentChangeInvalidatesCache(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	first, err := sched.DocumentDiagnostics(context.Background(), "file:///a.yaml", "")
	require.NoError(t, err)

	withOpID := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      operationId: getA\n      responses:\n        '200':\n          description: ok\n"
	st.Update("file:///a.yaml", withOpID, "yaml", 2, ir.FormatYAML)

	second, err := sched.DocumentDiagnostics(context.Background(), "file:///a.yaml", first.ResultID)
	require.NoError(t, err)
	assert.Equal(t, KindFull, second.Kind)
	assert.Empty(t, second.Diagnostics)
	assert.NotEqual(t, first.ResultID, second.ResultID)
}

func TestDocumentDiagnostics_CancelledContext(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := sched.DocumentDiagnostics(ctx, "file:///a.yaml", "")
	assert.ErrorIs(t, err, Cancelled{})
}

func TestWorkspaceDiagnostics_MergesAcrossRoot(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	sched.TrackRoot("file:///a.yaml")

	reports, err := sched.WorkspaceDiagnostics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "file:///a.yaml", reports[0].URI)
	assert.Equal(t, KindFull, reports[0].Kind)
	require.Len(t, reports[0].Diagnostics, 1)
}

func TestWorkspaceDiagnostics_ReconcilesPreviousResultIDs(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	sched.TrackRoot("file:///a.yaml")

	first, err := sched.WorkspaceDiagnostics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, first, 1)

	previous := map[string]string{"file:///a.yaml": first[0].ResultID}
	sched.UntrackRoot("file:///a.yaml")
	sched.TrackRoot("file:///a.yaml")

	second, err := sched.WorkspaceDiagnostics(context.Background(), previous)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, KindUnchanged, second[0].Kind)
}

func TestMarkAffected_InvalidatesRootSnapshot(t *testing.T) {
	sched, st := newTestScheduler(t)
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	sched.TrackRoot("file:///a.yaml")

	_, err := sched.WorkspaceDiagnostics(context.Background(), nil)
	require.NoError(t, err)

	sched.mu.Lock()
	_, cached := sched.rootCache["file:///a.yaml"]
	sched.mu.Unlock()
	require.True(t, cached)

	sched.MarkAffected("file:///a.yaml")

	sched.mu.Lock()
	_, stillCached := sched.rootCache["file:///a.yaml"]
	sched.mu.Unlock()
	assert.False(t, stillCached)
}

func TestWidenForOperationIDs(t *testing.T) {
	sched, st := newTestScheduler(t)
	withOpID := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      operationId: shared\n      responses:\n        '200':\n          description: ok\n"
	st.Update("file:///a.yaml", withOpID, "yaml", 1, ir.FormatYAML)
	withOpID2 := "openapi: 3.1.0\ninfo:\n  title: b\npaths:\n  /b:\n    get:\n      operationId: shared\n      responses:\n        '200':\n          description: ok\n"
	st.Update("file:///b.yaml", withOpID2, "yaml", 1, ir.FormatYAML)

	sched.TrackRoot("file:///a.yaml")
	sched.TrackRoot("file:///b.yaml")
	_, err := sched.WorkspaceDiagnostics(context.Background(), nil)
	require.NoError(t, err)

	sched.WidenForOperationIDs([]string{"shared"})
	affected := sched.DrainAffected()
	assert.Contains(t, affected, "file:///a.yaml")
	assert.Contains(t, affected, "file:///b.yaml")
}

func TestRootsBeyondMaxConcurrency(t *testing.T) {
	sched, st := newTestScheduler(t, WithMaxRootConcurrency(1))
	st.Update("file:///a.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	st.Update("file:///b.yaml", specNoOpID, "yaml", 1, ir.FormatYAML)
	sched.TrackRoot("file:///a.yaml")
	sched.TrackRoot("file:///b.yaml")

	reports, err := sched.WorkspaceDiagnostics(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, reports, 2)
}
