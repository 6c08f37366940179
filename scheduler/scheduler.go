// Package scheduler answers per-document and workspace diagnostic queries
// over the store/refgraph/opindex/engine stack, per spec §4.7: result-ID
// based caching so an unchanged document or root snapshot is never
// recomputed, a bounded concurrency gate for root computations, and
// affected-set maintenance so a document edit invalidates exactly the
// snapshots it could have changed.
package scheduler

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/engine"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/opindex"
	"github.com/sailpoint-oss/telescope-core/refgraph"
	"github.com/sailpoint-oss/telescope-core/rules"
	"github.com/sailpoint-oss/telescope-core/store"
)

// DefaultMaxRootConcurrency is the default bound on concurrently computing
// root diagnostics, per spec §4.7/§5.
const DefaultMaxRootConcurrency = 2

// Cancelled is the error returned whenever a suspension point
// observes a cancelled context. Partial results are discarded and no cache
// entry is written, per spec §4.7's cancellation semantics.
type Cancelled struct{}

func (Cancelled) Error() string { return "scheduler: cancelled" }

// ReportKind distinguishes a reused result from a freshly computed one.
type ReportKind string

const (
	KindUnchanged ReportKind = "unchanged"
	KindFull      ReportKind = "full"
)

// DocumentReport is the outcome of a per-document diagnostics query.
type DocumentReport struct {
	Kind        ReportKind
	ResultID    string
	Diagnostics []rules.Diagnostic // empty for Unchanged
}

// WorkspaceReport is one URI's entry in a workspace diagnostics query.
type WorkspaceReport struct {
	Kind        ReportKind
	URI         string
	ResultID    string
	Diagnostics []rules.Diagnostic // empty for Unchanged
}

type cachedDoc struct {
	resultID    string
	contentHash string
	diagnostics []rules.Diagnostic
}

type rootSnapshot struct {
	projectHash      string
	rulesSignature   string
	uris             []string
	diagnosticsByURI map[string][]rules.Diagnostic
	resultIDByURI    map[string]string
}

// Scheduler is the stateful query/cache layer wired on top of a Store, a
// reference Graph, and an operation-ID Index. It holds no document content
// itself; every read goes through store.
type Scheduler struct {
	store    *store.Store
	graph    *refgraph.Graph
	opIndex  *opindex.Index
	isRoot   func(uri string) bool
	bindings func() []engine.Binding

	maxRootConcurrency int
	gate               chan struct{}

	mu           sync.Mutex
	docCache     map[string]*cachedDoc
	rootCache    map[string]*rootSnapshot    // root uri -> snapshot
	rootsByURI   map[string]map[string]bool  // uri -> set of root uris whose snapshot mentions it
	trackedRoots map[string]bool
	affected     map[string]bool
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithMaxRootConcurrency overrides the default root-concurrency gate size.
func WithMaxRootConcurrency(n int) Option {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxRootConcurrency = n
		}
	}
}

// New creates a Scheduler. isRoot classifies a URI as a workspace root
// (typically refgraph.RootClassifier bound to the same document provider the
// caller uses for the store); bindings returns the currently effective rule
// set (the config package resolves this — scheduler only consumes it).
func New(st *store.Store, graph *refgraph.Graph, opIndex *opindex.Index, isRoot func(uri string) bool, bindings func() []engine.Binding, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:              st,
		graph:              graph,
		opIndex:            opIndex,
		isRoot:             isRoot,
		bindings:           bindings,
		maxRootConcurrency: DefaultMaxRootConcurrency,
		docCache:           map[string]*cachedDoc{},
		rootCache:          map[string]*rootSnapshot{},
		rootsByURI:         map[string]map[string]bool{},
		trackedRoots:       map[string]bool{},
		affected:           map[string]bool{},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.gate = make(chan struct{}, s.maxRootConcurrency)
	return s
}

// TrackRoot records uri as a workspace-root entry point discovered via
// file-watcher events or an initial workspace scan, per spec §4.7 step 1 of
// the workspace query's root-discovery union.
func (s *Scheduler) TrackRoot(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trackedRoots[uri] = true
}

// UntrackRoot forgets uri as a root and drops its cached snapshot.
func (s *Scheduler) UntrackRoot(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.trackedRoots, uri)
	delete(s.rootCache, uri)
}

// MarkAffected implements store.AffectedTracker: it records uris as
// affected and invalidates every root snapshot indexed under any of them,
// per spec §4.7's affected-set maintenance.
func (s *Scheduler) MarkAffected(uris ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range uris {
		s.affected[u] = true
		for root := range s.rootsByURI[u] {
			delete(s.rootCache, root)
		}
		delete(s.rootsByURI, u)
	}
}

// WidenForOperationIDs marks every URI containing one of changedIDs as
// affected, completing the "for each operationId whose occurrences changed"
// half of spec §4.7's affected-set maintenance that store cannot perform
// itself (store only knows about uri and dependentsOf(uri); the
// operation-ID fan-out requires opIndex). Callers pass the
// changedOperationIDs returned by store.Update.
func (s *Scheduler) WidenForOperationIDs(changedIDs []string) {
	for _, id := range changedIDs {
		occs := s.opIndex.Occurrences(id)
		uris := make([]string, 0, len(occs))
		for _, occ := range occs {
			uris = append(uris, occ.URI)
		}
		s.MarkAffected(uris...)
	}
}

// DrainAffected returns the sorted set of URIs marked affected since the
// last drain and clears it.
func (s *Scheduler) DrainAffected() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.affected))
	for u := range s.affected {
		out = append(out, u)
	}
	sort.Strings(out)
	s.affected = map[string]bool{}
	return out
}

// DocumentDiagnostics answers spec §4.7's per-document query. previousResultID
// may be empty, meaning "no prior result to compare against."
func (s *Scheduler) DocumentDiagnostics(ctx context.Context, uri string, previousResultID string) (*DocumentReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, Cancelled{}
	}

	entry, ok := s.store.Get(uri)
	if !ok {
		return &DocumentReport{Kind: KindFull}, nil
	}
	contentHash := entry.IR.Hash

	if cached, hit := s.cachedDocFor(uri, contentHash); hit {
		if previousResultID != "" && previousResultID == cached.resultID {
			return &DocumentReport{Kind: KindUnchanged, ResultID: cached.resultID}, nil
		}
		return &DocumentReport{Kind: KindFull, ResultID: cached.resultID, Diagnostics: append([]rules.Diagnostic(nil), cached.diagnostics...)}, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, Cancelled{}
	}

	uris := s.closure(uri)
	project := s.projectFor(uris)
	version := fmt.Sprint(entry.Version)
	result := engine.Run(project, s.bindings(), version)

	var diags []rules.Diagnostic
	for _, d := range result.Diagnostics {
		if d.URI == uri {
			diags = append(diags, d)
		}
	}
	diags = engine.Canonicalize(diags)
	resultID := engine.ComputeResultID(version, diags)

	s.mu.Lock()
	s.docCache[uri] = &cachedDoc{resultID: resultID, contentHash: contentHash, diagnostics: diags}
	s.mu.Unlock()

	if previousResultID != "" && previousResultID == resultID {
		return &DocumentReport{Kind: KindUnchanged, ResultID: resultID}, nil
	}
	return &DocumentReport{Kind: KindFull, ResultID: resultID, Diagnostics: diags}, nil
}

func (s *Scheduler) cachedDocFor(uri, contentHash string) (*cachedDoc, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cached, ok := s.docCache[uri]
	if !ok || cached.contentHash != contentHash {
		return nil, false
	}
	return cached, true
}

// WorkspaceDiagnostics answers spec §4.7's workspace query: discover roots,
// compute (or reuse) each root's snapshot under the concurrency gate, merge
// and deduplicate by URI, then reconcile against previousResultIDs.
func (s *Scheduler) WorkspaceDiagnostics(ctx context.Context, previousResultIDs map[string]string) ([]WorkspaceReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, Cancelled{}
	}

	roots := s.discoverRoots()

	type outcome struct {
		snap *rootSnapshot
		err  error
	}
	outcomes := make([]outcome, len(roots))
	var wg sync.WaitGroup
	for i, root := range roots {
		wg.Add(1)
		go func(i int, root string) {
			defer wg.Done()
			snap, err := s.getOrComputeRootDiagnostics(ctx, root)
			outcomes[i] = outcome{snap: snap, err: err}
		}(i, root)
	}
	wg.Wait()

	for _, o := range outcomes {
		if o.err != nil {
			return nil, o.err
		}
	}

	merged := map[string][]rules.Diagnostic{}
	resultIDs := map[string]string{}
	for _, o := range outcomes {
		if o.snap == nil {
			continue
		}
		for _, u := range o.snap.uris {
			merged[u] = append(merged[u], o.snap.diagnosticsByURI[u]...)
			resultIDs[u] = o.snap.resultIDByURI[u]
		}
	}

	uris := make([]string, 0, len(merged))
	for u := range merged {
		uris = append(uris, u)
	}
	sort.Strings(uris)

	out := make([]WorkspaceReport, 0, len(uris))
	for _, u := range uris {
		diags := engine.Canonicalize(dedupeDiagnostics(merged[u]))
		rid := resultIDs[u]
		if prev, ok := previousResultIDs[u]; ok && prev == rid {
			out = append(out, WorkspaceReport{Kind: KindUnchanged, URI: u, ResultID: rid})
			continue
		}
		out = append(out, WorkspaceReport{Kind: KindFull, URI: u, ResultID: rid, Diagnostics: diags})
	}
	return out, nil
}

// discoverRoots unions explicitly tracked roots with roots already present
// in the snapshot cache from a previous scan (spec §4.7 step 1; the third
// member of that union, an initial workspace-folder scan, is core's job —
// it tracks discovered roots via TrackRoot before ever calling here).
func (s *Scheduler) discoverRoots() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]bool{}
	for r := range s.trackedRoots {
		set[r] = true
	}
	for r := range s.rootCache {
		set[r] = true
	}
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) getOrComputeRootDiagnostics(ctx context.Context, root string) (*rootSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, Cancelled{}
	}

	uris := s.closure(root)
	projectHash := s.projectHash(uris)
	rulesSig := s.rulesSignature()

	s.mu.Lock()
	if snap, ok := s.rootCache[root]; ok && snap.projectHash == projectHash && snap.rulesSignature == rulesSig {
		s.mu.Unlock()
		return snap, nil
	}
	s.mu.Unlock()

	select {
	case s.gate <- struct{}{}:
	case <-ctx.Done():
		return nil, Cancelled{}
	}
	defer func() { <-s.gate }()

	if err := ctx.Err(); err != nil {
		return nil, Cancelled{}
	}

	project := s.projectFor(uris)
	result := engine.Run(project, s.bindings(), rulesSig)

	byURI := map[string][]rules.Diagnostic{}
	for _, d := range result.Diagnostics {
		byURI[d.URI] = append(byURI[d.URI], d)
	}
	resultIDByURI := map[string]string{}
	for _, u := range uris {
		version := ""
		if entry, ok := s.store.Get(u); ok {
			version = fmt.Sprint(entry.Version)
		}
		diags := engine.Canonicalize(byURI[u])
		byURI[u] = diags
		resultIDByURI[u] = engine.ComputeResultID(version, diags)
	}

	snap := &rootSnapshot{
		projectHash: projectHash, rulesSignature: rulesSig,
		uris: uris, diagnosticsByURI: byURI, resultIDByURI: resultIDByURI,
	}

	s.mu.Lock()
	s.rootCache[root] = snap
	for _, u := range uris {
		if s.rootsByURI[u] == nil {
			s.rootsByURI[u] = map[string]bool{}
		}
		s.rootsByURI[u][root] = true
	}
	s.mu.Unlock()

	return snap, nil
}

// closure returns seed plus every URI transitively reachable via
// graph.DependenciesOf, sorted for determinism. The walk is cycle-guarded
// the same way refgraph.Graph.RootsFor guards its reverse-edge walk.
func (s *Scheduler) closure(seed string) []string {
	visited := map[string]bool{}
	var walk func(u string)
	walk = func(u string) {
		if visited[u] {
			return
		}
		visited[u] = true
		for _, dep := range s.graph.DependenciesOf(u) {
			walk(dep)
		}
	}
	walk(seed)

	out := make([]string, 0, len(visited))
	for u := range visited {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

func (s *Scheduler) projectFor(uris []string) *rules.ProjectContext {
	documents := map[string]*ir.Document{}
	atomIdx := map[string]*atoms.AtomIndex{}
	offsets := map[string][]int{}
	for _, u := range uris {
		entry, ok := s.store.Get(u)
		if !ok {
			continue
		}
		documents[u] = entry.IR
		atomIdx[u] = entry.Atoms
		offsets[u] = entry.LineOffsets
	}

	isRoot := s.isRoot
	graph := s.graph
	return &rules.ProjectContext{
		Documents:   documents,
		Atoms:       atomIdx,
		LineOffsets: offsets,
		LinkedURIs:  func(uri string) []string { return graph.DependenciesOf(uri) },
		RootDocuments: func(uri, pointer string) []string {
			return graph.RootsFor(uri, pointer, isRoot)
		},
		PrimaryRoot: func(uri, pointer string) (string, bool) {
			return refgraph.PrimaryRoot(graph.RootsFor(uri, pointer, isRoot))
		},
	}
}

// projectHash is SHA-1(Σ sorted (uri,contentHash)), per spec §4.7; uris must
// already be sorted (closure returns them sorted).
func (s *Scheduler) projectHash(uris []string) string {
	var b strings.Builder
	for _, u := range uris {
		hash := ""
		if entry, ok := s.store.Get(u); ok {
			hash = entry.IR.Hash
		}
		b.WriteString(u)
		b.WriteString("|")
		b.WriteString(hash)
		b.WriteString(";")
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// rulesSignature is SHA-1(sorted ruleIds), where each ID is paired with its
// effective severity so a rule's severity override also invalidates root
// snapshots, per spec §4.7.
func (s *Scheduler) rulesSignature() string {
	bindings := s.bindings()
	ids := make([]string, 0, len(bindings))
	for _, b := range bindings {
		ids = append(ids, b.Rule.Meta().ID+":"+string(b.Severity))
	}
	sort.Strings(ids)
	sum := sha1.Sum([]byte(strings.Join(ids, ",")))
	return hex.EncodeToString(sum[:])
}

// dedupeDiagnostics drops duplicates keyed by (range,severity,code,message),
// per spec §4.7 step 3 of the workspace query (two roots can both reach a
// shared dependency and report the same finding).
func dedupeDiagnostics(diags []rules.Diagnostic) []rules.Diagnostic {
	seen := map[string]bool{}
	out := make([]rules.Diagnostic, 0, len(diags))
	for _, d := range diags {
		key := fmt.Sprintf("%d:%d-%d:%d|%s|%s|%s",
			d.Range.Start.Line, d.Range.Start.Character, d.Range.End.Line, d.Range.End.Character,
			d.Severity, d.Code, d.Message)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, d)
	}
	return out
}
