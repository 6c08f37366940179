// Package core wires store, refgraph, opindex, engine, scheduler, and
// config into the single façade spec §6 calls "Core": the entry point a
// transport layer (an LSP server, a CLI) drives.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/config"
	"github.com/sailpoint-oss/telescope-core/engine"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/opindex"
	"github.com/sailpoint-oss/telescope-core/refgraph"
	"github.com/sailpoint-oss/telescope-core/rules"
	"github.com/sailpoint-oss/telescope-core/scheduler"
	"github.com/sailpoint-oss/telescope-core/store"
)

// DocumentLink is one entry of getDocumentLinks's result, per spec §6.
type DocumentLink struct {
	Range  rules.Range
	Target string
}

// Hover is getHoverForRef's result, per spec §6.
type Hover struct {
	Markdown string
	Range    rules.Range
}

const hoverExcerptLines = 12

// affectedForwarder breaks the store<->scheduler construction cycle: store
// needs an AffectedTracker at construction time, but the scheduler needs the
// already-constructed store. bind is called once New has both.
type affectedForwarder struct {
	mu     sync.Mutex
	target *scheduler.Scheduler
}

func (f *affectedForwarder) MarkAffected(uris ...string) {
	f.mu.Lock()
	t := f.target
	f.mu.Unlock()
	if t != nil {
		t.MarkAffected(uris...)
	}
}

func (f *affectedForwarder) bind(s *scheduler.Scheduler) {
	f.mu.Lock()
	f.target = s
	f.mu.Unlock()
}

type storeDocs struct{ st *store.Store }

func (d storeDocs) Document(uri string) (*ir.Document, bool) {
	e, ok := d.st.Get(uri)
	if !ok {
		return nil, false
	}
	return e.IR, true
}

// Core is the stateful façade spec §6 names "Core (provided)".
type Core struct {
	store   *store.Store
	graph   *refgraph.Graph
	opIndex *opindex.Index
	sched   *scheduler.Scheduler

	resolver   *config.Resolver
	storeBound int

	mu       sync.Mutex
	resolved *config.Resolved
	folders  []string

	log       *slog.Logger
	closeOnce sync.Once
}

// Option configures a Core at construction time.
type Option func(*Core)

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Core) { c.log = l }
}

// WithResolver overrides the default config.Resolver (e.g. to register
// additional presets or a CustomRuleProvider before first use).
func WithResolver(r *config.Resolver) Option {
	return func(c *Core) { c.resolver = r }
}

// WithStoreBound overrides the document store's LRU bound.
func WithStoreBound(n int) Option {
	return func(c *Core) { c.storeBound = n }
}

// New wires the full stack: Store is constructed with Graph/OpIndex/an
// affected-set forwarder as collaborators (spec §4.2 steps 7-8); Scheduler
// is constructed over that already-built Store, then bound back into the
// forwarder, resolving the otherwise-circular Store<->Scheduler dependency.
// Config resolves to the "default" preset until SetConfig is called.
func New(opts ...Option) *Core {
	c := &Core{log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	if c.resolver == nil {
		c.resolver = config.NewResolver()
	}

	resolved, err := c.resolver.Resolve(config.Default())
	if err != nil {
		c.log.Error("default config resolution failed", "error", err)
		resolved = &config.Resolved{Patterns: config.DefaultPatterns}
	}
	c.resolved = resolved

	c.graph = refgraph.New()
	c.opIndex = opindex.New()
	forwarder := &affectedForwarder{}

	storeOpts := []store.Option{
		store.WithGraph(c.graph),
		store.WithOpIndex(c.opIndex),
		store.WithAffectedTracker(forwarder),
		store.WithDependentsOf(c.graph.DependentsOf),
		store.WithLogger(c.log),
	}
	if c.storeBound > 0 {
		storeOpts = append(storeOpts, store.WithBound(c.storeBound))
	}
	c.store = store.New(storeOpts...)

	isRoot := refgraph.RootClassifier(storeDocs{st: c.store})
	c.sched = scheduler.New(c.store, c.graph, c.opIndex, isRoot, c.bindings)
	forwarder.bind(c.sched)

	return c
}

// bindings converts the resolved config's rule bindings into the flat
// engine.Binding list engine.Run consumes. Per-rule/per-override file
// scoping is already baked into each Binding.Rule via config.ScopedRule, so
// no further per-URI filtering happens at this layer.
func (c *Core) bindings() []engine.Binding {
	c.mu.Lock()
	resolved := c.resolved
	c.mu.Unlock()

	out := make([]engine.Binding, 0, len(resolved.Bindings))
	for _, b := range resolved.Bindings {
		out = append(out, engine.Binding{Rule: b.Rule, Severity: b.Severity})
	}
	return out
}

// UpdateDocument implements Core.updateDocument. format is inferred from
// languageId, falling back to the uri's extension.
func (c *Core) UpdateDocument(uri, text, languageID string, version int) {
	format := formatFor(languageID, uri)
	changed := c.store.Update(uri, text, languageID, version, format)
	c.sched.WidenForOperationIDs(changed)

	if c.isInScope(uri) {
		if _, ok := c.store.Get(uri); ok && refgraph.RootClassifier(storeDocs{st: c.store})(uri) {
			c.sched.TrackRoot(uri)
		}
	}
}

// RemoveDocument implements Core.removeDocument.
func (c *Core) RemoveDocument(uri string) {
	c.store.Remove(uri)
	c.sched.UntrackRoot(uri)
}

// ComputeDocumentDiagnostics implements Core.computeDocumentDiagnostics.
func (c *Core) ComputeDocumentDiagnostics(ctx context.Context, uri string, previousResultID string) (*scheduler.DocumentReport, error) {
	if !c.isInScope(uri) {
		return &scheduler.DocumentReport{Kind: scheduler.KindFull}, nil
	}
	return c.sched.DocumentDiagnostics(ctx, uri, previousResultID)
}

// ComputeWorkspaceDiagnostics implements Core.computeWorkspaceDiagnostics.
func (c *Core) ComputeWorkspaceDiagnostics(ctx context.Context, previousResultIDs map[string]string) ([]scheduler.WorkspaceReport, error) {
	return c.sched.WorkspaceDiagnostics(ctx, previousResultIDs)
}

// SetWorkspaceFolders implements Core.setWorkspaceFolders.
func (c *Core) SetWorkspaceFolders(folders []string) {
	c.mu.Lock()
	c.folders = append([]string(nil), folders...)
	c.mu.Unlock()
}

// SetConfig implements Core.setConfig, returning true iff the resolved
// configuration actually changed (compared by rule ID+severity+pattern
// signature and pattern list, since config.Resolved holds live rule
// instances that never compare equal by value).
func (c *Core) SetConfig(raw *config.RawConfig) bool {
	resolved, err := c.resolver.Resolve(raw)
	if err != nil {
		c.log.Error("config resolution failed, falling back to defaults", "error", err)
		resolved, _ = c.resolver.Resolve(config.Default())
	}

	c.mu.Lock()
	changed := !sameResolution(c.resolved, resolved)
	c.resolved = resolved
	c.mu.Unlock()

	return changed
}

func sameResolution(a, b *config.Resolved) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !equalStrings(a.Patterns, b.Patterns) {
		return false
	}
	return signatureOf(a.Bindings) == signatureOf(b.Bindings)
}

func signatureOf(bindings []config.Binding) string {
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		parts = append(parts, fmt.Sprintf("%s:%s:%s", b.Rule.Meta().ID, b.Severity, b.Pattern))
	}
	sort.Strings(parts)
	return strings.Join(parts, ",")
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// GetDocumentLinks implements Core.getDocumentLinks: every $ref node in the
// document's IR becomes a link, target being the raw ref string.
func (c *Core) GetDocumentLinks(uri string) ([]DocumentLink, error) {
	entry, ok := c.store.Get(uri)
	if !ok {
		return nil, fmt.Errorf("core: no document cached for %q", uri)
	}

	ctx := singleDocumentContext(uri, entry)
	links := make([]DocumentLink, 0, len(entry.Atoms.References))
	for _, ref := range entry.Atoms.References {
		links = append(links, DocumentLink{
			Range:  ctx.OffsetToRange(uri, ref.Node.Loc.ValStart, ref.Node.Loc.ValEnd),
			Target: ref.Node.Value,
		})
	}
	return links, nil
}

// GetHoverForRef implements Core.getHoverForRef: resolves the $ref under
// position and renders a preview with the target's header and up to
// hoverExcerptLines lines of excerpt, per spec §6.
func (c *Core) GetHoverForRef(uri string, position rules.Position) (*Hover, error) {
	entry, ok := c.store.Get(uri)
	if !ok {
		return nil, fmt.Errorf("core: no document cached for %q", uri)
	}

	offset := offsetFor(entry.LineOffsets, position)
	ref := findRefAt(entry.Atoms.References, offset)
	if ref == nil {
		return nil, nil
	}

	ctx := singleDocumentContext(uri, entry)
	hoverRange := ctx.OffsetToRange(uri, ref.Node.Loc.ValStart, ref.Node.Loc.ValEnd)

	targetURI, targetPointer := refgraph.ResolveRef(uri, ref.Node.Value)
	targetNode, err := refgraph.Deref(storeDocs{st: c.store}, uri, ref.Node.Value)
	if err != nil {
		return &Hover{
			Markdown: fmt.Sprintf("**unresolved reference**\n\n`%s` -> `%s%s`\n\n%s", ref.Node.Value, targetURI, targetPointer, err.Error()),
			Range:    hoverRange,
		}, nil
	}

	targetEntry, _ := c.store.Get(targetURI)
	excerpt := excerptAround(targetNode, targetEntry)
	format := ir.FormatYAML
	if targetEntry != nil {
		format = targetEntry.IR.Format
	}

	md := fmt.Sprintf("**%s%s**\n\n```%s\n%s\n```", targetURI, targetPointer, string(format), excerpt)
	return &Hover{Markdown: md, Range: hoverRange}, nil
}

func excerptAround(node *ir.Node, entry *store.Entry) string {
	if entry == nil {
		return node.Value
	}
	lines := strings.Split(entry.IR.RawText, "\n")
	startLine := offsetToPosition(entry.LineOffsets, node.Loc.Start).Line
	if startLine > len(lines) {
		startLine = len(lines)
	}
	end := startLine + hoverExcerptLines
	if end > len(lines) {
		end = len(lines)
	}
	return strings.Join(lines[startLine:end], "\n")
}

// findRefAt returns the reference atom whose value span contains offset, or
// nil if the cursor isn't over a $ref value.
func findRefAt(refs []atoms.Entry, offset int) *atoms.Entry {
	for i := range refs {
		loc := refs[i].Node.Loc
		if offset >= loc.ValStart && offset <= loc.ValEnd {
			return &refs[i]
		}
	}
	return nil
}

// singleDocumentContext builds a minimal rules.Context scoped to uri,
// reusing rules.Context.OffsetToRange instead of re-implementing offset-to-
// position conversion here.
func singleDocumentContext(uri string, entry *store.Entry) *rules.Context {
	project := &rules.ProjectContext{
		Documents:   map[string]*ir.Document{uri: entry.IR},
		LineOffsets: map[string][]int{uri: entry.LineOffsets},
	}
	return rules.NewContext(project, "core", rules.SeverityInfo)
}

func offsetFor(lineOffsets []int, pos rules.Position) int {
	if pos.Line < 0 || pos.Line >= len(lineOffsets) {
		return 0
	}
	return lineOffsets[pos.Line] + pos.Character
}

func offsetToPosition(lineOffsets []int, offset int) rules.Position {
	line := sort.Search(len(lineOffsets), func(i int) bool { return lineOffsets[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return rules.Position{Line: line, Character: offset - lineOffsets[line]}
}

// isInScope reports whether uri matches the currently resolved include
// patterns.
func (c *Core) isInScope(uri string) bool {
	c.mu.Lock()
	patterns := c.resolved.Patterns
	c.mu.Unlock()
	return config.MatchesPatterns(uri, patterns)
}

func formatFor(languageID, uri string) ir.Format {
	switch languageID {
	case "json", "jsonc":
		return ir.FormatJSON
	case "yaml":
		return ir.FormatYAML
	}
	if path.Ext(uri) == ".json" {
		return ir.FormatJSON
	}
	return ir.FormatYAML
}

// Close releases resources. Spec §6's exit behavior: no files are written,
// caches are simply dropped; Close is idempotent via sync.Once.
func (c *Core) Close() {
	c.closeOnce.Do(func() {
		c.store.Clear()
	})
}
