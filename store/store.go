// Package store implements the bounded, LRU, in-memory document store keyed
// by normalized URI.
package store

import (
	"container/list"
	"log/slog"
	"regexp"
	"sync"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/ir"
)

// DefaultBound is the default maximum number of cached URIs.
const DefaultBound = 500

// Entry is what the store caches per URI.
type Entry struct {
	IR          *ir.Document
	Atoms       *atoms.AtomIndex
	Version     int
	LanguageID  string
	LineOffsets []int
}

// GraphUpdater and OpIndexUpdater are the collaborators the store drives on
// update/remove, kept as narrow interfaces so store does not import
// refgraph/opindex directly (avoiding an import cycle, since both of those
// packages are themselves consulted by higher-level callers alongside
// store). Concrete wiring happens in the core package.
type GraphUpdater interface {
	ReplaceEdgesFor(uri string, edges []ReferenceEdge)
	RemoveURI(uri string)
}

type OpIndexUpdater interface {
	ReplaceForURI(uri string, operations []atoms.Operation) (changedOperationIDs []string)
	RemoveURI(uri string)
}

// ReferenceEdge mirrors refgraph.Edge's shape without importing refgraph.
type ReferenceEdge struct {
	FromURI       string
	FromPointer   string
	RawRef        string
	TargetURI     string
	TargetPointer string
}

// AffectedTracker receives affectedness notifications; core/scheduler
// implement it to maintain the affected-URI set described in spec §4.7.
type AffectedTracker interface {
	MarkAffected(uris ...string)
}

var notOpenAPIFilenames = regexp.MustCompile(`(^|/)(package(-lock)?\.json|tsconfig\.json|\.eslintrc(\.json)?)$`)

// Store is the bounded LRU document cache.
type Store struct {
	mu    sync.Mutex
	bound int
	log   *slog.Logger

	entries map[string]*list.Element // uri -> element holding *node
	order   *list.List

	graph    GraphUpdater
	opIndex  OpIndexUpdater
	affected AffectedTracker

	dependentsOf func(uri string) []string
}

type node struct {
	uri   string
	entry *Entry
}

// Option configures a Store at construction time.
type Option func(*Store)

// WithBound overrides the default 500-URI bound.
func WithBound(n int) Option {
	return func(s *Store) { s.bound = n }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.log = l }
}

// WithGraph wires the reference graph collaborator.
func WithGraph(g GraphUpdater) Option {
	return func(s *Store) { s.graph = g }
}

// WithOpIndex wires the operation-ID index collaborator.
func WithOpIndex(o OpIndexUpdater) Option {
	return func(s *Store) { s.opIndex = o }
}

// WithAffectedTracker wires the affected-set collaborator.
func WithAffectedTracker(a AffectedTracker) Option {
	return func(s *Store) { s.affected = a }
}

// WithDependentsOf wires a function answering the reverse-dependency set for
// a URI, used to widen the affected set on update (spec §4.2 step 8).
func WithDependentsOf(f func(uri string) []string) Option {
	return func(s *Store) { s.dependentsOf = f }
}

// New creates a Store with the given options.
func New(opts ...Option) *Store {
	s := &Store{
		bound:   DefaultBound,
		log:     slog.Default(),
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// looksLikeNotOpenAPI is the fast-reject heuristic run before parsing, per
// spec §4.2 step 1. It matches the filename only; text is not inspected.
func looksLikeNotOpenAPI(uri string, text string) bool {
	if notOpenAPIFilenames.MatchString(uri) {
		return true
	}
	return false
}

// Update parses, extracts atoms, and caches a document, per the 8-step
// sequence in spec §4.2. Reference-graph and operation-ID index replacement
// are delegated to the wired collaborators when present. The returned
// changedOperationIDs lets the caller (scheduler, via opIndex.Occurrences)
// widen the affected set to every URI sharing one of those IDs — store
// itself only knows the uri+dependentsOf half of the affected set.
func (s *Store) Update(uri, text, languageID string, version int, format ir.Format) (changedOperationIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if looksLikeNotOpenAPI(uri, text) {
		s.removeLocked(uri)
		return nil
	}

	var doc *ir.Document
	var err error
	switch format {
	case ir.FormatJSON:
		doc, err = ir.BuildJSON(uri, text)
	default:
		doc, err = ir.BuildYAML(uri, text)
	}
	if err != nil {
		s.log.Error("parse failure", "uri", uri, "error", err)
		s.removeLocked(uri)
		return nil
	}

	atomIdx := atoms.Extract(doc)

	if s.graph != nil {
		s.graph.ReplaceEdgesFor(uri, refEdges(uri, atomIdx))
	}

	if s.opIndex != nil {
		changedOperationIDs = s.opIndex.ReplaceForURI(uri, atomIdx.Operations)
	}

	lineOffsets := buildLineOffsets(text)

	entry := &Entry{IR: doc, Atoms: atomIdx, Version: version, LanguageID: languageID, LineOffsets: lineOffsets}
	s.putLocked(uri, entry)

	s.markAffectedLocked(uri)
	return changedOperationIDs
}

// Get returns the cached entry for uri, bumping its access order.
func (s *Store) Get(uri string) (*Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	el, ok := s.entries[uri]
	if !ok {
		return nil, false
	}
	s.order.MoveToFront(el)
	return el.Value.(*node).entry, true
}

// Remove evicts uri and strips its graph/operation-ID bookkeeping.
func (s *Store) Remove(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(uri)
	s.markAffectedLocked(uri)
}

// Clear wipes all state.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*list.Element)
	s.order.Init()
}

// Len returns the number of cached URIs.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.order.Len()
}

func (s *Store) putLocked(uri string, entry *Entry) {
	if el, ok := s.entries[uri]; ok {
		el.Value.(*node).entry = entry
		s.order.MoveToFront(el)
		return
	}
	el := s.order.PushFront(&node{uri: uri, entry: entry})
	s.entries[uri] = el

	for s.order.Len() > s.bound {
		back := s.order.Back()
		if back == nil {
			break
		}
		evicted := back.Value.(*node).uri
		s.order.Remove(back)
		delete(s.entries, evicted)
		s.log.Debug("evicted LRU entry", "uri", evicted)
		if s.graph != nil {
			s.graph.RemoveURI(evicted)
		}
		if s.opIndex != nil {
			s.opIndex.RemoveURI(evicted)
		}
	}
}

func (s *Store) removeLocked(uri string) {
	if el, ok := s.entries[uri]; ok {
		s.order.Remove(el)
		delete(s.entries, uri)
	}
	if s.graph != nil {
		s.graph.RemoveURI(uri)
	}
	if s.opIndex != nil {
		s.opIndex.RemoveURI(uri)
	}
}

func (s *Store) markAffectedLocked(uri string) {
	if s.affected == nil {
		return
	}
	affected := []string{uri}
	if s.dependentsOf != nil {
		affected = append(affected, s.dependentsOf(uri)...)
	}
	s.affected.MarkAffected(affected...)
}

func refEdges(uri string, idx *atoms.AtomIndex) []ReferenceEdge {
	edges := make([]ReferenceEdge, 0, len(idx.References))
	for _, ref := range idx.References {
		edges = append(edges, ReferenceEdge{FromURI: uri, FromPointer: ref.Pointer, RawRef: ref.Node.Value})
	}
	return edges
}

func buildLineOffsets(text string) []int {
	offsets := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			offsets = append(offsets, i+1)
		}
	}
	return offsets
}
