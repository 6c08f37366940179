// Package refgraph tracks the cross-file $ref dependency graph and resolves
// pointer targets, including across file boundaries.
package refgraph

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/sailpoint-oss/telescope-core/classify"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/store"
)

// Edge is one recorded $ref dependency.
type Edge struct {
	FromURI       string
	FromPointer   string
	RawRef        string
	TargetURI     string
	TargetPointer string
}

var httpRefExp = regexp.MustCompile(`^https?://`)

// resolveRef resolves rawRef against originURI per spec §4.3: refs starting
// with "#" are same-document edges, refs matching https?:// are recorded
// with the URL as targetURI but never loaded, and anything else is resolved
// relative to the directory of originURI using standard URL resolution
// rules (".", "..", leading "/" => workspace-root absolute). The fragment,
// if any, becomes targetPointer; fragments are stripped from targetURI.
func resolveRef(originURI, rawRef string) (targetURI, targetPointer string) {
	if strings.HasPrefix(rawRef, "#") {
		return originURI, rawRef
	}

	pathPart, fragment, hasFragment := strings.Cut(rawRef, "#")

	if httpRefExp.MatchString(rawRef) {
		targetURI = pathPart
	} else if base, err := url.Parse(originURI); err == nil {
		if ref, rerr := url.Parse(pathPart); rerr == nil {
			resolved := base.ResolveReference(ref)
			resolved.Fragment = ""
			targetURI = resolved.String()
		} else {
			targetURI = originURI
		}
	} else {
		targetURI = originURI
	}

	if hasFragment {
		targetPointer = "#" + fragment
	} else {
		targetPointer = "#"
	}
	return
}

// Graph is the cross-file reference graph.
type Graph struct {
	mu      sync.Mutex
	forward map[string][]Edge          // fromURI -> edges
	reverse map[string]map[string]bool // targetURI -> set of fromURIs
}

// New creates an empty Graph.
func New() *Graph {
	return &Graph{forward: map[string][]Edge{}, reverse: map[string]map[string]bool{}}
}

// ReplaceEdgesFor atomically replaces the outgoing edges for uri, resolving
// each raw reference against uri's directory.
func (g *Graph) ReplaceEdgesFor(uri string, raw []store.ReferenceEdge) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeReverseLocked(uri)

	edges := make([]Edge, 0, len(raw))
	for _, r := range raw {
		targetURI, targetPointer := resolveRef(uri, r.RawRef)
		edges = append(edges, Edge{
			FromURI: uri, FromPointer: r.FromPointer, RawRef: r.RawRef,
			TargetURI: targetURI, TargetPointer: targetPointer,
		})
		if targetURI != uri {
			if g.reverse[targetURI] == nil {
				g.reverse[targetURI] = map[string]bool{}
			}
			g.reverse[targetURI][uri] = true
		}
	}
	g.forward[uri] = edges
}

// RemoveURI strips all edges originating at uri.
func (g *Graph) RemoveURI(uri string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removeReverseLocked(uri)
	delete(g.forward, uri)
	delete(g.reverse, uri)
}

func (g *Graph) removeReverseLocked(uri string) {
	for _, e := range g.forward[uri] {
		if set, ok := g.reverse[e.TargetURI]; ok {
			delete(set, uri)
			if len(set) == 0 {
				delete(g.reverse, e.TargetURI)
			}
		}
	}
}

// DependenciesOf returns the unique target URIs referenced from uri,
// excluding self-loops.
func (g *Graph) DependenciesOf(uri string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range g.forward[uri] {
		if e.TargetURI == "" || e.TargetURI == uri || seen[e.TargetURI] {
			continue
		}
		seen[e.TargetURI] = true
		out = append(out, e.TargetURI)
	}
	return out
}

// DependentsOf is the inverse of DependenciesOf.
func (g *Graph) DependentsOf(uri string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	set := g.reverse[uri]
	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	return out
}

// EdgesFrom returns the edges recorded for uri.
func (g *Graph) EdgesFrom(uri string) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Edge(nil), g.forward[uri]...)
}

// EdgesTo returns every edge targeting uri.
func (g *Graph) EdgesTo(uri string) []Edge {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Edge
	for _, edges := range g.forward {
		for _, e := range edges {
			if e.TargetURI == uri {
				out = append(out, e)
			}
		}
	}
	return out
}

// DocProvider looks up a cached IR document by URI, the collaborator Deref
// and root resolution need to walk target pointers.
type DocProvider interface {
	Document(uri string) (*ir.Document, bool)
}

// UnresolvedRef is returned by Deref when a target document or pointer
// cannot be found.
type UnresolvedRef struct {
	Kind    string // "missingDoc" | "missingPointer"
	URI     string
	Pointer string
}

func (e *UnresolvedRef) Error() string {
	if e.Kind == "missingDoc" {
		return fmt.Sprintf("unresolved ref: missing document %q", e.URI)
	}
	return fmt.Sprintf("unresolved ref: missing pointer %q in %q", e.Pointer, e.URI)
}

// ResolveRef exposes resolveRef for callers (core's hover support) that need
// the target URI/pointer without walking the IR, e.g. to report an
// unresolved ref's intended target even when no document is cached for it.
func ResolveRef(originURI, rawRef string) (targetURI, targetPointer string) {
	return resolveRef(originURI, rawRef)
}

// Deref resolves rawRef relative to origin and walks the target document's
// IR by pointer, per spec §4.3. The returned node is not a copy.
func Deref(docs DocProvider, originURI, rawRef string) (*ir.Node, error) {
	targetURI, targetPointer := resolveRef(originURI, rawRef)
	doc, ok := docs.Document(targetURI)
	if !ok {
		return nil, &UnresolvedRef{Kind: "missingDoc", URI: targetURI}
	}
	node, err := doc.FindByPointer(targetPointer)
	if err != nil {
		return nil, &UnresolvedRef{Kind: "missingPointer", URI: targetURI, Pointer: targetPointer}
	}
	return node, nil
}

// RootClassifier returns a predicate suitable for RootsFor, classifying a
// URI as a root iff its cached document's root node classifies as TypeRoot.
func RootClassifier(docs DocProvider) func(uri string) bool {
	return func(uri string) bool {
		doc, ok := docs.Document(uri)
		if !ok {
			return false
		}
		return classify.IdentifyType(doc.Root) == classify.TypeRoot
	}
}

// RootsFor returns the set of root URIs that can reach (uri, pointer) via
// reverse-edge traversal; if uri itself is a root, the set contains uri. The
// walk is cycle-guarded with a visited set, mirroring the teacher's
// resolver.VisitReference shape generalized from re-walking YAML content to
// walking the reference graph's reverse edges.
func (g *Graph) RootsFor(uri, pointer string, isRoot func(uri string) bool) []string {
	_ = pointer // root resolution operates at file granularity
	g.mu.Lock()
	defer g.mu.Unlock()

	roots := map[string]bool{}
	visited := map[string]bool{}
	var walk func(u string)
	walk = func(u string) {
		if visited[u] {
			return
		}
		visited[u] = true
		if isRoot(u) {
			roots[u] = true
		}
		for dep := range g.reverse[u] {
			walk(dep)
		}
	}
	walk(uri)

	out := make([]string, 0, len(roots))
	for r := range roots {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// PrimaryRoot returns the lexicographically smallest URI in roots, for
// determinism.
func PrimaryRoot(roots []string) (string, bool) {
	if len(roots) == 0 {
		return "", false
	}
	sorted := append([]string(nil), roots...)
	sort.Strings(sorted)
	return sorted[0], true
}
