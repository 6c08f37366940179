// Package opindex tracks operation-identifier occurrences across files and
// supports cross-file uniqueness checks.
package opindex

import (
	"slices"
	"sort"
	"sync"

	"github.com/sailpoint-oss/telescope-core/atoms"
)

// Occurrence is one (uri, pointer) location an operationId appears at.
type Occurrence struct {
	URI     string
	Pointer string
}

// Index is the operation-identifier cross-file index.
type Index struct {
	mu         sync.Mutex
	byID       map[string]map[string][]Occurrence // operationId -> uri -> occurrences (within that uri)
	urisForID  map[string]map[string]bool         // operationId -> set of uris with at least one occurrence
}

// New creates an empty Index.
func New() *Index {
	return &Index{
		byID:      map[string]map[string][]Occurrence{},
		urisForID: map[string]map[string]bool{},
	}
}

// ReplaceForURI updates the occurrences contributed by uri, returning the
// set of operationId values whose occurrence set changed (added or
// removed), so consumers can widen an "affected URIs" set.
func (idx *Index) ReplaceForURI(uri string, operations []atoms.Operation) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	before := map[string][]Occurrence{}
	for id, byURI := range idx.byID {
		if occs, ok := byURI[uri]; ok {
			before[id] = append([]Occurrence(nil), occs...)
		}
	}

	idx.removeURILocked(uri)

	after := map[string]bool{}
	for _, op := range operations {
		if !op.HasOperationID || op.OperationID == "" {
			continue
		}
		id := op.OperationID
		after[id] = true
		if idx.byID[id] == nil {
			idx.byID[id] = map[string][]Occurrence{}
		}
		idx.byID[id][uri] = append(idx.byID[id][uri], Occurrence{URI: uri, Pointer: op.Pointer})
		if idx.urisForID[id] == nil {
			idx.urisForID[id] = map[string]bool{}
		}
		idx.urisForID[id][uri] = true
	}

	changed := map[string]bool{}
	for id := range before {
		if !slices.Equal(before[id], idx.byID[id][uri]) {
			changed[id] = true
		}
	}
	for id := range after {
		if !slices.Equal(before[id], idx.byID[id][uri]) {
			changed[id] = true
		}
	}
	out := make([]string, 0, len(changed))
	for id := range changed {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// RemoveURI strips every occurrence contributed by uri.
func (idx *Index) RemoveURI(uri string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeURILocked(uri)
}

func (idx *Index) removeURILocked(uri string) {
	for id, byURI := range idx.byID {
		if _, ok := byURI[uri]; ok {
			delete(byURI, uri)
			if len(byURI) == 0 {
				delete(idx.byID, id)
			}
		}
		if uris, ok := idx.urisForID[id]; ok {
			delete(uris, uri)
			if len(uris) == 0 {
				delete(idx.urisForID, id)
			}
		}
	}
}

// Occurrences returns every (uri, pointer) location operationId appears at.
func (idx *Index) Occurrences(operationID string) []Occurrence {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byURI := idx.byID[operationID]
	out := make([]Occurrence, 0, len(byURI))
	uris := make([]string, 0, len(byURI))
	for u := range byURI {
		uris = append(uris, u)
	}
	sort.Strings(uris)
	for _, u := range uris {
		out = append(out, byURI[u]...)
	}
	return out
}

// IsUnique reports whether operationID has exactly one occurrence.
func (idx *Index) IsUnique(operationID string) bool {
	return len(idx.Occurrences(operationID)) == 1
}
