package ir

import "strings"

// escapeToken escapes a raw mapping key into a JSON-Pointer reference token
// per RFC 6901 (~ -> ~0, / -> ~1). Order matters: ~ must be escaped first.
func escapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~", "~0")
	tok = strings.ReplaceAll(tok, "/", "~1")
	return tok
}

// unescapeToken reverses escapeToken.
func unescapeToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

// FindByPointer returns the unique node addressed by ptr, building and
// caching a pointer index on first call. The cache belongs to this
// *Document instance; callers that build a new Document (buildYAML/buildJSON
// on update) automatically get a fresh cache rather than a stale one.
func (d *Document) FindByPointer(ptr string) (*Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ptrIndex == nil {
		d.ptrIndex = make(map[string]*Node)
		indexNode(d.Root, d.ptrIndex)
	}
	n, ok := d.ptrIndex[ptr]
	if !ok {
		return nil, &NotFound{Ptr: ptr}
	}
	return n, nil
}

func indexNode(n *Node, idx map[string]*Node) {
	if n == nil {
		return
	}
	idx[n.Ptr] = n
	for _, c := range n.Children {
		indexNode(c, idx)
	}
}
