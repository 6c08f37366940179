package rules

import "sort"

// Context is passed to every visitor callback. It accumulates diagnostics
// for the rule currently executing and exposes location/graph helpers so
// rules never touch yaml.v3 or the reference graph directly.
type Context struct {
	Project  *ProjectContext
	RuleID   string
	Severity Severity

	diagnostics []Diagnostic
}

// NewContext creates a Context scoped to one rule's execution.
func NewContext(project *ProjectContext, ruleID string, severity Severity) *Context {
	return &Context{Project: project, RuleID: ruleID, Severity: severity}
}

// Report records a diagnostic. Code and Source default to the owning rule's
// ID and "telescope" when left unset, and Severity defaults to the rule's
// configured severity.
func (c *Context) Report(d Diagnostic) {
	if d.Code == "" {
		d.Code = c.RuleID
	}
	if d.Source == "" {
		d.Source = "telescope"
	}
	if d.Severity == "" {
		d.Severity = c.Severity
	}
	c.diagnostics = append(c.diagnostics, d)
}

// Fix attaches a fix proposal to the most recently reported diagnostic. It
// is a no-op if this Context has not reported anything yet.
func (c *Context) Fix(patch FilePatch) {
	if len(c.diagnostics) == 0 {
		return
	}
	c.diagnostics[len(c.diagnostics)-1].Fix = &patch
}

// Diagnostics returns the diagnostics accumulated so far without clearing them.
func (c *Context) Diagnostics() []Diagnostic {
	return c.diagnostics
}

// Locate returns the value range of the node at pointer within uri.
func (c *Context) Locate(uri, pointer string) (Range, error) {
	doc, ok := c.Project.Documents[uri]
	if !ok {
		return Range{}, &unknownDocument{uri}
	}
	n, err := doc.FindByPointer(pointer)
	if err != nil {
		return Range{}, err
	}
	return c.OffsetToRange(uri, n.Loc.ValStart, n.Loc.ValEnd), nil
}

// LocateKey returns the mapping-key range of the node at pointer, falling
// back to its value range when the node was not introduced by a key (e.g.
// array elements).
func (c *Context) LocateKey(uri, pointer string) (Range, error) {
	doc, ok := c.Project.Documents[uri]
	if !ok {
		return Range{}, &unknownDocument{uri}
	}
	n, err := doc.FindByPointer(pointer)
	if err != nil {
		return Range{}, err
	}
	if n.Loc.HasKeyRange {
		return c.OffsetToRange(uri, n.Loc.KeyStart, n.Loc.KeyEnd), nil
	}
	return c.OffsetToRange(uri, n.Loc.ValStart, n.Loc.ValEnd), nil
}

// LocateFirstChild returns the key range (or value range, if unkeyed) of the
// first child of the node at pointer, falling back to the node's own value
// range when it has no children.
func (c *Context) LocateFirstChild(uri, pointer string) (Range, error) {
	doc, ok := c.Project.Documents[uri]
	if !ok {
		return Range{}, &unknownDocument{uri}
	}
	n, err := doc.FindByPointer(pointer)
	if err != nil {
		return Range{}, err
	}
	if len(n.Children) == 0 {
		return c.OffsetToRange(uri, n.Loc.ValStart, n.Loc.ValEnd), nil
	}
	child := n.Children[0]
	if child.Loc.HasKeyRange {
		return c.OffsetToRange(uri, child.Loc.KeyStart, child.Loc.KeyEnd), nil
	}
	return c.OffsetToRange(uri, child.Loc.ValStart, child.Loc.ValEnd), nil
}

// OffsetToRange converts a byte-offset span within uri's source text into a
// line/character Range, using the line-start table computed for uri.
func (c *Context) OffsetToRange(uri string, start, end int) Range {
	offsets := c.Project.LineOffsets[uri]
	return Range{Start: offsetToPosition(offsets, start), End: offsetToPosition(offsets, end)}
}

// GetLinkedUris returns the set of URIs reachable from uri via the
// reference graph, in either direction.
func (c *Context) GetLinkedUris(uri string) []string {
	if c.Project.LinkedURIs == nil {
		return nil
	}
	return c.Project.LinkedURIs(uri)
}

// GetRootDocuments returns the root document URIs that can reach (uri,
// pointer) through the reference graph.
func (c *Context) GetRootDocuments(uri, pointer string) []string {
	if c.Project.RootDocuments == nil {
		return nil
	}
	return c.Project.RootDocuments(uri, pointer)
}

// GetPrimaryRoot returns the deterministic primary root for (uri, pointer),
// if any root can reach it.
func (c *Context) GetPrimaryRoot(uri, pointer string) (string, bool) {
	if c.Project.PrimaryRoot == nil {
		return "", false
	}
	return c.Project.PrimaryRoot(uri, pointer)
}

type unknownDocument struct{ uri string }

func (e *unknownDocument) Error() string { return "rules: unknown document " + e.uri }

// offsetToPosition converts a byte offset into a zero-indexed line/character
// position using a table of line-start offsets (offsets[i] is the byte
// offset of line i's first byte).
func offsetToPosition(lineOffsets []int, offset int) Position {
	if len(lineOffsets) == 0 {
		return Position{}
	}
	line := sort.Search(len(lineOffsets), func(i int) bool { return lineOffsets[i] > offset }) - 1
	if line < 0 {
		line = 0
	}
	return Position{Line: line, Character: offset - lineOffsets[line]}
}
