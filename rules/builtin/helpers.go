// Package builtin is the default rule library shipped with the engine:
// naming, shape, and cross-file consistency checks over OpenAPI IR, modeled
// as a flat set of typed visitor structs the same way the teacher's
// what_changed package gathers one comparison function per model field.
package builtin

import (
	"regexp"
	"strings"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/ir"
	"gopkg.in/yaml.v3"
)

func child(n *ir.Node, key string) *ir.Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.HasKey && c.Key == key {
			return c
		}
	}
	return nil
}

func stringValue(n *ir.Node, key string) (string, bool) {
	c := child(n, key)
	if c == nil || c.Kind != ir.KindString {
		return "", false
	}
	return c.Value, true
}

// docProvider adapts a plain map to refgraph.DocProvider without importing
// refgraph into every file that only needs the shape.
type docProvider map[string]*ir.Document

func (d docProvider) Document(uri string) (*ir.Document, bool) {
	doc, ok := d[uri]
	return doc, ok
}

var placeholderExp = regexp.MustCompile(`\{([^}]+)\}`)

// pathPlaceholders returns the names found inside "{...}" segments of a path
// template, in order of first appearance.
func pathPlaceholders(pathString string) []string {
	matches := placeholderExp.FindAllStringSubmatch(pathString, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

// normalizePathTemplate replaces every "{...}" segment with a fixed marker
// so two path templates that differ only by parameter name compare equal.
func normalizePathTemplate(pathString string) string {
	segments := strings.Split(pathString, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "{") && strings.HasSuffix(seg, "}") {
			segments[i] = "{}"
		}
	}
	return strings.Join(segments, "/")
}

// securitySchemeNames returns the names declared under components.securitySchemes.
func securitySchemeNames(c *atoms.Components) map[string]bool {
	out := map[string]bool{}
	if c == nil {
		return out
	}
	for pair := c.SecuritySchemes.First(); pair != nil; pair = pair.Next() {
		out[pair.Key()] = true
	}
	return out
}

// rootTagNames collects the names declared in a root document's top-level
// "tags" array. Entries are plain {name, description?} objects that the
// classify decision tree does not single out as their own type, so this
// walks the IR directly rather than going through atoms.
func rootTagNames(root *ir.Node) map[string]bool {
	out := map[string]bool{}
	tags := child(root, "tags")
	if tags == nil || tags.Kind != ir.KindArray {
		return out
	}
	for _, t := range tags.Children {
		if t.Kind != ir.KindObject {
			continue
		}
		if name, ok := stringValue(t, "name"); ok {
			out[name] = true
		}
	}
	return out
}

// identExp tests whether tok is safe to use as a bare "$.tok" jsonpath
// segment without bracket-quoting.
var identExp = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// unescapePointerToken reverses RFC 6901 escaping ("~1" -> "/", "~0" -> "~").
func unescapePointerToken(tok string) string {
	tok = strings.ReplaceAll(tok, "~1", "/")
	tok = strings.ReplaceAll(tok, "~0", "~")
	return tok
}

// pointerToJSONPath converts a JSON Pointer ("#/components/schemas/Pet") into
// the roughly-equivalent yaml-jsonpath query ("$.components.schemas.Pet"),
// bracket-quoting tokens that aren't bare identifiers.
func pointerToJSONPath(ptr string) string {
	p := strings.TrimPrefix(ptr, "#")
	p = strings.TrimPrefix(p, "/")
	if p == "" {
		return "$"
	}
	var b strings.Builder
	b.WriteString("$")
	for _, tok := range strings.Split(p, "/") {
		tok = unescapePointerToken(tok)
		if identExp.MatchString(tok) {
			b.WriteString(".")
			b.WriteString(tok)
		} else {
			b.WriteString("['")
			b.WriteString(strings.ReplaceAll(tok, "'", "\\'"))
			b.WriteString("']")
		}
	}
	return b.String()
}

// parseRootNode re-parses a document's raw source into a *yaml.Node tree,
// the shape yaml-jsonpath queries operate on, mirroring the teacher's own
// utils.FindNodes("re-unmarshal then yamlpath.Find") pattern.
func parseRootNode(rawText string) (*yaml.Node, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(rawText), &doc); err != nil {
		return nil, err
	}
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		return doc.Content[0], nil
	}
	return &doc, nil
}
