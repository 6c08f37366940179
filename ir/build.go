package ir

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

var versionExp = regexp.MustCompile(`^3\.(0|1|2)\.`)

// BuildYAML lowers YAML source into an IRDocument. A document with parser
// errors fails with ParseFailure; no partial IR is returned.
func BuildYAML(uri, text string) (*Document, error) {
	return build(uri, text, FormatYAML)
}

// BuildJSON lowers JSON source into an IRDocument. JSON text is parsed
// through the same yaml.v3 node scanner as YAML (gopkg.in/yaml.v3 treats
// JSON as a YAML subset), which gives duplicate-key-keeps-last behavior and
// tolerates trailing commas and "#" comments without a second parser
// implementation; "//" and "/* */" are not recognized as comments. This mirrors the teacher's own json/json.go philosophy of
// building JSON handling on top of the YAML node tree.
func BuildJSON(uri, text string) (*Document, error) {
	return build(uri, text, FormatJSON)
}

func build(uri, text string, format Format) (*Document, error) {
	var docNode yaml.Node
	if err := yaml.Unmarshal([]byte(text), &docNode); err != nil {
		return nil, &ParseFailure{Message: err.Error()}
	}

	root := &docNode
	if docNode.Kind == yaml.DocumentNode && len(docNode.Content) > 0 {
		root = docNode.Content[0]
	}

	sum := sha1.Sum([]byte(text))
	doc := &Document{
		URI:     uri,
		Format:  format,
		RawText: text,
		Hash:    hex.EncodeToString(sum[:]),
		MtimeMs: time.Now().UnixMilli(),
	}

	b := &builder{uri: uri, text: text, lineStarts: buildLineStarts(text), anchors: map[string]string{}}
	doc.Root = b.lower(root, "#", "", false, nil)
	doc.Version = detectVersion(doc.Root)
	return doc, nil
}

func detectVersion(root *Node) Version {
	if root == nil || root.Kind != KindObject {
		return VersionUnknown
	}
	for _, c := range root.Children {
		if c.HasKey && c.Key == "openapi" && c.Kind == KindString {
			if m := versionExp.FindStringSubmatch(c.Value); m != nil {
				return Version("3." + m[1])
			}
		}
	}
	return VersionUnknown
}

type builder struct {
	uri        string
	text       string
	lineStarts []int
	// anchors maps an anchor name to the pointer of the node it was defined
	// on, populated as nodes are visited in pre-order. Aliases resolve only
	// against anchors already seen, matching Open Question (a): resolution
	// is best-effort, limited to anchors defined earlier in document order.
	anchors map[string]string
}

func (b *builder) lower(n *yaml.Node, ptr, key string, hasKey bool, keyNode *yaml.Node) *Node {
	if n == nil {
		return nil
	}

	if n.Kind == yaml.AliasNode {
		saved := make(map[string]string, len(b.anchors))
		for k, v := range b.anchors {
			saved[k] = v
		}
		resolved := b.lower(n.Alias, ptr, key, hasKey, keyNode)
		b.anchors = saved
		if resolved == nil {
			return nil
		}
		if p, ok := saved[n.Value]; ok {
			resolved.AliasTargetPtr = p
			resolved.HasAliasTarget = true
		}
		// the alias token's own location, not the anchor's defining node.
		start, end := b.offsetRange(n)
		resolved.Loc.Start, resolved.Loc.End = start, end
		resolved.Loc.ValStart, resolved.Loc.ValEnd = start, end
		if keyNode != nil {
			ks, ke := b.offsetRange(keyNode)
			resolved.Loc.KeyStart, resolved.Loc.KeyEnd = ks, ke
			resolved.Loc.HasKeyRange = true
			resolved.Loc.Start = ks
		}
		resolved.Ptr = ptr
		resolved.Key = key
		resolved.HasKey = hasKey
		return resolved
	}

	if n.Anchor != "" {
		b.anchors[n.Anchor] = ptr
	}

	valStart, valEnd := b.offsetRange(n)
	loc := Loc{Start: valStart, End: valEnd, ValStart: valStart, ValEnd: valEnd}
	if keyNode != nil {
		ks, ke := b.offsetRange(keyNode)
		loc.KeyStart, loc.KeyEnd = ks, ke
		loc.HasKeyRange = true
		loc.Start = ks
	}

	out := &Node{Ptr: ptr, URI: b.uri, Key: key, HasKey: hasKey, Loc: loc}

	switch n.Kind {
	case yaml.MappingNode:
		out.Kind = KindObject
		out.Children = make([]*Node, 0, len(n.Content)/2)
		index := map[string]int{}
		for i := 0; i+1 < len(n.Content); i += 2 {
			kNode, vNode := n.Content[i], n.Content[i+1]
			childKey := kNode.Value
			childPtr := ptr + "/" + escapeToken(childKey)
			child := b.lower(vNode, childPtr, childKey, true, kNode)
			if pos, dup := index[childKey]; dup {
				// duplicate keys keep the last value.
				out.Children[pos] = child
				continue
			}
			index[childKey] = len(out.Children)
			out.Children = append(out.Children, child)
		}
		extendToLastChild(out)
	case yaml.SequenceNode:
		out.Kind = KindArray
		out.Children = make([]*Node, 0, len(n.Content))
		for i, item := range n.Content {
			childPtr := fmt.Sprintf("%s/%d", ptr, i)
			out.Children = append(out.Children, b.lower(item, childPtr, "", false, nil))
		}
		extendToLastChild(out)
	case yaml.ScalarNode:
		out.Kind = scalarKind(n)
		out.Value = n.Value
		out.HasValue = true
	default:
		out.Kind = KindNull
	}

	return out
}

// extendToLastChild widens a container's end offset to cover its last child,
// since yaml.v3 does not expose a closing-delimiter offset directly.
func extendToLastChild(n *Node) {
	if len(n.Children) == 0 {
		return
	}
	last := n.Children[len(n.Children)-1]
	if last.Loc.End > n.Loc.End {
		n.Loc.End = last.Loc.End
		n.Loc.ValEnd = n.Loc.End
	}
}

func scalarKind(n *yaml.Node) Kind {
	switch n.Tag {
	case "!!int", "!!float":
		return KindNumber
	case "!!bool":
		return KindBoolean
	case "!!null":
		return KindNull
	default:
		return KindString
	}
}

func buildLineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func (b *builder) offsetRange(n *yaml.Node) (int, int) {
	start := b.offsetAt(n.Line, n.Column)
	end := start
	if n.Kind == yaml.ScalarNode {
		end = start + len(n.Value)
	}
	return start, end
}

// offsetAt converts a 1-indexed (line, column) pair, as reported by
// yaml.v3's Node.Line/Node.Column, into a byte offset into the document.
func (b *builder) offsetAt(line, col int) int {
	if line < 1 {
		line = 1
	}
	idx := line - 1
	if idx >= len(b.lineStarts) {
		idx = len(b.lineStarts) - 1
	}
	lineStart := b.lineStarts[idx]
	if col <= 1 {
		return lineStart
	}
	rest := b.text[lineStart:]
	count := 1
	for i := range rest {
		if count == col {
			return lineStart + i
		}
		count++
	}
	return lineStart + len(rest)
}
