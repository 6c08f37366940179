// Package classify implements the deterministic document-type classifier: a
// decision tree over an already-parsed object node, highest priority first.
package classify

import (
	"regexp"
	"strings"

	"github.com/sailpoint-oss/telescope-core/ir"
)

// Type is one of the document-type classifications.
type Type string

const (
	TypeRoot            Type = "root"
	TypePathItem        Type = "path-item"
	TypeOperation       Type = "operation"
	TypeComponents      Type = "components"
	TypeSchema          Type = "schema"
	TypeParameter       Type = "parameter"
	TypeResponse        Type = "response"
	TypeRequestBody     Type = "request-body"
	TypeHeader          Type = "header"
	TypeSecurityScheme  Type = "security-scheme"
	TypeExample         Type = "example"
	TypeLink            Type = "link"
	TypeCallback        Type = "callback"
	TypeJSONSchema      Type = "json-schema"
	TypeUnknown         Type = "unknown"
)

var (
	httpMethods    = []string{"get", "put", "post", "delete", "options", "head", "patch", "trace", "query"}
	paramLocations = map[string]bool{"query": true, "header": true, "path": true, "cookie": true}
	securityTypes  = map[string]bool{"apiKey": true, "http": true, "oauth2": true, "openIdConnect": true, "mutualTLS": true}
	runtimeExpKey  = regexp.MustCompile(`\{[^}]+\}`)
	statusCodeKey  = regexp.MustCompile(`^(default|[1-5](\d{2}|XX))$`)
)

// IdentifyType classifies an object node. Non-object nodes are always
// TypeUnknown, since every rule in the decision tree inspects top-level keys.
func IdentifyType(n *ir.Node) Type {
	if n == nil || n.Kind != ir.KindObject {
		return TypeUnknown
	}

	if v, ok := stringValue(n, "openapi"); ok && strings.HasPrefix(v, "3.") {
		return TypeRoot
	}
	if v, ok := stringValue(n, "swagger"); ok && strings.HasPrefix(v, "2.") {
		return TypeRoot
	}
	for _, k := range []string{"info", "paths", "components", "webhooks", "servers", "security", "tags", "externalDocs"} {
		if hasKey(n, k) {
			return TypeRoot
		}
	}
	for _, k := range []string{"$schema", "$id", "$defs", "definitions"} {
		if hasKey(n, k) {
			return TypeJSONSchema
		}
	}
	for _, m := range httpMethods {
		if c := child(n, m); c != nil && c.Kind == ir.KindObject {
			return TypePathItem
		}
	}
	if hasKey(n, "responses") {
		if respNode := child(n, "responses"); respNode != nil && respNode.Kind == ir.KindObject {
			hasStatusLike := false
			for _, c := range respNode.Children {
				if statusCodeKey.MatchString(c.Key) {
					hasStatusLike = true
					break
				}
			}
			if hasStatusLike || hasKey(n, "operationId") || hasKey(n, "summary") {
				return TypeOperation
			}
		}
	}
	if name, ok := stringValue(n, "name"); ok {
		if loc, ok := stringValue(n, "in"); ok && paramLocations[loc] {
			_ = name
			return TypeParameter
		}
	}
	if hasKey(n, "description") {
		if c := child(n, "content"); c != nil && c.Kind == ir.KindObject {
			return TypeResponse
		}
		if c := child(n, "headers"); c != nil && c.Kind == ir.KindObject {
			return TypeResponse
		}
	}
	if c := child(n, "content"); c != nil && c.Kind == ir.KindObject && !hasKey(n, "headers") {
		if _, ok := boolValue(n, "required"); ok {
			return TypeRequestBody
		}
		if _, ok := stringValue(n, "description"); ok {
			return TypeRequestBody
		}
	}
	if c := child(n, "schema"); c != nil && c.Kind == ir.KindObject {
		if _, ok := boolValue(n, "deprecated"); ok {
			return TypeHeader
		}
	}
	if v, ok := stringValue(n, "type"); ok && securityTypes[v] {
		return TypeSecurityScheme
	}
	if c := child(n, "flows"); c != nil && c.Kind == ir.KindObject {
		return TypeSecurityScheme
	}
	if hasKey(n, "value") || hasKey(n, "externalValue") {
		return TypeExample
	}
	if (hasKey(n, "operationRef") || hasKey(n, "operationId")) && !hasKey(n, "responses") {
		return TypeLink
	}
	for _, c := range n.Children {
		if runtimeExpKey.MatchString(c.Key) {
			return TypeCallback
		}
	}
	for _, k := range []string{"type", "properties", "allOf", "oneOf", "anyOf", "items", "$ref", "enum"} {
		if hasKey(n, k) {
			return TypeSchema
		}
	}
	return TypeUnknown
}

// IsHTTPMethod reports whether verb is a path-item HTTP-method key.
func IsHTTPMethod(verb string) bool {
	for _, m := range httpMethods {
		if verb == m {
			return true
		}
	}
	return false
}

func hasKey(n *ir.Node, key string) bool {
	return child(n, key) != nil
}

func child(n *ir.Node, key string) *ir.Node {
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

func boolValue(n *ir.Node, key string) (bool, bool) {
	c := child(n, key)
	if c == nil || c.Kind != ir.KindBoolean {
		return false, false
	}
	return c.Value == "true", true
}
