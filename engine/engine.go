// Package engine drives rule execution over an IR-backed project: per-file
// entity dispatch in a fixed order, a project-wide pass for cross-file
// rules, and deterministic result-ID computation.
package engine

import (
	"log/slog"
	"sort"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/internal/errorutils"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/rules"
)

// Binding pairs a rule with its effective severity, as resolved by the
// config package. A rule disabled through rulesOverrides is omitted from
// the ruleset; Run skips any remaining binding whose severity is off.
type Binding struct {
	Rule     rules.Rule
	Severity rules.Severity
}

// Result is one execution pass's outcome.
type Result struct {
	Diagnostics []rules.Diagnostic
	ResultID    string
}

// ruleCrash wraps a recovered panic from a single rule's visitor callback.
// It is always contained: Run never returns it, only logs it.
type ruleCrash struct {
	RuleID string
	Entity string
	Cause  any
}

func (e *ruleCrash) Error() string {
	return "rule " + e.RuleID + " panicked while visiting " + e.Entity
}

type boundRule struct {
	ctx *rules.Context
	v   rules.Visitors
	id  string
}

// Run executes bindings over project, in entity-kind dispatch order:
// Document, Root, PathItem, Operation, Component, {Schema, Parameter,
// Response, RequestBody, Header, MediaType, SecurityRequirement, Example,
// Link, Callback}, Reference per document (sorted URIs, for determinism),
// then Project once across the whole pass. version seeds the result ID so
// diagnostics computed under a different rule/config snapshot never collide
// with a prior one.
func Run(project *rules.ProjectContext, bindings []Binding, version string) *Result {
	bounds := make([]boundRule, 0, len(bindings))
	for _, b := range bindings {
		if b.Severity == rules.SeverityOff {
			continue
		}
		ctx := rules.NewContext(project, b.Rule.Meta().ID, b.Severity)
		v := b.Rule.Check(ctx, b.Rule.NewState())
		bounds = append(bounds, boundRule{ctx: ctx, v: v, id: b.Rule.Meta().ID})
	}

	var crashes []error
	safeCall := func(id, entityDesc string, fn func()) {
		defer func() {
			if r := recover(); r != nil {
				crashes = append(crashes, &ruleCrash{RuleID: id, Entity: entityDesc, Cause: r})
			}
		}()
		fn()
	}

	uris := make([]string, 0, len(project.Documents))
	for uri := range project.Documents {
		uris = append(uris, uri)
	}
	sort.Strings(uris)

	for _, uri := range uris {
		dispatchDocument(project.Documents[uri], project.Atoms[uri], bounds, safeCall)
	}

	for _, b := range bounds {
		if b.v.Project == nil {
			continue
		}
		bc := b
		safeCall(bc.id, "project", func() { bc.v.Project(bc.ctx, project) })
	}

	containCrashes(crashes)

	var diagnostics []rules.Diagnostic
	for _, b := range bounds {
		diagnostics = append(diagnostics, b.ctx.Diagnostics()...)
	}
	diagnostics = Canonicalize(diagnostics)

	return &Result{Diagnostics: diagnostics, ResultID: ComputeResultID(version, diagnostics)}
}

// containCrashes logs every recovered rule panic and folds them through
// errorutils.Filtered without returning them: other rules' diagnostics are
// never lost to one rule's crash.
func containCrashes(crashes []error) {
	if len(crashes) == 0 {
		return
	}
	joined := errorutils.Join(crashes...)
	_ = errorutils.Filtered(joined, func(err error) bool {
		rc, ok := err.(*ruleCrash)
		if ok {
			slog.Error("rule panicked", "rule", rc.RuleID, "entity", rc.Entity, "cause", rc.Cause)
		}
		return !ok
	})
}

func dispatchDocument(doc *ir.Document, idx *atoms.AtomIndex, bounds []boundRule, safeCall func(id, entityDesc string, fn func())) {
	if doc == nil || idx == nil {
		return
	}

	docEntity := &rules.DocumentEntity{URI: doc.URI, Doc: doc}
	for _, b := range bounds {
		if b.v.Document == nil {
			continue
		}
		bc, e := b, docEntity
		safeCall(bc.id, "document:"+doc.URI, func() { bc.v.Document(bc.ctx, e) })
	}

	if isRootDocument(doc) {
		rootEntity := &rules.RootEntity{URI: doc.URI, Node: doc.Root}
		for _, b := range bounds {
			if b.v.Root == nil {
				continue
			}
			bc, e := b, rootEntity
			safeCall(bc.id, "root:"+doc.URI, func() { bc.v.Root(bc.ctx, e) })
		}
	}

	pathKeyLocs := map[string]ir.Loc{}
	for _, pi := range pathItemEntities(doc) {
		pathKeyLocs[pi.PathString] = pi.Node.Loc
		for _, b := range bounds {
			if b.v.PathItem == nil {
				continue
			}
			bc, e := b, pi
			safeCall(bc.id, "pathItem:"+e.Pointer, func() { bc.v.PathItem(bc.ctx, e) })
		}
	}

	for _, op := range idx.Operations {
		node, err := doc.FindByPointer(op.Pointer)
		if err != nil {
			continue
		}
		entity := &rules.OperationEntity{
			URI: op.URI, Pointer: op.Pointer, PathString: op.PathString, Method: op.Method,
			OperationID: op.OperationID, HasOperationID: op.HasOperationID,
			Node: node, PathKeyLoc: pathKeyLocs[op.PathString],
		}
		for _, b := range bounds {
			if b.v.Operation == nil {
				continue
			}
			bc, e := b, entity
			safeCall(bc.id, "operation:"+e.Pointer, func() { bc.v.Operation(bc.ctx, e) })
		}
	}

	for _, c := range componentEntities(doc) {
		for _, b := range bounds {
			if b.v.Component == nil {
				continue
			}
			bc, e := b, c
			safeCall(bc.id, "component:"+e.Pointer, func() { bc.v.Component(bc.ctx, e) })
		}
	}

	for _, entry := range idx.Schemas {
		e := &rules.SchemaEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Schema == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "schema:"+ee.Pointer, func() { bc.v.Schema(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Parameters {
		e := &rules.ParameterEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Parameter == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "parameter:"+ee.Pointer, func() { bc.v.Parameter(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Responses {
		e := &rules.ResponseEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Response == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "response:"+ee.Pointer, func() { bc.v.Response(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.RequestBodies {
		e := &rules.RequestBodyEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.RequestBody == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "requestBody:"+ee.Pointer, func() { bc.v.RequestBody(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Headers {
		e := &rules.HeaderEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Header == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "header:"+ee.Pointer, func() { bc.v.Header(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.MediaTypes {
		e := &rules.MediaTypeEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.MediaType == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "mediaType:"+ee.Pointer, func() { bc.v.MediaType(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.SecurityRequirements {
		e := &rules.SecurityRequirementEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.SecurityRequirement == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "securityRequirement:"+ee.Pointer, func() { bc.v.SecurityRequirement(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Examples {
		e := &rules.ExampleEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Example == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "example:"+ee.Pointer, func() { bc.v.Example(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Links {
		e := &rules.LinkEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Link == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "link:"+ee.Pointer, func() { bc.v.Link(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.Callbacks {
		e := &rules.CallbackEntity{URI: entry.URI, Pointer: entry.Pointer, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Callback == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "callback:"+ee.Pointer, func() { bc.v.Callback(bc.ctx, ee) })
		}
	}
	for _, entry := range idx.References {
		e := &rules.ReferenceEntity{URI: entry.URI, Pointer: entry.Pointer, RawRef: entry.Node.Value, Node: entry.Node}
		for _, b := range bounds {
			if b.v.Reference == nil {
				continue
			}
			bc, ee := b, e
			safeCall(bc.id, "reference:"+ee.Pointer, func() { bc.v.Reference(bc.ctx, ee) })
		}
	}
}

func isRootDocument(doc *ir.Document) bool {
	return doc.Version != ir.VersionUnknown || childNode(doc.Root, "paths") != nil || childNode(doc.Root, "info") != nil
}

func childNode(n *ir.Node, key string) *ir.Node {
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

func pathItemEntities(doc *ir.Document) []*rules.PathItemEntity {
	pathsNode := childNode(doc.Root, "paths")
	if pathsNode == nil {
		return nil
	}
	out := make([]*rules.PathItemEntity, 0, len(pathsNode.Children))
	for _, p := range pathsNode.Children {
		out = append(out, &rules.PathItemEntity{URI: doc.URI, Pointer: p.Ptr, PathString: p.Key, Node: p})
	}
	return out
}

func componentEntities(doc *ir.Document) []*rules.ComponentEntity {
	compNode := childNode(doc.Root, "components")
	if compNode == nil {
		return nil
	}
	var out []*rules.ComponentEntity
	for _, kindNode := range compNode.Children {
		if kindNode.Kind != ir.KindObject {
			continue
		}
		for _, entry := range kindNode.Children {
			out = append(out, &rules.ComponentEntity{URI: doc.URI, Kind: kindNode.Key, Name: entry.Key, Pointer: entry.Ptr, Node: entry})
		}
	}
	return out
}
