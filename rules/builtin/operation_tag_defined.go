package builtin

import (
	"fmt"

	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/rules"
)

type operationTagDefined struct{}

// OperationTagDefined reports operation tags that do not appear in any root
// document's top-level "tags" array reachable from the operation's file,
// cross-file aware via getRootDocuments/getPrimaryRoot.
func OperationTagDefined() rules.Rule { return operationTagDefined{} }

func (operationTagDefined) Meta() rules.Meta {
	return rules.Meta{ID: "operation-tag-defined", RuleType: "openapi", Severity: rules.SeverityWarning, Scope: rules.ScopeCrossFile}
}

func (operationTagDefined) NewState() any { return nil }

func (operationTagDefined) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Operation: func(ctx *rules.Context, e *rules.OperationEntity) {
			tagsNode := child(e.Node, "tags")
			if tagsNode == nil || tagsNode.Kind != ir.KindArray || len(tagsNode.Children) == 0 {
				return
			}

			known := map[string]bool{}
			for _, rootURI := range ctx.GetRootDocuments(e.URI, e.Pointer) {
				doc, ok := ctx.Project.Documents[rootURI]
				if !ok {
					continue
				}
				for name := range rootTagNames(doc.Root) {
					known[name] = true
				}
			}
			if doc, ok := ctx.Project.Documents[e.URI]; ok && classifyRootLike(doc.Root) {
				for name := range rootTagNames(doc.Root) {
					known[name] = true
				}
			}

			for _, tagNode := range tagsNode.Children {
				if tagNode.Kind != ir.KindString || tagNode.Value == "" {
					continue
				}
				if known[tagNode.Value] {
					continue
				}
				r, err := ctx.Locate(e.URI, tagNode.Ptr)
				if err != nil {
					continue
				}
				ctx.Report(rules.Diagnostic{
					Message: fmt.Sprintf("tag %q is not declared in any reachable root document's tags list", tagNode.Value),
					URI:     e.URI,
					Range:   r,
				})
			}
		},
	}
}

// classifyRootLike reports whether root has a top-level "tags" or "paths" key, a cheap
// check so an operation living directly in a root file without a separate
// getRootDocuments entry still sees its own tags.
func classifyRootLike(root *ir.Node) bool {
	return child(root, "tags") != nil || child(root, "paths") != nil
}
