package builtin

import (
	"fmt"
	"strings"

	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/rules"
)

type pathParamsMatch struct{}

// PathParamsMatch reports path-template placeholders ("{petId}") that have
// no corresponding {in:"path", name:"petId"} parameter declared on the
// operation, flagging the placeholder's own range rather than the whole
// path string, and proposing a fix that adds the missing parameter.
func PathParamsMatch() rules.Rule { return pathParamsMatch{} }

func (pathParamsMatch) Meta() rules.Meta {
	return rules.Meta{ID: "path-params-match", RuleType: "openapi", Severity: rules.SeverityError, Scope: rules.ScopeSingle, Fixable: true}
}

func (pathParamsMatch) NewState() any { return nil }

func (pathParamsMatch) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Operation: func(ctx *rules.Context, e *rules.OperationEntity) {
			names := pathPlaceholders(e.PathString)
			if len(names) == 0 {
				return
			}
			declared := declaredPathParams(e.Node)
			for _, name := range names {
				if declared[name] {
					continue
				}
				start, end, ok := placeholderRange(e.PathString, name, e.PathKeyLoc)
				if !ok {
					continue
				}
				ctx.Report(rules.Diagnostic{
					Message: fmt.Sprintf("path parameter %q has no matching {in:\"path\"} parameter declaration", name),
					URI:     e.URI,
					Range:   ctx.OffsetToRange(e.URI, start, end),
				})
				ctx.Fix(rules.FilePatch{
					URI: e.URI,
					Ops: []rules.PatchOp{{
						Op:      "add",
						Pointer: e.Pointer + "/parameters/-",
						Value: map[string]any{
							"name":     name,
							"in":       "path",
							"required": true,
							"schema":   map[string]any{"type": "string"},
						},
					}},
				})
			}
		},
	}
}

func declaredPathParams(operationNode *ir.Node) map[string]bool {
	out := map[string]bool{}
	params := child(operationNode, "parameters")
	if params == nil || params.Kind != ir.KindArray {
		return out
	}
	for _, p := range params.Children {
		if p.Kind != ir.KindObject {
			continue
		}
		name, hasName := stringValue(p, "name")
		loc, hasLoc := stringValue(p, "in")
		if hasName && hasLoc && loc == "path" {
			out[name] = true
		}
	}
	return out
}

// placeholderRange computes the byte offset span of "{name}" within the path
// template, anchored at the template's own key-range start.
func placeholderRange(pathString, name string, keyLoc ir.Loc) (start, end int, ok bool) {
	if !keyLoc.HasKeyRange {
		return 0, 0, false
	}
	needle := "{" + name + "}"
	idx := strings.Index(pathString, needle)
	if idx < 0 {
		return 0, 0, false
	}
	base := keyLoc.KeyStart
	return base + idx, base + idx + len(needle), true
}
