package builtin

import (
	"fmt"
	"strings"

	"github.com/vmware-labs/yaml-jsonpath/pkg/yamlpath"

	"github.com/sailpoint-oss/telescope-core/rules"
)

const defaultMaxSchemaDepth = 5

type schemaDeepNesting struct {
	maxDepth int
}

// SchemaDeepNesting flags schemas nested (via "properties") beyond
// maxDepth, a style-budget rule. It uses a yaml-jsonpath sweep anchored at
// each schema's own JSON Pointer rather than a hand-rolled recursive walk.
func SchemaDeepNesting(maxDepth int) rules.Rule { return schemaDeepNesting{maxDepth: maxDepth} }

// SchemaDeepNestingDefault applies the default depth budget.
func SchemaDeepNestingDefault() rules.Rule { return SchemaDeepNesting(defaultMaxSchemaDepth) }

func (schemaDeepNesting) Meta() rules.Meta {
	return rules.Meta{ID: "schema-deep-nesting", RuleType: "openapi", Severity: rules.SeverityInfo, Scope: rules.ScopeSingle}
}

func (schemaDeepNesting) NewState() any { return nil }

func (r schemaDeepNesting) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Schema: func(ctx *rules.Context, e *rules.SchemaEntity) {
			doc, ok := ctx.Project.Documents[e.URI]
			if !ok {
				return
			}
			root, err := parseRootNode(doc.RawText)
			if err != nil {
				return
			}

			query := pointerToJSONPath(e.Pointer) + strings.Repeat(".properties.*", r.maxDepth)
			path, err := yamlpath.NewPath(query)
			if err != nil {
				return
			}
			nodes, err := path.Find(root)
			if err != nil || len(nodes) == 0 {
				return
			}

			rng, err := ctx.Locate(e.URI, e.Pointer)
			if err != nil {
				return
			}
			ctx.Report(rules.Diagnostic{
				Message: fmt.Sprintf("schema nests more than %d levels deep via properties", r.maxDepth),
				URI:     e.URI,
				Range:   rng,
			})
		},
	}
}
