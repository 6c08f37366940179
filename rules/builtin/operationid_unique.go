package builtin

import (
	"fmt"
	"sort"

	"github.com/sailpoint-oss/telescope-core/rules"
)

type operationIDUnique struct{}

// OperationIDUnique reports operationId values that occur more than once
// across the workspace, each occurrence annotated with relatedInformation
// pointing at the others.
func OperationIDUnique() rules.Rule { return operationIDUnique{} }

func (operationIDUnique) Meta() rules.Meta {
	return rules.Meta{
		ID:       "operationid-unique",
		RuleType: "openapi",
		Severity: rules.SeverityWarning,
		Scope:    rules.ScopeCrossFile,
	}
}

func (operationIDUnique) NewState() any { return nil }

type opOccurrence struct{ uri, pointer string }

func (operationIDUnique) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Project: func(ctx *rules.Context, p *rules.ProjectContext) {
			byID := map[string][]opOccurrence{}

			uris := make([]string, 0, len(p.Atoms))
			for uri := range p.Atoms {
				uris = append(uris, uri)
			}
			sort.Strings(uris)

			for _, uri := range uris {
				for _, op := range p.Atoms[uri].Operations {
					if !op.HasOperationID || op.OperationID == "" {
						continue
					}
					byID[op.OperationID] = append(byID[op.OperationID], opOccurrence{uri: op.URI, pointer: op.Pointer})
				}
			}

			ids := make([]string, 0, len(byID))
			for id := range byID {
				ids = append(ids, id)
			}
			sort.Strings(ids)

			for _, id := range ids {
				occs := byID[id]
				if len(occs) < 2 {
					continue
				}
				for i, occ := range occs {
					var related []rules.RelatedInformation
					for j, other := range occs {
						if i == j {
							continue
						}
						if r, err := ctx.Locate(other.uri, other.pointer); err == nil {
							related = append(related, rules.RelatedInformation{
								URI: other.uri, Range: r,
								Message: fmt.Sprintf("another operation also declares operationId %q", id),
							})
						}
					}
					r, err := ctx.Locate(occ.uri, occ.pointer+"/operationId")
					if err != nil {
						r, err = ctx.Locate(occ.uri, occ.pointer)
						if err != nil {
							continue
						}
					}
					ctx.Report(rules.Diagnostic{
						Message:            fmt.Sprintf("operationId %q is not unique across the workspace", id),
						URI:                occ.uri,
						Range:              r,
						RelatedInformation: related,
					})
				}
			}
		},
	}
}
