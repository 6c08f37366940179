package builtin

import (
	"fmt"
	"sort"

	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/rules"
)

type noAmbiguousPaths struct{}

// NoAmbiguousPaths reports sibling path templates that collide once
// parameter placeholders are normalized ("/{a}/x" vs "/{b}/x").
func NoAmbiguousPaths() rules.Rule { return noAmbiguousPaths{} }

func (noAmbiguousPaths) Meta() rules.Meta {
	return rules.Meta{ID: "no-ambiguous-paths", RuleType: "openapi", Severity: rules.SeverityWarning, Scope: rules.ScopeSingle}
}

func (noAmbiguousPaths) NewState() any { return nil }

func (noAmbiguousPaths) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Root: func(ctx *rules.Context, e *rules.RootEntity) {
			pathsNode := child(e.Node, "paths")
			if pathsNode == nil || pathsNode.Kind != ir.KindObject {
				return
			}

			byNormalized := map[string][]*ir.Node{}
			for _, p := range pathsNode.Children {
				norm := normalizePathTemplate(p.Key)
				byNormalized[norm] = append(byNormalized[norm], p)
			}

			norms := make([]string, 0, len(byNormalized))
			for norm := range byNormalized {
				norms = append(norms, norm)
			}
			sort.Strings(norms)

			for _, norm := range norms {
				group := byNormalized[norm]
				if len(group) < 2 {
					continue
				}
				for i, p := range group {
					var related []rules.RelatedInformation
					for j, other := range group {
						if i == j {
							continue
						}
						if r, err := ctx.LocateKey(e.URI, other.Ptr); err == nil {
							related = append(related, rules.RelatedInformation{
								URI: e.URI, Range: r,
								Message: fmt.Sprintf("ambiguous with path %q", other.Key),
							})
						}
					}
					r, err := ctx.LocateKey(e.URI, p.Ptr)
					if err != nil {
						continue
					}
					ctx.Report(rules.Diagnostic{
						Message:            fmt.Sprintf("path %q is ambiguous with sibling path(s) once parameters are normalized", p.Key),
						URI:                e.URI,
						Range:              r,
						RelatedInformation: related,
					})
				}
			}
		},
	}
}
