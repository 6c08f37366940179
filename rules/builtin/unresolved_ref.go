package builtin

import (
	"errors"
	"fmt"

	"github.com/sailpoint-oss/telescope-core/refgraph"
	"github.com/sailpoint-oss/telescope-core/rules"
)

type unresolvedRef struct{}

// UnresolvedRef surfaces refgraph.Deref failures as first-class diagnostics
// instead of only a resolver-internal error.
func UnresolvedRef() rules.Rule { return unresolvedRef{} }

func (unresolvedRef) Meta() rules.Meta {
	return rules.Meta{ID: "unresolved-ref", RuleType: "openapi", Severity: rules.SeverityError, Scope: rules.ScopeCrossFile}
}

func (unresolvedRef) NewState() any { return nil }

func (unresolvedRef) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Reference: func(ctx *rules.Context, e *rules.ReferenceEntity) {
			_, err := refgraph.Deref(docProvider(ctx.Project.Documents), e.URI, e.RawRef)
			if err == nil {
				return
			}
			var ur *refgraph.UnresolvedRef
			if !errors.As(err, &ur) {
				return
			}
			r, locErr := ctx.Locate(e.URI, e.Pointer)
			if locErr != nil {
				return
			}
			ctx.Report(rules.Diagnostic{
				Message: fmt.Sprintf("unresolved reference %q: %s", e.RawRef, ur.Error()),
				URI:     e.URI,
				Range:   r,
			})
		},
	}
}
