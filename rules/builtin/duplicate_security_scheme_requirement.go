package builtin

import (
	"fmt"

	"github.com/sailpoint-oss/telescope-core/rules"
)

type duplicateSecuritySchemeRequirement struct{}

// DuplicateSecuritySchemeRequirement reports a security requirement entry
// that names a scheme not declared under components.securitySchemes in any
// root document reachable from the entry's file.
func DuplicateSecuritySchemeRequirement() rules.Rule { return duplicateSecuritySchemeRequirement{} }

func (duplicateSecuritySchemeRequirement) Meta() rules.Meta {
	return rules.Meta{ID: "duplicate-security-scheme-requirement", RuleType: "openapi", Severity: rules.SeverityError, Scope: rules.ScopeCrossFile}
}

func (duplicateSecuritySchemeRequirement) NewState() any { return nil }

func (duplicateSecuritySchemeRequirement) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		SecurityRequirement: func(ctx *rules.Context, e *rules.SecurityRequirementEntity) {
			known := map[string]bool{}
			for _, rootURI := range ctx.GetRootDocuments(e.URI, e.Pointer) {
				idx, ok := ctx.Project.Atoms[rootURI]
				if !ok || idx.Components == nil {
					continue
				}
				for name := range securitySchemeNames(idx.Components) {
					known[name] = true
				}
			}
			if idx, ok := ctx.Project.Atoms[e.URI]; ok && idx.Components != nil {
				for name := range securitySchemeNames(idx.Components) {
					known[name] = true
				}
			}

			for _, schemeNode := range e.Node.Children {
				if !schemeNode.HasKey || known[schemeNode.Key] {
					continue
				}
				r, err := ctx.LocateKey(e.URI, schemeNode.Ptr)
				if err != nil {
					continue
				}
				ctx.Report(rules.Diagnostic{
					Message: fmt.Sprintf("security requirement references undefined scheme %q", schemeNode.Key),
					URI:     e.URI,
					Range:   r,
				})
			}
		},
	}
}
