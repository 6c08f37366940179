package builtin

import (
	"fmt"
	"strings"

	"github.com/sailpoint-oss/telescope-core/rules"
)

type pathKeysNoTrailingSlash struct{}

// PathKeysNoTrailingSlash is a style rule: path templates other than the
// root "/" should not end with a trailing slash.
func PathKeysNoTrailingSlash() rules.Rule { return pathKeysNoTrailingSlash{} }

func (pathKeysNoTrailingSlash) Meta() rules.Meta {
	return rules.Meta{ID: "path-keys-no-trailing-slash", RuleType: "generic", Severity: rules.SeverityInfo, Scope: rules.ScopeSingle}
}

func (pathKeysNoTrailingSlash) NewState() any { return nil }

func (pathKeysNoTrailingSlash) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		PathItem: func(ctx *rules.Context, e *rules.PathItemEntity) {
			if e.PathString == "/" || !strings.HasSuffix(e.PathString, "/") {
				return
			}
			r, err := ctx.LocateKey(e.URI, e.Pointer)
			if err != nil {
				return
			}
			ctx.Report(rules.Diagnostic{
				Message: fmt.Sprintf("path %q has a trailing slash", e.PathString),
				URI:     e.URI,
				Range:   r,
			})
		},
	}
}
