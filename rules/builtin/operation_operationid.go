package builtin

import "github.com/sailpoint-oss/telescope-core/rules"

type operationOperationID struct{}

// OperationOperationID reports operations missing an operationId, at the
// range of the operation's first child (so the diagnostic lands on
// something visible even though there is no operationId node to point at).
func OperationOperationID() rules.Rule { return operationOperationID{} }

func (operationOperationID) Meta() rules.Meta {
	return rules.Meta{ID: "operation-operationid", RuleType: "openapi", Severity: rules.SeverityWarning, Scope: rules.ScopeSingle}
}

func (operationOperationID) NewState() any { return nil }

func (operationOperationID) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Operation: func(ctx *rules.Context, e *rules.OperationEntity) {
			if e.HasOperationID {
				return
			}
			r, err := ctx.LocateFirstChild(e.URI, e.Pointer)
			if err != nil {
				return
			}
			ctx.Report(rules.Diagnostic{
				Message: "operation does not declare an operationId",
				URI:     e.URI,
				Range:   r,
			})
		},
	}
}
