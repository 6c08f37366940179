package builtin

import "github.com/sailpoint-oss/telescope-core/rules"

// All returns every built-in rule at its default configuration, in a
// deterministic, stable order.
func All() []rules.Rule {
	return []rules.Rule{
		OperationIDUnique(),
		PathParamsMatch(),
		OperationOperationID(),
		OperationTagDefined(),
		PathKeysNoTrailingSlash(),
		NoUnusedComponents(),
		NoAmbiguousPaths(),
		SchemaDeepNestingDefault(),
		UnresolvedRef(),
		DuplicateSecuritySchemeRequirement(),
	}
}

// ByID returns the built-in rule with the given ID, if any.
func ByID(id string) (rules.Rule, bool) {
	for _, r := range All() {
		if r.Meta().ID == id {
			return r, true
		}
	}
	return nil, false
}
