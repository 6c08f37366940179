package config

import "github.com/sailpoint-oss/telescope-core/rules"

// ScopedRule wraps rule so every visitor only fires for entities whose URI
// matches pattern, implementing the config schema's per-rule (`rules:
// [{rule,pattern}]`), per-custom-rule, and per-override (`overrides:
// [{files,rules}]`) file scoping from spec §6. An empty pattern returns rule
// unwrapped. Project visitors are never scoped — a cross-file rule
// inherently reasons about the whole project, not one file.
func ScopedRule(rule rules.Rule, pattern string) rules.Rule {
	if pattern == "" {
		return rule
	}
	return &scopedRule{rule: rule, pattern: pattern}
}

type scopedRule struct {
	rule    rules.Rule
	pattern string
}

func (s *scopedRule) Meta() rules.Meta { return s.rule.Meta() }
func (s *scopedRule) NewState() any    { return s.rule.NewState() }

func (s *scopedRule) Check(ctx *rules.Context, state any) rules.Visitors {
	v := s.rule.Check(ctx, state)
	in := func(uri string) bool { return MatchesPatterns(uri, []string{s.pattern}) }

	scoped := rules.Visitors{Project: v.Project}
	if v.Document != nil {
		scoped.Document = func(c *rules.Context, e *rules.DocumentEntity) {
			if in(e.URI) {
				v.Document(c, e)
			}
		}
	}
	if v.Root != nil {
		scoped.Root = func(c *rules.Context, e *rules.RootEntity) {
			if in(e.URI) {
				v.Root(c, e)
			}
		}
	}
	if v.PathItem != nil {
		scoped.PathItem = func(c *rules.Context, e *rules.PathItemEntity) {
			if in(e.URI) {
				v.PathItem(c, e)
			}
		}
	}
	if v.Operation != nil {
		scoped.Operation = func(c *rules.Context, e *rules.OperationEntity) {
			if in(e.URI) {
				v.Operation(c, e)
			}
		}
	}
	if v.Component != nil {
		scoped.Component = func(c *rules.Context, e *rules.ComponentEntity) {
			if in(e.URI) {
				v.Component(c, e)
			}
		}
	}
	if v.Schema != nil {
		scoped.Schema = func(c *rules.Context, e *rules.SchemaEntity) {
			if in(e.URI) {
				v.Schema(c, e)
			}
		}
	}
	if v.Parameter != nil {
		scoped.Parameter = func(c *rules.Context, e *rules.ParameterEntity) {
			if in(e.URI) {
				v.Parameter(c, e)
			}
		}
	}
	if v.Response != nil {
		scoped.Response = func(c *rules.Context, e *rules.ResponseEntity) {
			if in(e.URI) {
				v.Response(c, e)
			}
		}
	}
	if v.RequestBody != nil {
		scoped.RequestBody = func(c *rules.Context, e *rules.RequestBodyEntity) {
			if in(e.URI) {
				v.RequestBody(c, e)
			}
		}
	}
	if v.Header != nil {
		scoped.Header = func(c *rules.Context, e *rules.HeaderEntity) {
			if in(e.URI) {
				v.Header(c, e)
			}
		}
	}
	if v.MediaType != nil {
		scoped.MediaType = func(c *rules.Context, e *rules.MediaTypeEntity) {
			if in(e.URI) {
				v.MediaType(c, e)
			}
		}
	}
	if v.SecurityRequirement != nil {
		scoped.SecurityRequirement = func(c *rules.Context, e *rules.SecurityRequirementEntity) {
			if in(e.URI) {
				v.SecurityRequirement(c, e)
			}
		}
	}
	if v.Example != nil {
		scoped.Example = func(c *rules.Context, e *rules.ExampleEntity) {
			if in(e.URI) {
				v.Example(c, e)
			}
		}
	}
	if v.Link != nil {
		scoped.Link = func(c *rules.Context, e *rules.LinkEntity) {
			if in(e.URI) {
				v.Link(c, e)
			}
		}
	}
	if v.Callback != nil {
		scoped.Callback = func(c *rules.Context, e *rules.CallbackEntity) {
			if in(e.URI) {
				v.Callback(c, e)
			}
		}
	}
	if v.Reference != nil {
		scoped.Reference = func(c *rules.Context, e *rules.ReferenceEntity) {
			if in(e.URI) {
				v.Reference(c, e)
			}
		}
	}
	return scoped
}
