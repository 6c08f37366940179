package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpoint-oss/telescope-core/rules"
)

func TestParse_Minimal(t *testing.T) {
	raw, err := Parse([]byte("openapi:\n  base: [recommended]\n  rulesOverrides:\n    path-keys-no-trailing-slash: off\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"recommended"}, raw.OpenAPI.Base)
	assert.Equal(t, rules.SeverityOff, raw.OpenAPI.RulesOverrides["path-keys-no-trailing-slash"])
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("openapi: [this is not a map"))
	assert.Error(t, err)
}

func TestResolve_Default(t *testing.T) {
	r := NewResolver()
	resolved, err := r.Resolve(Default())
	require.NoError(t, err)
	assert.Equal(t, DefaultPatterns, resolved.Patterns)
	assert.NotEmpty(t, resolved.Bindings)

	var sawOperationID bool
	for _, b := range resolved.Bindings {
		if b.Rule.Meta().ID == "operation-operationid" {
			sawOperationID = true
			assert.Equal(t, b.Rule.Meta().Severity, b.Severity)
		}
	}
	assert.True(t, sawOperationID)
}

func TestResolve_RecommendedDowngradesNoisyRules(t *testing.T) {
	r := NewResolver()
	raw := &RawConfig{OpenAPI: OpenAPIConfig{Base: []string{"recommended"}}}
	resolved, err := r.Resolve(raw)
	require.NoError(t, err)

	for _, b := range resolved.Bindings {
		if b.Rule.Meta().ID == "no-unused-components" {
			assert.Equal(t, rules.SeverityInfo, b.Severity)
		}
	}
}

func TestResolve_RulesOverridesWinOverPreset(t *testing.T) {
	r := NewResolver()
	raw := &RawConfig{OpenAPI: OpenAPIConfig{
		Base:           []string{"default"},
		RulesOverrides: map[string]rules.Severity{"operation-operationid": rules.SeverityOff},
	}}
	resolved, err := r.Resolve(raw)
	require.NoError(t, err)

	for _, b := range resolved.Bindings {
		assert.NotEqual(t, "operation-operationid", b.Rule.Meta().ID)
	}
}

func TestResolve_UnknownPresetIgnored(t *testing.T) {
	r := NewResolver()
	raw := &RawConfig{OpenAPI: OpenAPIConfig{Base: []string{"does-not-exist"}}}
	resolved, err := r.Resolve(raw)
	require.NoError(t, err)
	assert.Equal(t, DefaultPatterns, resolved.Patterns)
	assert.Empty(t, resolved.Bindings)
}

func TestResolve_CyclicPresetDoesNotLoop(t *testing.T) {
	r := NewResolver(
		WithPreset(Preset{Name: "a", Extends: []string{"b"}, Severity: map[string]rules.Severity{"x": rules.SeverityError}}),
		WithPreset(Preset{Name: "b", Extends: []string{"a"}, Severity: map[string]rules.Severity{"y": rules.SeverityWarning}}),
	)
	raw := &RawConfig{OpenAPI: OpenAPIConfig{Base: []string{"a"}}}
	_, err := r.Resolve(raw)
	require.NoError(t, err)
}

func TestResolve_Overrides(t *testing.T) {
	r := NewResolver()
	raw := &RawConfig{OpenAPI: OpenAPIConfig{
		Base: []string{"default"},
		Overrides: []Override{
			{Files: []string{"legacy/**"}, Rules: map[string]rules.Severity{"operation-operationid": rules.SeverityOff}},
		},
	}}
	resolved, err := r.Resolve(raw)
	require.NoError(t, err)

	var found bool
	for _, b := range resolved.Bindings {
		if b.Rule.Meta().ID == "operation-operationid" && b.Pattern == "legacy/**" {
			found = true
			assert.Equal(t, rules.SeverityOff, b.Severity)
		}
	}
	assert.True(t, found)
}

func TestResolve_CustomRuleProvider(t *testing.T) {
	custom := fakeRule{id: "custom-rule"}
	r := NewResolver(WithCustomRuleProvider(func(name string) (rules.Rule, bool) {
		if name == "custom-rule" {
			return custom, true
		}
		return nil, false
	}))
	raw := &RawConfig{OpenAPI: OpenAPIConfig{
		Base:        []string{"default"},
		CustomRules: []RuleRef{{Rule: "custom-rule", Pattern: "**/*.yaml"}},
	}}
	resolved, err := r.Resolve(raw)
	require.NoError(t, err)

	var found bool
	for _, b := range resolved.Bindings {
		if b.Rule.Meta().ID == "custom-rule" {
			found = true
			assert.Equal(t, "**/*.yaml", b.Pattern)
		}
	}
	assert.True(t, found)
}

type fakeRule struct{ id string }

func (f fakeRule) Meta() rules.Meta {
	return rules.Meta{ID: f.id, RuleType: "custom", Severity: rules.SeverityWarning, Scope: rules.ScopeSingle}
}
func (fakeRule) NewState() any                                   { return nil }
func (fakeRule) Check(_ *rules.Context, _ any) rules.Visitors     { return rules.Visitors{} }

func TestMatchesPatterns_IncludeExclude(t *testing.T) {
	assert.True(t, MatchesPatterns("a/b.yaml", []string{"**/*.yaml"}))
	assert.False(t, MatchesPatterns("a/b.json", []string{"**/*.yaml"}))
	assert.False(t, MatchesPatterns("vendor/b.yaml", []string{"**/*.yaml", "!vendor/**"}))
	assert.True(t, MatchesPatterns("src/b.yaml", []string{"**/*.yaml", "!vendor/**"}))
}

type recordingRule struct{ calls *[]string }

func (r recordingRule) Meta() rules.Meta {
	return rules.Meta{ID: "recording-rule", RuleType: "generic", Severity: rules.SeverityWarning, Scope: rules.ScopeSingle}
}
func (recordingRule) NewState() any { return nil }
func (r recordingRule) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Document: func(_ *rules.Context, e *rules.DocumentEntity) { *r.calls = append(*r.calls, e.URI) },
	}
}

func TestScopedRule_FiltersByURI(t *testing.T) {
	var calls []string
	scoped := ScopedRule(recordingRule{calls: &calls}, "included/**")
	v := scoped.Check(nil, nil)

	v.Document(nil, &rules.DocumentEntity{URI: "included/a.yaml"})
	v.Document(nil, &rules.DocumentEntity{URI: "excluded/b.yaml"})

	assert.Equal(t, []string{"included/a.yaml"}, calls)
}

func TestScopedRule_EmptyPatternReturnsSameRule(t *testing.T) {
	rule := recordingRule{calls: &[]string{}}
	assert.Equal(t, rule, ScopedRule(rule, ""))
}
