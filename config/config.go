// Package config resolves the `.telescope/config.yaml` workspace
// configuration into an effective rule set and file-scoping pattern list,
// per spec §6: preset resolution, per-rule severity overrides, and
// pattern-based file scoping for both the core lint rules and the
// additionalValidation groups.
package config

import (
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/sailpoint-oss/telescope-core/rules"
	"github.com/sailpoint-oss/telescope-core/rules/builtin"
)

// DefaultPatterns is what an absent config file yields, per spec §6.
var DefaultPatterns = []string{"**/*.yaml", "**/*.yml", "**/*.json"}

// RuleRef names a rule and optionally scopes it to a glob pattern.
type RuleRef struct {
	Rule    string `yaml:"rule"`
	Pattern string `yaml:"pattern,omitempty"`
}

// SchemaRef names a JSON Schema validation to run against a glob pattern,
// under an additionalValidation group.
type SchemaRef struct {
	Schema  string `yaml:"schema"`
	Pattern string `yaml:"pattern,omitempty"`
}

// Override scopes a set of rule severities to a file pattern list.
type Override struct {
	Files []string                  `yaml:"files"`
	Rules map[string]rules.Severity `yaml:"rules"`
}

// ValidationGroup is one entry under additionalValidation.groups.
type ValidationGroup struct {
	Patterns []string    `yaml:"patterns,omitempty"`
	Rules    []RuleRef   `yaml:"rules,omitempty"`
	Schemas  []SchemaRef `yaml:"schemas,omitempty"`
}

// OpenAPIConfig is the `openapi:` section of the config file.
type OpenAPIConfig struct {
	Base           []string                  `yaml:"base,omitempty"`
	Patterns       []string                  `yaml:"patterns,omitempty"`
	Rules          []RuleRef                 `yaml:"rules,omitempty"`
	RulesOverrides map[string]rules.Severity `yaml:"rulesOverrides,omitempty"`
	CustomRules    []RuleRef                 `yaml:"customRules,omitempty"`
	Overrides      []Override                `yaml:"overrides,omitempty"`
}

// AdditionalValidationConfig is the `additionalValidation:` section.
type AdditionalValidationConfig struct {
	Groups map[string]ValidationGroup `yaml:"groups,omitempty"`
}

// RawConfig is the config file's schema as written at
// `<workspace>/.telescope/config.yaml`, per spec §6.
type RawConfig struct {
	OpenAPI              OpenAPIConfig               `yaml:"openapi,omitempty"`
	AdditionalValidation AdditionalValidationConfig `yaml:"additionalValidation,omitempty"`
}

// CustomRuleProvider resolves a customRules entry's `rule` name to a
// rules.Rule, e.g. a path to a user-authored plugin. Not wired to any
// loader in this module (spec doesn't define one); config accepts it so a
// host program can supply its own.
type CustomRuleProvider func(name string) (rules.Rule, bool)

// Preset is a named, resolvable bundle of rule bindings and patterns. The
// two built-in presets are registered in presets.go; a caller can register
// more via WithPreset.
type Preset struct {
	Name     string
	Extends  []string
	Patterns []string
	Severity map[string]rules.Severity // ruleId -> severity, "off" disables
}

// Resolved is the effective configuration: the rule bindings to run, the
// include/exclude file patterns, and the additionalValidation groups.
type Resolved struct {
	Patterns []string
	Bindings []Binding
	Groups   map[string]ValidationGroup
}

// Binding pairs a rule with an optional file-scoping pattern; empty Pattern
// means "every in-scope file."
type Binding struct {
	Rule     rules.Rule
	Severity rules.Severity
	Pattern  string
}

// Resolver resolves RawConfig documents into a Resolved rule set, given a
// registry of built-in/custom rules and presets.
type Resolver struct {
	presets    map[string]Preset
	ruleByID   map[string]rules.Rule
	customRule CustomRuleProvider
	log        *slog.Logger
}

// ResolverOption configures a Resolver at construction time.
type ResolverOption func(*Resolver)

// WithPreset registers or overrides a named preset.
func WithPreset(p Preset) ResolverOption {
	return func(r *Resolver) { r.presets[p.Name] = p }
}

// WithCustomRuleProvider wires a resolver for customRules entries.
func WithCustomRuleProvider(p CustomRuleProvider) ResolverOption {
	return func(r *Resolver) { r.customRule = p }
}

// WithLogger overrides the default slog logger.
func WithLogger(l *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.log = l }
}

// NewResolver creates a Resolver seeded with the built-in rule registry and
// the "default"/"recommended" presets.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		presets:  map[string]Preset{},
		ruleByID: map[string]rules.Rule{},
		log:      slog.Default(),
	}
	for _, rule := range builtin.All() {
		r.ruleByID[rule.Meta().ID] = rule
	}
	for _, p := range builtinPresets() {
		r.presets[p.Name] = p
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Parse unmarshals config.yaml text into a RawConfig. A parse failure is
// reported as an error; per spec §7's ConfigParseFailure row, the caller is
// expected to log it and fall back to Default().
func Parse(text []byte) (*RawConfig, error) {
	var raw RawConfig
	if err := yaml.Unmarshal(text, &raw); err != nil {
		return nil, fmt.Errorf("config: parse failure: %w", err)
	}
	return &raw, nil
}

// Default is the configuration in effect when no config file exists: the
// "default" preset over DefaultPatterns, per spec §6.
func Default() *RawConfig {
	return &RawConfig{OpenAPI: OpenAPIConfig{Base: []string{"default"}, Patterns: DefaultPatterns}}
}

// Resolve materializes raw into a Resolved rule set and pattern list.
//
// Preset resolution is depth-first with cycle detection (a visited set of
// preset names threaded through the recursive walk — cycles are ignored
// after the first occurrence, per spec §6), mirroring the cycle-guarded DFS
// shape used for reference-graph and root-resolution walks elsewhere in
// this module, applied here to preset names instead of URIs.
func (r *Resolver) Resolve(raw *RawConfig) (*Resolved, error) {
	if raw == nil {
		raw = Default()
	}

	base := raw.OpenAPI.Base
	if len(base) == 0 {
		base = []string{"default"}
	}

	severity := map[string]rules.Severity{}
	pattern := map[string]string{}
	var patterns []string
	visited := map[string]bool{}
	for _, name := range base {
		r.resolvePreset(name, visited, severity, &patterns)
	}

	for _, ref := range raw.OpenAPI.Rules {
		if _, ok := r.ruleByID[ref.Rule]; ok {
			if _, set := severity[ref.Rule]; !set {
				severity[ref.Rule] = r.ruleByID[ref.Rule].Meta().Severity
			}
			if ref.Pattern != "" {
				pattern[ref.Rule] = ref.Pattern
			}
		}
	}

	for id, sev := range raw.OpenAPI.RulesOverrides {
		severity[id] = sev
	}

	if len(raw.OpenAPI.Patterns) > 0 {
		patterns = raw.OpenAPI.Patterns
	}
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}

	var bindings []Binding
	for id, sev := range severity {
		if sev == rules.SeverityOff {
			continue
		}
		rule, ok := r.ruleByID[id]
		if !ok {
			r.log.Warn("config references unknown rule", "rule", id)
			continue
		}
		p := pattern[id]
		bindings = append(bindings, Binding{Rule: ScopedRule(rule, p), Severity: sev, Pattern: p})
	}

	for _, ref := range raw.OpenAPI.CustomRules {
		if r.customRule == nil {
			r.log.Warn("customRules entry but no CustomRuleProvider wired", "rule", ref.Rule)
			continue
		}
		rule, ok := r.customRule(ref.Rule)
		if !ok {
			r.log.Warn("custom rule not found", "rule", ref.Rule)
			continue
		}
		sev := rule.Meta().Severity
		if s, ok := severity[ref.Rule]; ok {
			sev = s
		}
		bindings = append(bindings, Binding{Rule: ScopedRule(rule, ref.Pattern), Severity: sev, Pattern: ref.Pattern})
	}

	for _, ov := range raw.OpenAPI.Overrides {
		for id, sev := range ov.Rules {
			rule, ok := r.ruleByID[id]
			if !ok {
				continue
			}
			for _, file := range ov.Files {
				bindings = append(bindings, Binding{Rule: ScopedRule(rule, file), Severity: sev, Pattern: file})
			}
		}
	}

	return &Resolved{Patterns: patterns, Bindings: bindings, Groups: raw.AdditionalValidation.Groups}, nil
}

func (r *Resolver) resolvePreset(name string, visited map[string]bool, severity map[string]rules.Severity, patterns *[]string) {
	if visited[name] {
		return
	}
	visited[name] = true

	preset, ok := r.presets[name]
	if !ok {
		r.log.Warn("unknown preset", "preset", name)
		return
	}

	for _, parent := range preset.Extends {
		r.resolvePreset(parent, visited, severity, patterns)
	}
	for id, sev := range preset.Severity {
		severity[id] = sev
	}
	if len(preset.Patterns) > 0 {
		*patterns = preset.Patterns
	}
}
