package config

import (
	"github.com/sailpoint-oss/telescope-core/rules"
	"github.com/sailpoint-oss/telescope-core/rules/builtin"
)

// builtinPresets returns the two shipped presets, per spec §6's
// "openapi.base" resolution: "default" (every built-in rule at its own
// meta.severity) and "recommended" (same set, with the two noisier
// structural rules downgraded to info).
func builtinPresets() []Preset {
	defaultSeverity := map[string]rules.Severity{}
	for _, rule := range builtin.All() {
		defaultSeverity[rule.Meta().ID] = rule.Meta().Severity
	}

	recommendedSeverity := map[string]rules.Severity{}
	for id, sev := range defaultSeverity {
		recommendedSeverity[id] = sev
	}
	recommendedSeverity["no-unused-components"] = rules.SeverityInfo
	recommendedSeverity["schema-deep-nesting"] = rules.SeverityInfo

	return []Preset{
		{Name: "default", Patterns: DefaultPatterns, Severity: defaultSeverity},
		{Name: "recommended", Patterns: DefaultPatterns, Severity: recommendedSeverity},
	}
}
