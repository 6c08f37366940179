package builtin

import (
	"fmt"
	"sort"
	"strings"

	"github.com/vmware-labs/yaml-jsonpath/pkg/yamlpath"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/orderedmap"
	"github.com/sailpoint-oss/telescope-core/rules"
)

type noUnusedComponents struct{}

// NoUnusedComponents reports components defined under any file's
// components/<kind> map that are never reached by any $ref edge anywhere in
// the workspace, found via a yaml-jsonpath "$..['$ref']" sweep over each
// document's raw node tree rather than a hand-rolled recursive walk.
func NoUnusedComponents() rules.Rule { return noUnusedComponents{} }

func (noUnusedComponents) Meta() rules.Meta {
	return rules.Meta{ID: "no-unused-components", RuleType: "openapi", Severity: rules.SeverityWarning, Scope: rules.ScopeCrossFile}
}

func (noUnusedComponents) NewState() any { return nil }

func (noUnusedComponents) Check(_ *rules.Context, _ any) rules.Visitors {
	return rules.Visitors{
		Project: func(ctx *rules.Context, p *rules.ProjectContext) {
			refs, err := collectRefStrings(p)
			if err != nil {
				return
			}

			uris := make([]string, 0, len(p.Atoms))
			for uri := range p.Atoms {
				uris = append(uris, uri)
			}
			sort.Strings(uris)

			for _, uri := range uris {
				idx := p.Atoms[uri]
				if idx == nil || idx.Components == nil {
					continue
				}
				for _, km := range componentKindMaps(idx.Components) {
					for pair := km.entries.First(); pair != nil; pair = pair.Next() {
						suffix := "/" + km.kind + "/" + pair.Key()
						if refHasSuffix(refs, suffix) {
							continue
						}
						entry := pair.Value()
						r, err := ctx.Locate(entry.URI, entry.Pointer)
						if err != nil {
							continue
						}
						ctx.Report(rules.Diagnostic{
							Message: fmt.Sprintf("component %q (%s) is never referenced by a $ref", pair.Key(), km.kind),
							URI:     entry.URI,
							Range:   r,
						})
					}
				}
			}
		},
	}
}

type kindMap struct {
	kind    string
	entries orderedmap.Map[string, atoms.ComponentEntry]
}

func componentKindMaps(c *atoms.Components) []kindMap {
	return []kindMap{
		{"schemas", c.Schemas},
		{"parameters", c.Parameters},
		{"responses", c.Responses},
		{"requestBodies", c.RequestBodies},
		{"headers", c.Headers},
		{"securitySchemes", c.SecuritySchemes},
		{"examples", c.Examples},
		{"links", c.Links},
		{"callbacks", c.Callbacks},
	}
}

func collectRefStrings(p *rules.ProjectContext) ([]string, error) {
	path, err := yamlpath.NewPath("$..['$ref']")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, doc := range p.Documents {
		root, err := parseRootNode(doc.RawText)
		if err != nil {
			continue
		}
		nodes, err := path.Find(root)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			out = append(out, n.Value)
		}
	}
	return out, nil
}

func refHasSuffix(refs []string, suffix string) bool {
	for _, r := range refs {
		if strings.HasSuffix(r, suffix) {
			return true
		}
	}
	return false
}
