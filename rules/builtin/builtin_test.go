package builtin

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sailpoint-oss/telescope-core/atoms"
	"github.com/sailpoint-oss/telescope-core/classify"
	"github.com/sailpoint-oss/telescope-core/ir"
	"github.com/sailpoint-oss/telescope-core/rules"
)

func lineStarts(text string) []int {
	starts := []int{0}
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func newProject(t *testing.T, docs map[string]string) *rules.ProjectContext {
	t.Helper()
	documents := map[string]*ir.Document{}
	atomIdx := map[string]*atoms.AtomIndex{}
	offsets := map[string][]int{}
	for uri, text := range docs {
		doc, err := ir.BuildYAML(uri, text)
		require.NoError(t, err)
		documents[uri] = doc
		atomIdx[uri] = atoms.Extract(doc)
		offsets[uri] = lineStarts(text)
	}

	roots := func() []string {
		var out []string
		for u, d := range documents {
			if classify.IdentifyType(d.Root) == classify.TypeRoot {
				out = append(out, u)
			}
		}
		sort.Strings(out)
		return out
	}

	return &rules.ProjectContext{
		Documents:   documents,
		Atoms:       atomIdx,
		LineOffsets: offsets,
		RootDocuments: func(string, string) []string {
			return roots()
		},
		PrimaryRoot: func(string, string) (string, bool) {
			rs := roots()
			if len(rs) == 0 {
				return "", false
			}
			return rs[0], true
		},
	}
}

func findPathItemNode(doc *ir.Document, pathString string) *ir.Node {
	pathsNode := child(doc.Root, "paths")
	if pathsNode == nil {
		return nil
	}
	return child(pathsNode, pathString)
}

func operationEntity(t *testing.T, doc *ir.Document, op atoms.Operation) *rules.OperationEntity {
	t.Helper()
	node, err := doc.FindByPointer(op.Pointer)
	require.NoError(t, err)
	pathItem := findPathItemNode(doc, op.PathString)
	require.NotNil(t, pathItem)
	return &rules.OperationEntity{
		URI: op.URI, Pointer: op.Pointer, PathString: op.PathString, Method: op.Method,
		OperationID: op.OperationID, HasOperationID: op.HasOperationID,
		Node: node, PathKeyLoc: pathItem.Loc,
	}
}

const twoFileOpSpec1 = "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      operationId: op\n      responses:\n        '200':\n          description: ok\n"
const twoFileOpSpec2 = "openapi: 3.1.0\ninfo:\n  title: b\npaths:\n  /b:\n    get:\n      operationId: op\n      responses:\n        '200':\n          description: ok\n"

func TestOperationIDUnique_Duplicate(t *testing.T) {
	project := newProject(t, map[string]string{
		"file:///a.yaml": twoFileOpSpec1,
		"file:///b.yaml": twoFileOpSpec2,
	})
	ctx := rules.NewContext(project, "operationid-unique", rules.SeverityWarning)
	v := OperationIDUnique().Check(ctx, nil)
	v.Project(ctx, project)

	require.Len(t, ctx.Diagnostics(), 2)
	for _, d := range ctx.Diagnostics() {
		assert.Contains(t, d.Message, "op")
		assert.Len(t, d.RelatedInformation, 1)
	}
}

func TestOperationOperationID_Missing(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	op := project.Atoms["file:///a.yaml"].Operations[0]
	entity := operationEntity(t, doc, op)

	ctx := rules.NewContext(project, "operation-operationid", rules.SeverityWarning)
	v := OperationOperationID().Check(ctx, nil)
	v.Operation(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 1)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "operationId")
}

func TestPathParamsMatch_MissingParam(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /pets/{petId}:\n    get:\n      operationId: getPet\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	op := project.Atoms["file:///a.yaml"].Operations[0]
	entity := operationEntity(t, doc, op)

	ctx := rules.NewContext(project, "path-params-match", rules.SeverityError)
	v := PathParamsMatch().Check(ctx, nil)
	v.Operation(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 1)
	d := ctx.Diagnostics()[0]
	assert.Contains(t, d.Message, "petId")
	require.NotNil(t, d.Fix)
	assert.Equal(t, "file:///a.yaml", d.Fix.URI)
}

func TestPathParamsMatch_Declared(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /pets/{petId}:\n    get:\n      operationId: getPet\n      parameters:\n        - name: petId\n          in: path\n          required: true\n          schema:\n            type: string\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	op := project.Atoms["file:///a.yaml"].Operations[0]
	entity := operationEntity(t, doc, op)

	ctx := rules.NewContext(project, "path-params-match", rules.SeverityError)
	v := PathParamsMatch().Check(ctx, nil)
	v.Operation(ctx, entity)

	assert.Empty(t, ctx.Diagnostics())
}

func TestPathKeysNoTrailingSlash(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /pets/:\n    get:\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	pathItem := findPathItemNode(doc, "/pets/")
	require.NotNil(t, pathItem)
	entity := &rules.PathItemEntity{URI: "file:///a.yaml", Pointer: pathItem.Ptr, PathString: "/pets/", Node: pathItem}

	ctx := rules.NewContext(project, "path-keys-no-trailing-slash", rules.SeverityInfo)
	v := PathKeysNoTrailingSlash().Check(ctx, nil)
	v.PathItem(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 1)
}

func TestNoAmbiguousPaths(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /{a}/x:\n    get:\n      responses:\n        '200':\n          description: ok\n  /{b}/x:\n    get:\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	entity := &rules.RootEntity{URI: "file:///a.yaml", Node: doc.Root}

	ctx := rules.NewContext(project, "no-ambiguous-paths", rules.SeverityWarning)
	v := NoAmbiguousPaths().Check(ctx, nil)
	v.Root(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 2)
}

func TestNoAmbiguousPaths_NoCollision(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      responses:\n        '200':\n          description: ok\n  /b:\n    get:\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	entity := &rules.RootEntity{URI: "file:///a.yaml", Node: doc.Root}

	ctx := rules.NewContext(project, "no-ambiguous-paths", rules.SeverityWarning)
	v := NoAmbiguousPaths().Check(ctx, nil)
	v.Root(ctx, entity)

	assert.Empty(t, ctx.Diagnostics())
}

func TestUnresolvedRef(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\npaths:\n  /a:\n    get:\n      responses:\n        '200':\n          description: ok\n          content:\n            application/json:\n              schema:\n                $ref: '#/components/schemas/Missing'\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	require.Len(t, project.Atoms["file:///a.yaml"].References, 1)
	refNode := project.Atoms["file:///a.yaml"].References[0].Node
	entity := &rules.ReferenceEntity{URI: "file:///a.yaml", Pointer: refNode.Ptr, RawRef: refNode.Value, Node: refNode}

	ctx := rules.NewContext(project, "unresolved-ref", rules.SeverityError)
	v := UnresolvedRef().Check(ctx, nil)
	v.Reference(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 1)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "Missing")
}

func TestDuplicateSecuritySchemeRequirement(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\ncomponents:\n  securitySchemes:\n    apiKey:\n      type: apiKey\n      name: X-Api-Key\n      in: header\npaths:\n  /a:\n    get:\n      security:\n        - apiKey: []\n        - unknownScheme: []\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	reqs := project.Atoms["file:///a.yaml"].SecurityRequirements
	require.Len(t, reqs, 2)

	ctx := rules.NewContext(project, "duplicate-security-scheme-requirement", rules.SeverityError)
	v := DuplicateSecuritySchemeRequirement().Check(ctx, nil)
	for _, req := range reqs {
		entity := &rules.SecurityRequirementEntity{URI: req.URI, Pointer: req.Pointer, Node: req.Node}
		v.SecurityRequirement(ctx, entity)
	}

	require.Len(t, ctx.Diagnostics(), 1)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "unknownScheme")
}

func TestOperationTagDefined(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\ntags:\n  - name: pets\npaths:\n  /a:\n    get:\n      tags: [pets, ghosts]\n      responses:\n        '200':\n          description: ok\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})
	doc := project.Documents["file:///a.yaml"]
	op := project.Atoms["file:///a.yaml"].Operations[0]
	entity := operationEntity(t, doc, op)

	ctx := rules.NewContext(project, "operation-tag-defined", rules.SeverityWarning)
	v := OperationTagDefined().Check(ctx, nil)
	v.Operation(ctx, entity)

	require.Len(t, ctx.Diagnostics(), 1)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "ghosts")
}

func TestNoUnusedComponents(t *testing.T) {
	text := "openapi: 3.1.0\ninfo:\n  title: a\ncomponents:\n  schemas:\n    Used:\n      type: string\n    Unused:\n      type: string\npaths:\n  /a:\n    get:\n      responses:\n        '200':\n          description: ok\n          content:\n            application/json:\n              schema:\n                $ref: '#/components/schemas/Used'\n"
	project := newProject(t, map[string]string{"file:///a.yaml": text})

	ctx := rules.NewContext(project, "no-unused-components", rules.SeverityWarning)
	v := NoUnusedComponents().Check(ctx, nil)
	v.Project(ctx, project)

	require.Len(t, ctx.Diagnostics(), 1)
	assert.Contains(t, ctx.Diagnostics()[0].Message, "Unused")
}
