package engine

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/sailpoint-oss/telescope-core/rules"
)

// Canonicalize sorts diagnostics by URI, then range-start, then range-end, then
// severity, then code, then message, so equivalent runs always produce the
// same diagnostic order regardless of rule-execution order. Exported so the
// scheduler can canonicalize a merged, cross-root diagnostic set the same
// way a single engine.Run pass does.
func Canonicalize(diagnostics []rules.Diagnostic) []rules.Diagnostic {
	out := append([]rules.Diagnostic(nil), diagnostics...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.URI != b.URI {
			return a.URI < b.URI
		}
		if cmp := comparePosition(a.Range.Start, b.Range.Start); cmp != 0 {
			return cmp < 0
		}
		if cmp := comparePosition(a.Range.End, b.Range.End); cmp != 0 {
			return cmp < 0
		}
		if a.Severity != b.Severity {
			return a.Severity < b.Severity
		}
		if a.Code != b.Code {
			return a.Code < b.Code
		}
		return a.Message < b.Message
	})
	return out
}

func comparePosition(a, b rules.Position) int {
	if a.Line != b.Line {
		return a.Line - b.Line
	}
	return a.Character - b.Character
}

// ComputeResultID is SHA-1(version || canonicalDiagnostics), letting
// scheduler query callers detect "nothing changed" by comparing result IDs
// instead of deep-comparing diagnostic slices. diagnostics must already be
// canonicalized (see Canonicalize) so the hash is order-independent.
func ComputeResultID(version string, diagnostics []rules.Diagnostic) string {
	var b strings.Builder
	b.WriteString(version)
	for _, d := range diagnostics {
		fmt.Fprintf(&b, "|%s|%d:%d-%d:%d|%s|%s|%s",
			d.URI, d.Range.Start.Line, d.Range.Start.Character, d.Range.End.Line, d.Range.End.Character,
			d.Severity, d.Code, d.Message)
	}
	sum := sha1.Sum([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
