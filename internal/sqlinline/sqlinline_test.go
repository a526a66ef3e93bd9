package sqlinline

import (
	"go/ast"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	"photoflow/internal/infra"
)

// TestQueriesCarryUniqueMarkers parses this package and checks that every
// query constant starts with a well-formed, unique "--sql <uuid>" line.
func TestQueriesCarryUniqueMarkers(t *testing.T) {
	fset := token.NewFileSet()
	pkgs, err := parser.ParseDir(fset, ".", nil, 0)
	if err != nil {
		t.Fatalf("parse package: %v", err)
	}

	seen := map[string]string{}
	count := 0
	for _, pkg := range pkgs {
		for _, file := range pkg.Files {
			ast.Inspect(file, func(n ast.Node) bool {
				spec, ok := n.(*ast.ValueSpec)
				if !ok {
					return true
				}
				for i, name := range spec.Names {
					if !strings.HasPrefix(name.Name, "Q") || i >= len(spec.Values) {
						continue
					}
					lit, ok := spec.Values[i].(*ast.BasicLit)
					if !ok || lit.Kind != token.STRING {
						continue
					}
					query, err := strconv.Unquote(lit.Value)
					if err != nil {
						t.Fatalf("%s: unquote: %v", name.Name, err)
					}
					count++
					marker, body, err := infra.ExtractMarker(query)
					if err != nil {
						t.Errorf("%s (%s): %v", name.Name, fset.Position(lit.Pos()), err)
						continue
					}
					if strings.TrimSpace(body) == "" {
						t.Errorf("%s: empty body", name.Name)
					}
					if prev, dup := seen[marker]; dup {
						t.Errorf("%s reuses marker of %s", name.Name, prev)
					}
					seen[marker] = name.Name
				}
				return true
			})
		}
	}
	if count == 0 {
		t.Fatal("no queries found")
	}
}

func TestExtractMarkerRejectsUntagged(t *testing.T) {
	if _, _, err := infra.ExtractMarker("select 1"); err == nil {
		t.Fatal("expected missing marker error")
	}
	marker, body, err := infra.ExtractMarker(QSelectJobByID)
	if err != nil {
		t.Fatalf("ExtractMarker: %v", err)
	}
	if marker != "9f61e88a-a4ee-41ad-9006-6f669a5f5ef8" {
		t.Fatalf("unexpected marker %q", marker)
	}
	if strings.HasPrefix(body, "--sql") {
		t.Fatalf("marker line must be stripped: %q", body)
	}
}
