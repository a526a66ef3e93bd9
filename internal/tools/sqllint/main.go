// Command sqllint checks that every SQL constant carries a "--sql <uuid>"
// marker line and that no marker is used twice, so a marker in a log line
// identifies exactly one statement.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"photoflow/internal/infra"
)

var statementPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter|drop)\b`)

type finding struct {
	pos     token.Position
	name    string
	message string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.pos.Filename, f.pos.Line, f.message, f.name)
}

// linter accumulates findings across files so duplicate markers are caught
// between packages too.
type linter struct {
	fset     *token.FileSet
	markers  map[string]token.Position
	findings []finding
}

func newLinter() *linter {
	return &linter{fset: token.NewFileSet(), markers: map[string]token.Position{}}
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}

	l := newLinter()
	for _, target := range targets {
		if err := l.lintPath(target); err != nil {
			fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
			os.Exit(1)
		}
	}
	if len(l.findings) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL marker problems")
		for _, f := range l.findings {
			fmt.Fprintf(os.Stderr, "  %s\n", f)
		}
		os.Exit(1)
	}
}

func (l *linter) lintPath(target string) error {
	return filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != target && (strings.HasPrefix(d.Name(), ".") || strings.HasPrefix(d.Name(), "_") || d.Name() == "vendor") {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return l.lintSource(path, src)
	})
}

func (l *linter) lintSource(filename string, src []byte) error {
	file, err := parser.ParseFile(l.fset, filename, src, 0)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			lit, ok := value.(*ast.BasicLit)
			if !ok || lit.Kind != token.STRING {
				continue
			}
			raw, err := unquote(lit.Value)
			if err != nil || !statementPattern.MatchString(raw) {
				continue
			}
			name := "_"
			if i < len(spec.Names) {
				name = spec.Names[i].Name
			}
			l.check(name, raw, l.fset.Position(lit.Pos()))
		}
		return true
	})
	return nil
}

func (l *linter) check(name, query string, pos token.Position) {
	marker, _, err := infra.ExtractMarker(query)
	if err != nil {
		l.findings = append(l.findings, finding{pos: pos, name: name, message: "missing or invalid --sql <uuid> marker"})
		return
	}
	if first, dup := l.markers[marker]; dup {
		l.findings = append(l.findings, finding{
			pos:     pos,
			name:    name,
			message: fmt.Sprintf("marker %s already used at %s:%d", marker, first.Filename, first.Line),
		})
		return
	}
	l.markers[marker] = pos
}

func unquote(v string) (string, error) {
	if strings.HasPrefix(v, "`") {
		return strings.Trim(v, "`"), nil
	}
	return strconv.Unquote(v)
}
