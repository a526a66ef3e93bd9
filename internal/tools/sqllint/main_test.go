package main

import (
	"strings"
	"testing"
)

const goodSource = "package q\n\nconst A = `--sql 48633d23-f3b5-4eb7-a492-3c63c823b110\nselect 1`\n"

func TestLintAcceptsMarkedQueries(t *testing.T) {
	l := newLinter()
	if err := l.lintSource("a.go", []byte(goodSource)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.findings) != 0 {
		t.Fatalf("unexpected findings: %v", l.findings)
	}
}

func TestLintFlagsMissingMarker(t *testing.T) {
	l := newLinter()
	src := "package q\n\nconst B = `update photo_jobs set status = $1`\nconst Name = \"not sql\"\n"
	if err := l.lintSource("b.go", []byte(src)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.findings) != 1 || l.findings[0].name != "B" {
		t.Fatalf("expected one finding for B, got %v", l.findings)
	}
}

func TestLintFlagsDuplicateMarkerAcrossFiles(t *testing.T) {
	l := newLinter()
	if err := l.lintSource("a.go", []byte(goodSource)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	dup := strings.Replace(goodSource, "const A", "const C", 1)
	if err := l.lintSource("c.go", []byte(dup)); err != nil {
		t.Fatalf("lintSource: %v", err)
	}
	if len(l.findings) != 1 || !strings.Contains(l.findings[0].message, "already used at a.go:3") {
		t.Fatalf("expected duplicate finding, got %v", l.findings)
	}
}
