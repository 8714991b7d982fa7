package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSource(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestRepositoryQueriesAreMarked(t *testing.T) {
	violations, err := lintPaths([]string{"../../sqlinline"})
	if err != nil {
		t.Fatalf("lintPaths: %v", err)
	}
	for _, v := range violations {
		t.Errorf("%s", v)
	}
}

func TestReportsMissingAndDuplicateMarkers(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "queries.go", "package q\n\n"+
		"const cols = `id, stage`\n\n"+
		"const QGood = `--sql 11111111-2222-4333-8444-555555555555\nselect ` + cols + ` from pipeline_jobs;`\n\n"+
		"const QBare = `select 1;`\n\n"+
		"const QDup = `--sql 11111111-2222-4333-8444-555555555555\nupdate pipeline_jobs set progress = 0;`\n")
	writeSource(t, dir, "queries_test.go", "package q\n\nconst QIgnored = `select 2;`\n")
	if err := os.Mkdir(filepath.Join(dir, "_scratch"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeSource(t, filepath.Join(dir, "_scratch"), "x.go", "package x\n\nconst Q = `delete from t;`\n")

	violations, err := lintPaths([]string{dir})
	if err != nil {
		t.Fatalf("lintPaths: %v", err)
	}
	if len(violations) != 2 {
		t.Fatalf("expected 2 violations, got %d: %v", len(violations), violations)
	}
	if violations[0].name != "QBare" || !strings.Contains(violations[0].message, "missing") {
		t.Fatalf("first violation = %+v", violations[0])
	}
	if violations[1].name != "QDup" || !strings.Contains(violations[1].message, "QGood") {
		t.Fatalf("second violation = %+v", violations[1])
	}
}

func TestDDLIsNotAStatement(t *testing.T) {
	dir := t.TempDir()
	writeSource(t, dir, "schema.go", "package q\n\nconst Schema = `\ncreate table if not exists t (updated_at timestamptz);\n`\n")
	violations, err := lintPaths([]string{dir})
	if err != nil {
		t.Fatalf("lintPaths: %v", err)
	}
	if len(violations) != 0 {
		t.Fatalf("unexpected violations: %v", violations)
	}
}
