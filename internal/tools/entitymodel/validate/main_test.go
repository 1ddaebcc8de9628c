package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"capresearch/internal/entitymodel/sqlbundle"
)

const testDDL = `
CREATE TABLE IF NOT EXISTS capabilities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    status TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'review'))
);
CREATE TABLE domains (
    id TEXT PRIMARY KEY,
    capability_id TEXT NOT NULL,
    domain_name TEXT NOT NULL,
    UNIQUE (capability_id, domain_name)
);
CREATE INDEX IF NOT EXISTS idx_domains ON domains(capability_id);
`

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.json")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestRepositoryModelMatchesDDL(t *testing.T) {
	path := filepath.Join("..", "..", "..", "..", "docs", "schema", "research-model.json")
	if err := validate(path, map[string]string{"sqlite": sqlbundle.SQLite(), "postgres": sqlbundle.Postgres()}); err != nil {
		t.Fatalf("repository model out of sync: %v", err)
	}
}

func TestValidateOK(t *testing.T) {
	path := writeTemp(t, `{"version":"1.0.0","entities":{
		"capability":{"table":"capabilities","natural_key":["name"]},
		"domain":{"table":"domains","natural_key":["capability_id","domain_name"]}}}`)
	if err := validate(path, map[string]string{"test": testDDL}); err != nil {
		t.Fatalf("expected valid model, got %v", err)
	}
}

func TestValidateReportsProblems(t *testing.T) {
	path := writeTemp(t, `{"version":"v1","entities":{
		"capability":{"table":"capabilities","natural_key":["status"]},
		"domain":{"table":"domains","natural_key":["domain_name","missing"]},
		"tracker":{"table":"capability_tracker","natural_key":["capability_name"]},
		"blank":{"natural_key":["x"]},
		"keyless":{"table":"capabilities"}}}`)
	err := validate(path, map[string]string{"test": testDDL})
	if err == nil {
		t.Fatalf("expected validation errors")
	}
	for _, want := range []string{
		`version "v1" must be semver`,
		`natural key [status] of "capabilities" is not unique`,
		`table "domains" missing natural key column "missing"`,
		`table "capability_tracker" for entity "tracker" not found`,
		`entity "blank" must declare table`,
		`entity "keyless" must declare natural_key`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected %q in %v", want, err)
		}
	}
}

func TestValidateReadAndParseErrors(t *testing.T) {
	if err := validate(filepath.Join(t.TempDir(), "missing.json"), nil); err == nil || !strings.Contains(err.Error(), "read model") {
		t.Fatalf("expected read error, got %v", err)
	}
	if err := validate(writeTemp(t, "{"), nil); err == nil || !strings.Contains(err.Error(), "parse model JSON") {
		t.Fatalf("expected parse error, got %v", err)
	}
	if err := validate(writeTemp(t, `{"version":"1.0.0"}`), nil); err == nil || !strings.Contains(err.Error(), "entities section") {
		t.Fatalf("expected empty entities error, got %v", err)
	}
}

func TestParseTables(t *testing.T) {
	tables := parseTables(testDDL)
	if len(tables) != 2 {
		t.Fatalf("expected 2 tables, got %d", len(tables))
	}
	caps := tables["capabilities"]
	if !caps.columns["status"] || !caps.keys["id"] || !caps.keys["name"] || caps.keys["status"] {
		t.Fatalf("unexpected capabilities table %+v", caps)
	}
	if !tables["domains"].keys["capability_id,domain_name"] {
		t.Fatalf("expected composite unique key")
	}
}

func TestExitErrWritesMessage(t *testing.T) {
	var buf bytes.Buffer
	origWriter, origExit := errWriter, exitFn
	t.Cleanup(func() { errWriter, exitFn = origWriter, origExit })
	errWriter = &buf
	code := 0
	exitFn = func(c int) { code = c }
	exitErr("boom")
	if code != 1 || !strings.Contains(buf.String(), "research-model validation failed: boom") {
		t.Fatalf("unexpected exit %d %q", code, buf.String())
	}
}
