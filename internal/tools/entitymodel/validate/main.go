// Program entitymodelvalidate checks that the research model agrees with the
// SQLite and Postgres DDL bundles: every entity's table exists in both and its
// natural key is enforced by a primary key or UNIQUE constraint.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"capresearch/internal/entitymodel/sqlbundle"
)

type entitySpec struct {
	Table      string   `json:"table"`
	NaturalKey []string `json:"natural_key"`
}

type modelDoc struct {
	Version  string                `json:"version"`
	Entities map[string]entitySpec `json:"entities"`
}

// table is the subset of a CREATE TABLE statement the check needs.
type table struct {
	columns map[string]bool
	// keys holds each PRIMARY KEY or UNIQUE column set, joined with ",".
	keys map[string]bool
}

var (
	exitFn              = os.Exit
	errWriter io.Writer = os.Stderr

	semver      = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	createTable = regexp.MustCompile(`(?is)^CREATE TABLE(?: IF NOT EXISTS)?\s+(\w+)\s*\((.*)\)$`)
	uniqueGroup = regexp.MustCompile(`(?i)^(?:UNIQUE|PRIMARY KEY)\s*\(([^)]*)\)$`)
)

func main() {
	path := "docs/schema/research-model.json"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	if err := validate(path, map[string]string{"sqlite": sqlbundle.SQLite(), "postgres": sqlbundle.Postgres()}); err != nil {
		exitErr(err.Error())
	}
	fmt.Println("research-model validation: OK")
}

func validate(path string, bundles map[string]string) error {
	//nolint:gosec // path is provided by the caller.
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}
	var doc modelDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse model JSON: %w", err)
	}

	var errs []string
	if !semver.MatchString(doc.Version) {
		errs = append(errs, fmt.Sprintf("version %q must be semver", doc.Version))
	}
	if len(doc.Entities) == 0 {
		errs = append(errs, "entities section must not be empty")
	}

	for dialect, ddl := range bundles {
		tables := parseTables(ddl)
		for name, ent := range doc.Entities {
			if ent.Table == "" {
				errs = append(errs, fmt.Sprintf("entity %q must declare table", name))
				continue
			}
			if len(ent.NaturalKey) == 0 {
				errs = append(errs, fmt.Sprintf("entity %q must declare natural_key", name))
				continue
			}
			tbl, ok := tables[ent.Table]
			if !ok {
				errs = append(errs, fmt.Sprintf("%s: table %q for entity %q not found", dialect, ent.Table, name))
				continue
			}
			for _, col := range ent.NaturalKey {
				if !tbl.columns[col] {
					errs = append(errs, fmt.Sprintf("%s: table %q missing natural key column %q", dialect, ent.Table, col))
				}
			}
			if !tbl.keys[strings.Join(ent.NaturalKey, ",")] {
				errs = append(errs, fmt.Sprintf("%s: natural key [%s] of %q is not unique", dialect, strings.Join(ent.NaturalKey, ","), ent.Table))
			}
		}
	}

	if len(errs) > 0 {
		errs = dedupe(errs)
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func parseTables(ddl string) map[string]table {
	tables := make(map[string]table)
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		m := createTable.FindStringSubmatch(strings.TrimSuffix(strings.TrimSpace(stmt), ";"))
		if m == nil {
			continue
		}
		tbl := table{columns: make(map[string]bool), keys: make(map[string]bool)}
		for _, def := range splitDefinitions(m[2]) {
			if g := uniqueGroup.FindStringSubmatch(def); g != nil {
				tbl.keys[normalizeColumns(g[1])] = true
				continue
			}
			fields := strings.Fields(def)
			if len(fields) < 2 {
				continue
			}
			col := strings.ToLower(fields[0])
			tbl.columns[col] = true
			upper := strings.ToUpper(def)
			if strings.Contains(upper, "PRIMARY KEY") || strings.Contains(upper, " UNIQUE") {
				tbl.keys[col] = true
			}
		}
		tables[strings.ToLower(m[1])] = tbl
	}
	return tables
}

// splitDefinitions splits a table body on top-level commas.
func splitDefinitions(body string) []string {
	var defs []string
	depth, start := 0, 0
	for i, r := range body {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				defs = append(defs, strings.TrimSpace(body[start:i]))
				start = i + 1
			}
		}
	}
	if rest := strings.TrimSpace(body[start:]); rest != "" {
		defs = append(defs, rest)
	}
	return defs
}

func normalizeColumns(list string) string {
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, ",")
}

func dedupe(errs []string) []string {
	sort.Strings(errs)
	out := errs[:0]
	for i, e := range errs {
		if i == 0 || e != errs[i-1] {
			out = append(out, e)
		}
	}
	return out
}

func exitErr(msg string) {
	if _, err := fmt.Fprintf(errWriter, "research-model validation failed: %s\n", msg); err != nil {
		//nolint:errcheck // best-effort secondary logging; exiting regardless.
		fmt.Fprintf(os.Stderr, "research-model validation failed (write error: %v)\n", err)
	}
	exitFn(1)
}
