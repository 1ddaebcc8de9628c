// Package relational snapshots the committed research state into the
// normalized tables declared by the DDL bundles and hydrates it back. It is
// shared by the SQLite and Postgres stores, which differ only in dialect.
package relational

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"capresearch/internal/entitymodel/sqlbundle"
	"capresearch/internal/infra/persistence/memory"
	"capresearch/pkg/domain"
)

// Dialect captures the per-backend differences in parameter and timestamp handling.
type Dialect struct {
	Name string
	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string
	// Time converts a timestamp into the bind value the backend stores.
	Time func(time.Time) any
}

// SQLite stores timestamps as RFC 3339 text and binds with "?".
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Time:        func(t time.Time) any { return t.UTC().Format(time.RFC3339Nano) },
}

// Postgres binds with "$n" and stores timestamps natively.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Time:        func(t time.Time) any { return t.UTC() },
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Queryer is satisfied by *sql.DB and *sql.Tx.
type Queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type table struct {
	name    string
	columns []string
}

var (
	capabilitiesTable = table{"capabilities", []string{"id", "name", "description", "status", "status_pinned", "created_at", "updated_at"}}
	domainsTable      = table{"domains", []string{"id", "capability_id", "domain_name", "description", "created_at", "updated_at"}}
	attributesTable   = table{"attributes", []string{
		"id", "capability_id", "domain_name", "attribute_name", "definition", "tm_forum_mapping",
		"importance", "weight", "is_active", "created_at", "updated_at",
	}}
	scoresTable = table{"vendor_scores", []string{
		"id", "capability_id", "attribute_name", "vendor", "weight", "score", "score_numeric",
		"observation", "evidence_url", "score_decision", "research_type", "research_date", "created_at", "updated_at",
	}}
	trackerTable = table{"capability_tracker", []string{"capability_name", "review_completed", "comprehensive_ready", "last_updated", "notes"}}
)

// Tables lists the research tables parents first.
func Tables() []string {
	return []string{capabilitiesTable.name, domainsTable.name, attributesTable.name, scoresTable.name, trackerTable.name}
}

func (t table) insertSQL(d Dialect) string {
	marks := make([]string, len(t.columns))
	for i := range t.columns {
		marks[i] = d.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", t.name, strings.Join(t.columns, ", "), strings.Join(marks, ", "))
}

func (t table) selectSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY %s", strings.Join(t.columns, ", "), t.name, t.columns[0])
}

// ApplyDDL executes every statement of the bundle in order.
func ApplyDDL(ctx context.Context, db Execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

// Persist replaces the table contents with snapshot inside one database transaction.
func Persist(ctx context.Context, db *sql.DB, d Dialect, snapshot memory.Snapshot) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := writeSnapshot(ctx, tx, d, snapshot); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func writeSnapshot(ctx context.Context, tx Execer, d Dialect, snapshot memory.Snapshot) error {
	tables := Tables()
	for i := len(tables) - 1; i >= 0; i-- {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+tables[i]); err != nil {
			return fmt.Errorf("clear %s: %w", tables[i], err)
		}
	}

	insert := func(t table, args ...any) error {
		if _, err := tx.ExecContext(ctx, t.insertSQL(d), args...); err != nil {
			return fmt.Errorf("insert %s: %w", t.name, err)
		}
		return nil
	}
	for _, c := range snapshot.Capabilities {
		if err := insert(capabilitiesTable, c.ID, c.Name, c.Description, string(c.Status), c.StatusPinned, d.Time(c.CreatedAt), d.Time(c.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, dm := range snapshot.Domains {
		if err := insert(domainsTable, dm.ID, dm.CapabilityID, dm.DomainName, dm.Description, d.Time(dm.CreatedAt), d.Time(dm.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, a := range snapshot.Attributes {
		if err := insert(attributesTable, a.ID, a.CapabilityID, a.DomainName, a.AttributeName, a.Definition, a.TMForumMapping,
			a.Importance, a.Weight, a.IsActive, d.Time(a.CreatedAt), d.Time(a.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, s := range snapshot.VendorScores {
		observation, err := marshalList(s.Observation)
		if err != nil {
			return fmt.Errorf("encode observation %s: %w", s.ID, err)
		}
		evidence, err := marshalList(s.EvidenceURL)
		if err != nil {
			return fmt.Errorf("encode evidence %s: %w", s.ID, err)
		}
		if err := insert(scoresTable, s.ID, s.CapabilityID, s.AttributeName, s.Vendor, s.Weight, s.Score, s.ScoreNumeric,
			observation, evidence, s.ScoreDecision, s.ResearchType, s.ResearchDate, d.Time(s.CreatedAt), d.Time(s.UpdatedAt)); err != nil {
			return err
		}
	}
	for _, t := range snapshot.Trackers {
		if err := insert(trackerTable, t.CapabilityName, t.ReviewCompleted, t.ComprehensiveReady, d.Time(t.LastUpdated), t.Notes); err != nil {
			return err
		}
	}
	return nil
}

func marshalList[T any](items []T) (string, error) {
	if items == nil {
		items = []T{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Load reads every research table into a snapshot.
func Load(ctx context.Context, db Queryer) (memory.Snapshot, error) {
	snapshot := memory.Snapshot{
		Capabilities: map[string]domain.Capability{},
		Domains:      map[string]domain.Domain{},
		Attributes:   map[string]domain.Attribute{},
		VendorScores: map[string]domain.VendorScore{},
		Trackers:     map[string]domain.CapabilityTracker{},
	}

	err := scanTable(ctx, db, capabilitiesTable, func(rows *sql.Rows) error {
		var c domain.Capability
		var status string
		var created, updated timeValue
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &status, &c.StatusPinned, &created, &updated); err != nil {
			return err
		}
		c.Status = domain.Status(status)
		c.CreatedAt, c.UpdatedAt = created.Time, updated.Time
		snapshot.Capabilities[c.ID] = c
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}

	err = scanTable(ctx, db, domainsTable, func(rows *sql.Rows) error {
		var dm domain.Domain
		var created, updated timeValue
		if err := rows.Scan(&dm.ID, &dm.CapabilityID, &dm.DomainName, &dm.Description, &created, &updated); err != nil {
			return err
		}
		dm.CreatedAt, dm.UpdatedAt = created.Time, updated.Time
		snapshot.Domains[dm.ID] = dm
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}

	err = scanTable(ctx, db, attributesTable, func(rows *sql.Rows) error {
		var a domain.Attribute
		var created, updated timeValue
		if err := rows.Scan(&a.ID, &a.CapabilityID, &a.DomainName, &a.AttributeName, &a.Definition, &a.TMForumMapping,
			&a.Importance, &a.Weight, &a.IsActive, &created, &updated); err != nil {
			return err
		}
		a.CreatedAt, a.UpdatedAt = created.Time, updated.Time
		snapshot.Attributes[a.ID] = a
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}

	err = scanTable(ctx, db, scoresTable, func(rows *sql.Rows) error {
		var s domain.VendorScore
		var observation, evidence jsonValue
		var created, updated timeValue
		if err := rows.Scan(&s.ID, &s.CapabilityID, &s.AttributeName, &s.Vendor, &s.Weight, &s.Score, &s.ScoreNumeric,
			&observation, &evidence, &s.ScoreDecision, &s.ResearchType, &s.ResearchDate, &created, &updated); err != nil {
			return err
		}
		if err := observation.decode(&s.Observation); err != nil {
			return fmt.Errorf("decode observation %s: %w", s.ID, err)
		}
		if err := evidence.decode(&s.EvidenceURL); err != nil {
			return fmt.Errorf("decode evidence %s: %w", s.ID, err)
		}
		s.CreatedAt, s.UpdatedAt = created.Time, updated.Time
		snapshot.VendorScores[s.ID] = s
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}

	err = scanTable(ctx, db, trackerTable, func(rows *sql.Rows) error {
		var t domain.CapabilityTracker
		var last timeValue
		if err := rows.Scan(&t.CapabilityName, &t.ReviewCompleted, &t.ComprehensiveReady, &last, &t.Notes); err != nil {
			return err
		}
		t.LastUpdated = last.Time
		snapshot.Trackers[t.CapabilityName] = t
		return nil
	})
	if err != nil {
		return memory.Snapshot{}, err
	}
	return snapshot, nil
}

func scanTable(ctx context.Context, db Queryer, t table, scan func(*sql.Rows) error) error {
	rows, err := db.QueryContext(ctx, t.selectSQL())
	if err != nil {
		return fmt.Errorf("select %s: %w", t.name, err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan %s: %w", t.name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate %s: %w", t.name, err)
	}
	return nil
}

// timeValue scans timestamps stored natively or as text.
type timeValue struct {
	Time time.Time
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05"}

func (v *timeValue) Scan(src any) error {
	var text string
	switch t := src.(type) {
	case nil:
		v.Time = time.Time{}
		return nil
	case time.Time:
		v.Time = t.UTC()
		return nil
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			v.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", text)
}

// jsonValue scans JSON columns stored as text or JSONB.
type jsonValue struct {
	raw []byte
}

func (v *jsonValue) Scan(src any) error {
	switch t := src.(type) {
	case nil:
		v.raw = nil
	case string:
		v.raw = []byte(t)
	case []byte:
		v.raw = append([]byte(nil), t...)
	default:
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("unsupported json type %T: %w", src, err)
		}
		v.raw = data
	}
	return nil
}

func (v jsonValue) decode(target any) error {
	if len(v.raw) == 0 {
		return nil
	}
	return json.Unmarshal(v.raw, target)
}
