package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/netfabric/fabsync/pkg/errors"
	"github.com/netfabric/fabsync/pkg/fabrics"
	"github.com/netfabric/fabsync/pkg/reconcile"
	"github.com/netfabric/fabsync/pkg/resources"
	syncop "github.com/netfabric/fabsync/pkg/sync"
)

const schema = `
CREATE TABLE IF NOT EXISTS fabrics (
	id          TEXT PRIMARY KEY,
	doc         TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tracked_resources (
	fabric_id   TEXT NOT NULL,
	kind        TEXT NOT NULL,
	name        TEXT NOT NULL,
	state       TEXT NOT NULL,
	doc         TEXT NOT NULL,
	updated_at  TEXT NOT NULL,
	PRIMARY KEY (fabric_id, kind, name)
);
CREATE TABLE IF NOT EXISTS sync_operations (
	id          TEXT PRIMARY KEY,
	fabric_id   TEXT NOT NULL,
	phase       TEXT NOT NULL,
	started_at  TEXT NOT NULL,
	doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_operations_fabric ON sync_operations (fabric_id, started_at);
CREATE TABLE IF NOT EXISTS conflicts (
	id          TEXT PRIMARY KEY,
	fabric_id   TEXT NOT NULL,
	resolved    INTEGER NOT NULL DEFAULT 0,
	detected_at TEXT NOT NULL,
	doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_conflicts_fabric ON conflicts (fabric_id, detected_at);
CREATE TABLE IF NOT EXISTS audit_entries (
	id          TEXT PRIMARY KEY,
	fabric_id   TEXT NOT NULL,
	created_at  TEXT NOT NULL,
	doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_fabric ON audit_entries (fabric_id, created_at);
`

// sqliteRegistry persists registry state in a single SQLite database.
// Rows hold the serialized record plus the columns queries filter on;
// every write is its own short transaction.
type sqliteRegistry struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a SQLite-backed Registry at path.
func OpenSQLite(path string) (Registry, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	// SQLite serializes writers; a single connection avoids busy errors.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply registry schema: %w", err)
	}
	return &sqliteRegistry{db: db}, nil
}

func (s *sqliteRegistry) Close() error { return s.db.Close() }

func (s *sqliteRegistry) SaveFabric(ctx context.Context, f *fabrics.Fabric) error {
	if err := f.Validate(); err != nil {
		return err
	}
	doc, err := json.Marshal(f)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO fabrics (id, doc, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		f.ID, string(doc), now())
	return err
}

func (s *sqliteRegistry) GetFabric(ctx context.Context, id string) (*fabrics.Fabric, error) {
	return scanDoc[fabrics.Fabric](s.db.QueryRowContext(ctx,
		`SELECT doc FROM fabrics WHERE id = ?`, id), "fabric", id)
}

func (s *sqliteRegistry) ListFabrics(ctx context.Context) ([]*fabrics.Fabric, error) {
	return scanDocs[fabrics.Fabric](s.db.QueryContext(ctx,
		`SELECT doc FROM fabrics ORDER BY id`))
}

func (s *sqliteRegistry) UpsertResource(ctx context.Context, t *resources.Tracked) error {
	if t.FabricID == "" || t.Ref.Kind == "" || t.Ref.Name == "" {
		return errors.NewValidationError("resource", t.Ref.String(), "fabric, kind and name are required")
	}
	doc, err := json.Marshal(t)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tracked_resources (fabric_id, kind, name, state, doc, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(fabric_id, kind, name) DO UPDATE SET
			state = excluded.state, doc = excluded.doc, updated_at = excluded.updated_at`,
		t.FabricID, string(t.Ref.Kind), t.Ref.Name, string(t.State), string(doc), now())
	return err
}

func (s *sqliteRegistry) GetResource(ctx context.Context, fabricID string, ref resources.Ref) (*resources.Tracked, error) {
	return scanDoc[resources.Tracked](s.db.QueryRowContext(ctx,
		`SELECT doc FROM tracked_resources WHERE fabric_id = ? AND kind = ? AND name = ?`,
		fabricID, string(ref.Kind), ref.Name), "resource", ref.String())
}

func (s *sqliteRegistry) ListResources(ctx context.Context, fabricID string) ([]*resources.Tracked, error) {
	return scanDocs[resources.Tracked](s.db.QueryContext(ctx,
		`SELECT doc FROM tracked_resources WHERE fabric_id = ? ORDER BY kind, name`, fabricID))
}

func (s *sqliteRegistry) DeleteResource(ctx context.Context, fabricID string, ref resources.Ref) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_resources WHERE fabric_id = ? AND kind = ? AND name = ?`,
		fabricID, string(ref.Kind), ref.Name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("resource", ref.String())
	}
	return nil
}

func (s *sqliteRegistry) SaveOperation(ctx context.Context, snap syncop.Snapshot) error {
	var phase string
	err := s.db.QueryRowContext(ctx,
		`SELECT phase FROM sync_operations WHERE id = ?`, snap.ID).Scan(&phase)
	if err == nil && syncop.Phase(phase).Terminal() {
		return errors.NewValidationError("operation", snap.ID, "terminal operations are immutable")
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	doc, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sync_operations (id, fabric_id, phase, started_at, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET phase = excluded.phase, doc = excluded.doc`,
		snap.ID, snap.FabricID, string(snap.Phase), snap.StartedAt.UTC().Format(time.RFC3339Nano), string(doc))
	return err
}

func (s *sqliteRegistry) GetOperation(ctx context.Context, id string) (*syncop.Snapshot, error) {
	return scanDoc[syncop.Snapshot](s.db.QueryRowContext(ctx,
		`SELECT doc FROM sync_operations WHERE id = ?`, id), "sync operation", id)
}

func (s *sqliteRegistry) ListOperations(ctx context.Context, fabricID string) ([]syncop.Snapshot, error) {
	rows, err := scanDocs[syncop.Snapshot](s.db.QueryContext(ctx,
		`SELECT doc FROM sync_operations WHERE fabric_id = ? ORDER BY started_at`, fabricID))
	if err != nil {
		return nil, err
	}
	out := make([]syncop.Snapshot, len(rows))
	for i, r := range rows {
		out[i] = *r
	}
	return out, nil
}

func (s *sqliteRegistry) SaveConflict(ctx context.Context, c *reconcile.Conflict) error {
	var resolved bool
	err := s.db.QueryRowContext(ctx,
		`SELECT resolved FROM conflicts WHERE id = ?`, c.ID).Scan(&resolved)
	if err == nil && resolved && c.Resolution == nil {
		return errors.NewValidationError("conflict", c.ID, "resolution cannot be cleared")
	}
	if err != nil && err != sql.ErrNoRows {
		return err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO conflicts (id, fabric_id, resolved, detected_at, doc)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET resolved = excluded.resolved, doc = excluded.doc`,
		c.ID, c.FabricID, c.Resolved(), c.DetectedAt.UTC().Format(time.RFC3339Nano), string(doc))
	return err
}

func (s *sqliteRegistry) GetConflict(ctx context.Context, id string) (*reconcile.Conflict, error) {
	return scanDoc[reconcile.Conflict](s.db.QueryRowContext(ctx,
		`SELECT doc FROM conflicts WHERE id = ?`, id), "conflict", id)
}

func (s *sqliteRegistry) ListConflicts(ctx context.Context, fabricID string, filter ConflictFilter) ([]*reconcile.Conflict, error) {
	query := `SELECT doc FROM conflicts WHERE fabric_id = ?`
	if filter.Unresolved {
		query += ` AND resolved = 0`
	}
	query += ` ORDER BY detected_at`
	return scanDocs[reconcile.Conflict](s.db.QueryContext(ctx, query, fabricID))
}

func (s *sqliteRegistry) SaveAudit(ctx context.Context, e *reconcile.AuditEntry) error {
	doc, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, fabric_id, created_at, doc) VALUES (?, ?, ?, ?)`,
		e.ID, e.FabricID, e.Timestamp.UTC().Format(time.RFC3339Nano), string(doc))
	return err
}

func (s *sqliteRegistry) ListAudits(ctx context.Context, fabricID string) ([]*reconcile.AuditEntry, error) {
	return scanDocs[reconcile.AuditEntry](s.db.QueryContext(ctx,
		`SELECT doc FROM audit_entries WHERE fabric_id = ? ORDER BY created_at`, fabricID))
}

func scanDoc[T any](row *sql.Row, resource, id string) (*T, error) {
	var doc string
	if err := row.Scan(&doc); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError(resource, id)
		}
		return nil, err
	}
	out := new(T)
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", resource, err)
	}
	return out, nil
}

func scanDocs[T any](rows *sql.Rows, err error) ([]*T, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*T
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		item := new(T)
		if err := json.Unmarshal([]byte(doc), item); err != nil {
			return nil, fmt.Errorf("decode record: %w", err)
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
