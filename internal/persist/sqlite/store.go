// Package sqlite implements the persist.Store contract over a single SQLite
// file. One file holds nodes, edges, and root bindings so every commit
// shares the same transaction and visibility boundary.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/vk/gridwalk/internal/persist"
)

const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
	id        TEXT PRIMARY KEY,
	archetype TEXT NOT NULL,
	fields    BLOB NOT NULL,
	out_edges TEXT NOT NULL,
	in_edges  TEXT NOT NULL,
	owner     TEXT NOT NULL DEFAULT '',
	shared    INTEGER NOT NULL DEFAULT 0,
	version   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS edges (
	id        TEXT PRIMARY KEY,
	archetype TEXT NOT NULL,
	source_id TEXT NOT NULL,
	target_id TEXT NOT NULL,
	directed  INTEGER NOT NULL,
	fields    BLOB NOT NULL,
	version   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS edges_source ON edges(source_id);
CREATE INDEX IF NOT EXISTS edges_target ON edges(target_id);
CREATE TABLE IF NOT EXISTS roots (
	user_id TEXT PRIMARY KEY,
	root_id TEXT NOT NULL
);
`

// Store implements graph persistence over SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the store at path and bootstraps the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &persist.PersistenceError{Op: "open", Err: err}
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, &persist.PersistenceError{Op: "open", Err: err}
	}
	if _, err := db.Exec(schemaDDL); err != nil {
		_ = db.Close()
		return nil, &persist.PersistenceError{Op: "bootstrap schema", Err: err}
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save implements persist.Store. The stored graph is replaced with the
// snapshot inside one transaction: clearing the tables first is the sweep
// phase, the inserts are the mark set. A failure at any point rolls the
// whole transaction back.
func (s *Store) Save(ctx context.Context, snap persist.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &persist.PersistenceError{Op: "begin commit", Err: err}
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"nodes", "edges", "roots"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &persist.PersistenceError{Op: "sweep " + table, Err: err}
		}
	}
	for _, n := range snap.Nodes {
		out, err := json.Marshal(n.Out)
		if err != nil {
			return &persist.PersistenceError{Op: "encode adjacency", Err: err}
		}
		in, err := json.Marshal(n.In)
		if err != nil {
			return &persist.PersistenceError{Op: "encode adjacency", Err: err}
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO nodes (id, archetype, fields, out_edges, in_edges, owner, shared, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.Archetype, n.Fields, string(out), string(in), n.Owner, boolInt(n.Shared), n.Version,
		); err != nil {
			return &persist.PersistenceError{Op: "write node", Err: err}
		}
	}
	for _, e := range snap.Edges {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO edges (id, archetype, source_id, target_id, directed, fields, version)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			e.ID, e.Archetype, e.Source, e.Target, boolInt(e.Directed), e.Fields, e.Version,
		); err != nil {
			return &persist.PersistenceError{Op: "write edge", Err: err}
		}
	}
	for _, r := range snap.Roots {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO roots (user_id, root_id) VALUES (?, ?)`,
			r.UserID, r.RootID,
		); err != nil {
			return &persist.PersistenceError{Op: "write root", Err: err}
		}
	}
	if err := tx.Commit(); err != nil {
		return &persist.PersistenceError{Op: "commit", Err: err}
	}
	return nil
}

// LoadAll implements persist.Store.
func (s *Store) LoadAll(ctx context.Context) (persist.Snapshot, error) {
	snap := persist.Snapshot{}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, archetype, fields, out_edges, in_edges, owner, shared, version FROM nodes`)
	if err != nil {
		return snap, &persist.PersistenceError{Op: "read nodes", Err: err}
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return snap, err
		}
		snap.Nodes = append(snap.Nodes, n)
	}
	if err := rows.Err(); err != nil {
		return snap, &persist.PersistenceError{Op: "read nodes", Err: err}
	}

	erows, err := s.db.QueryContext(ctx,
		`SELECT id, archetype, source_id, target_id, directed, fields, version FROM edges`)
	if err != nil {
		return snap, &persist.PersistenceError{Op: "read edges", Err: err}
	}
	defer erows.Close()
	for erows.Next() {
		e, err := scanEdge(erows)
		if err != nil {
			return snap, err
		}
		snap.Edges = append(snap.Edges, e)
	}
	if err := erows.Err(); err != nil {
		return snap, &persist.PersistenceError{Op: "read edges", Err: err}
	}

	roots, err := s.LoadRoots(ctx)
	if err != nil {
		return snap, err
	}
	snap.Roots = roots
	return snap, nil
}

// LoadRoots implements persist.Store.
func (s *Store) LoadRoots(ctx context.Context) ([]persist.RootRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id, root_id FROM roots`)
	if err != nil {
		return nil, &persist.PersistenceError{Op: "read roots", Err: err}
	}
	defer rows.Close()
	var out []persist.RootRecord
	for rows.Next() {
		var r persist.RootRecord
		if err := rows.Scan(&r.UserID, &r.RootID); err != nil {
			return nil, &persist.PersistenceError{Op: "read roots", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &persist.PersistenceError{Op: "read roots", Err: err}
	}
	return out, nil
}

// LoadNode implements persist.Store: one node plus its incident edges, the
// unit of lazy hop expansion.
func (s *Store) LoadNode(ctx context.Context, id string) (persist.NodeRecord, []persist.EdgeRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, archetype, fields, out_edges, in_edges, owner, shared, version FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if err == sql.ErrNoRows {
		return persist.NodeRecord{}, nil, false, nil
	}
	if err != nil {
		return persist.NodeRecord{}, nil, false, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, archetype, source_id, target_id, directed, fields, version FROM edges
		 WHERE source_id = ? OR target_id = ?`, id, id)
	if err != nil {
		return persist.NodeRecord{}, nil, false, &persist.PersistenceError{Op: "read incident edges", Err: err}
	}
	defer rows.Close()
	var incident []persist.EdgeRecord
	for rows.Next() {
		e, err := scanEdge(rows)
		if err != nil {
			return persist.NodeRecord{}, nil, false, err
		}
		incident = append(incident, e)
	}
	if err := rows.Err(); err != nil {
		return persist.NodeRecord{}, nil, false, &persist.PersistenceError{Op: "read incident edges", Err: err}
	}
	return n, incident, true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanNode(row scanner) (persist.NodeRecord, error) {
	var n persist.NodeRecord
	var out, in string
	var shared int
	if err := row.Scan(&n.ID, &n.Archetype, &n.Fields, &out, &in, &n.Owner, &shared, &n.Version); err != nil {
		if err == sql.ErrNoRows {
			return n, err
		}
		return n, &persist.PersistenceError{Op: "scan node", Err: err}
	}
	if err := json.Unmarshal([]byte(out), &n.Out); err != nil {
		return n, &persist.PersistenceError{Op: "decode adjacency", Err: err}
	}
	if err := json.Unmarshal([]byte(in), &n.In); err != nil {
		return n, &persist.PersistenceError{Op: "decode adjacency", Err: err}
	}
	n.Shared = shared != 0
	return n, nil
}

func scanEdge(row scanner) (persist.EdgeRecord, error) {
	var e persist.EdgeRecord
	var directed int
	if err := row.Scan(&e.ID, &e.Archetype, &e.Source, &e.Target, &directed, &e.Fields, &e.Version); err != nil {
		return e, &persist.PersistenceError{Op: "scan edge", Err: err}
	}
	e.Directed = directed != 0
	return e, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
