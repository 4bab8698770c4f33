package pgx

import (
	"context"
	"encoding/json"
	"fmt"

	"awardgraph/pkg/common"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxIConn is the subset of pgxpool.Pool the persister uses, so tests can
// substitute a recording fake.
type pgxIConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Persister mirrors the in-memory graph into Postgres. Writes are plain
// upserts keyed on the surrogate ids, so replaying a mutation after a
// partial failure is harmless.
type Persister struct {
	conn pgxIConn
}

// NewPersister wraps a live connection pool (or any pgxIConn-compatible
// handle) in a Persister.
func NewPersister(conn pgxIConn) *Persister {
	return &Persister{conn: conn}
}

func (p *Persister) SaveNodes(ctx context.Context, nodes []*common.Node) error {
	for _, n := range nodes {
		attrs, err := json.Marshal(n.Attrs)
		if err != nil {
			return fmt.Errorf("failed to encode attrs for node %s: %w", n.ID, err)
		}
		_, err = p.conn.Exec(ctx, `
			INSERT INTO nodes (id, type, label, key, attrs)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET type = EXCLUDED.type, label = EXCLUDED.label,
			    key = EXCLUDED.key, attrs = EXCLUDED.attrs`,
			n.ID, string(n.Type), n.Label, n.Key, attrs)
		if err != nil {
			return fmt.Errorf("failed to save node %s: %w", n.ID, err)
		}
	}
	return nil
}

func (p *Persister) SaveEdges(ctx context.Context, edges []*common.Edge) error {
	for _, e := range edges {
		attrs, err := json.Marshal(e.Attrs)
		if err != nil {
			return fmt.Errorf("failed to encode attrs for edge %s: %w", e.ID, err)
		}
		_, err = p.conn.Exec(ctx, `
			INSERT INTO edges (id, type, source, target, time_scope, attrs)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (id) DO UPDATE
			SET type = EXCLUDED.type, source = EXCLUDED.source,
			    target = EXCLUDED.target, time_scope = EXCLUDED.time_scope,
			    attrs = EXCLUDED.attrs`,
			e.ID, string(e.Type), e.Source, e.Target, e.TimeScope, attrs)
		if err != nil {
			return fmt.Errorf("failed to save edge %s: %w", e.ID, err)
		}
	}
	return nil
}

func (p *Persister) DeleteNodes(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.conn.Exec(ctx, `DELETE FROM nodes WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete nodes: %w", err)
	}
	return nil
}

func (p *Persister) DeleteEdges(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := p.conn.Exec(ctx, `DELETE FROM edges WHERE id = ANY($1)`, ids); err != nil {
		return fmt.Errorf("failed to delete edges: %w", err)
	}
	return nil
}

func (p *Persister) SaveAlias(ctx context.Context, duplicateID, canonicalID string) error {
	_, err := p.conn.Exec(ctx, `
		INSERT INTO aliases (duplicate_id, canonical_id)
		VALUES ($1, $2)
		ON CONFLICT (duplicate_id) DO UPDATE SET canonical_id = EXCLUDED.canonical_id`,
		duplicateID, canonicalID)
	if err != nil {
		return fmt.Errorf("failed to save alias %s -> %s: %w", duplicateID, canonicalID, err)
	}
	return nil
}

// Load reads the whole persisted graph for the startup restore.
func (p *Persister) Load(ctx context.Context) ([]*common.Node, []*common.Edge, map[string]string, error) {
	nodes, err := p.loadNodes(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	edges, err := p.loadEdges(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	aliases, err := p.loadAliases(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	return nodes, edges, aliases, nil
}

func (p *Persister) loadNodes(ctx context.Context) ([]*common.Node, error) {
	rows, err := p.conn.Query(ctx, `SELECT id, type, label, key, attrs FROM nodes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load nodes: %w", err)
	}
	defer rows.Close()

	nodes := make([]*common.Node, 0)
	for rows.Next() {
		var n common.Node
		var typ string
		var attrs []byte
		if err := rows.Scan(&n.ID, &typ, &n.Label, &n.Key, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan node row: %w", err)
		}
		n.Type = common.NodeType(typ)
		if err := decodeAttrs(attrs, &n.Attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attrs for node %s: %w", n.ID, err)
		}
		nodes = append(nodes, &n)
	}
	return nodes, rows.Err()
}

func (p *Persister) loadEdges(ctx context.Context) ([]*common.Edge, error) {
	rows, err := p.conn.Query(ctx, `SELECT id, type, source, target, time_scope, attrs FROM edges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load edges: %w", err)
	}
	defer rows.Close()

	edges := make([]*common.Edge, 0)
	for rows.Next() {
		var e common.Edge
		var typ string
		var attrs []byte
		if err := rows.Scan(&e.ID, &typ, &e.Source, &e.Target, &e.TimeScope, &attrs); err != nil {
			return nil, fmt.Errorf("failed to scan edge row: %w", err)
		}
		e.Type = common.EdgeType(typ)
		if err := decodeAttrs(attrs, &e.Attrs); err != nil {
			return nil, fmt.Errorf("failed to decode attrs for edge %s: %w", e.ID, err)
		}
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}

func (p *Persister) loadAliases(ctx context.Context) (map[string]string, error) {
	rows, err := p.conn.Query(ctx, `SELECT duplicate_id, canonical_id FROM aliases`)
	if err != nil {
		return nil, fmt.Errorf("failed to load aliases: %w", err)
	}
	defer rows.Close()

	aliases := make(map[string]string)
	for rows.Next() {
		var dup, canon string
		if err := rows.Scan(&dup, &canon); err != nil {
			return nil, fmt.Errorf("failed to scan alias row: %w", err)
		}
		aliases[dup] = canon
	}
	return aliases, rows.Err()
}

func decodeAttrs(raw []byte, out *map[string]any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, out)
}
