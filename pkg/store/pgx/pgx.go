// Package pgx is the PostgreSQL implementation of the store contracts.
// All SQL lives here; the engines above only ever see the interfaces.
// Node merges run in a single transaction so a crashed worker can never
// leave half-rewritten edges behind.
package pgx

import (
	"context"
	"errors"
	"fmt"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Store implements store.GraphStore, store.DictionaryStore and
// store.SegmentStore on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ store.GraphStore      = (*Store)(nil)
	_ store.DictionaryStore = (*Store)(nil)
	_ store.SegmentStore    = (*Store)(nil)
)

// New creates a Store on the given pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so the scan
// helpers work inside and outside transactions.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func newID() (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", fmt.Errorf("failed to generate id: %w", err)
	}
	return id, nil
}

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// --- GraphStore: nodes ---

const insertNodeSQL = `
INSERT INTO graph_nodes (id, dataset_id, document_id, segment_id, node_type, label, properties)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at;
`

func (s *Store) CreateNode(ctx context.Context, node *common.GraphNode) error {
	if node.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		node.ID = id
	}
	return s.pool.QueryRow(ctx, insertNodeSQL,
		node.ID, node.DatasetID, node.DocumentID, node.SegmentID,
		node.Type, node.Label, node.Properties,
	).Scan(&node.CreatedAt, &node.UpdatedAt)
}

const updateNodeSQL = `
UPDATE graph_nodes
SET node_type = $2, label = $3, properties = $4, updated_at = now()
WHERE id = $1
RETURNING updated_at;
`

func (s *Store) UpdateNode(ctx context.Context, node *common.GraphNode) error {
	err := s.pool.QueryRow(ctx, updateNodeSQL,
		node.ID, node.Type, node.Label, node.Properties,
	).Scan(&node.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &common.NotFoundError{Kind: "node", ID: node.ID}
	}
	return err
}

const selectNodeSQL = `
SELECT id, dataset_id, document_id, segment_id, node_type, label, properties, created_at, updated_at
FROM graph_nodes
`

func (s *Store) GetNode(ctx context.Context, id string) (*common.GraphNode, error) {
	row := s.pool.QueryRow(ctx, selectNodeSQL+"WHERE id = $1;", id)
	node, err := scanNode(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.NotFoundError{Kind: "node", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return node, nil
}

// DeleteNode removes a node; its edges go with it via the foreign key
// cascade.
func (s *Store) DeleteNode(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM graph_nodes WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.NotFoundError{Kind: "node", ID: id}
	}
	return nil
}

const listNodesSQL = selectNodeSQL + `
WHERE dataset_id = $1
  AND ($2 = '' OR document_id = $2)
  AND ($3 = '' OR segment_id = $3)
  AND ($4 = '' OR node_type = $4)
  AND ($5 = '' OR label = $5)
ORDER BY label, id;
`

func (s *Store) ListNodes(ctx context.Context, filter store.NodeFilter) ([]common.GraphNode, error) {
	rows, err := s.pool.Query(ctx, listNodesSQL,
		filter.DatasetID, filter.DocumentID, filter.SegmentID, string(filter.NodeType), filter.Label)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.GraphNode
	for rows.Next() {
		node, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *node)
	}
	return out, rows.Err()
}

func scanNode(row pgx.Row) (*common.GraphNode, error) {
	var node common.GraphNode
	err := row.Scan(&node.ID, &node.DatasetID, &node.DocumentID, &node.SegmentID,
		&node.Type, &node.Label, &node.Properties, &node.CreatedAt, &node.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// --- GraphStore: edges ---

const insertEdgeSQL = `
INSERT INTO graph_edges (id, dataset_id, source_node_id, target_node_id, edge_type, weight, properties)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at;
`

func (s *Store) CreateEdge(ctx context.Context, edge *common.GraphEdge) error {
	if edge.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		edge.ID = id
	}
	err := s.pool.QueryRow(ctx, insertEdgeSQL,
		edge.ID, edge.DatasetID, edge.SourceNodeID, edge.TargetNodeID,
		edge.Type, edge.Weight, edge.Properties,
	).Scan(&edge.CreatedAt, &edge.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			// Foreign key violation: one endpoint does not exist.
			return &common.NotFoundError{Kind: "node", ID: edge.SourceNodeID + "/" + edge.TargetNodeID}
		}
		if isUniqueViolation(err) {
			return &common.ConflictError{Field: "edge", Value: edge.SourceNodeID + "->" + edge.TargetNodeID}
		}
	}
	return err
}

const updateEdgeSQL = `
UPDATE graph_edges
SET weight = $2, properties = $3, updated_at = now()
WHERE id = $1
RETURNING updated_at;
`

func (s *Store) UpdateEdge(ctx context.Context, edge *common.GraphEdge) error {
	err := s.pool.QueryRow(ctx, updateEdgeSQL, edge.ID, edge.Weight, edge.Properties).Scan(&edge.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &common.NotFoundError{Kind: "edge", ID: edge.ID}
	}
	return err
}

func (s *Store) DeleteEdge(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM graph_edges WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.NotFoundError{Kind: "edge", ID: id}
	}
	return nil
}

const selectEdgeSQL = `
SELECT id, dataset_id, source_node_id, target_node_id, edge_type, weight, properties, created_at, updated_at
FROM graph_edges
`

const listEdgesSQL = selectEdgeSQL + `
WHERE dataset_id = $1
  AND ($2 = '' OR source_node_id = $2)
  AND ($3 = '' OR target_node_id = $3)
  AND ($4 = '' OR edge_type = $4)
ORDER BY id;
`

func (s *Store) ListEdges(ctx context.Context, filter store.EdgeFilter) ([]common.GraphEdge, error) {
	rows, err := s.pool.Query(ctx, listEdgesSQL,
		filter.DatasetID, filter.SourceNodeID, filter.TargetNodeID, string(filter.EdgeType))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.GraphEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *edge)
	}
	return out, rows.Err()
}

func (s *Store) FindEdge(ctx context.Context, datasetID, sourceID, targetID string, edgeType common.EdgeType) (*common.GraphEdge, error) {
	row := s.pool.QueryRow(ctx, selectEdgeSQL+
		"WHERE dataset_id = $1 AND source_node_id = $2 AND target_node_id = $3 AND edge_type = $4;",
		datasetID, sourceID, targetID, string(edgeType))
	edge, err := scanEdge(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return edge, nil
}

func scanEdge(row pgx.Row) (*common.GraphEdge, error) {
	var edge common.GraphEdge
	err := row.Scan(&edge.ID, &edge.DatasetID, &edge.SourceNodeID, &edge.TargetNodeID,
		&edge.Type, &edge.Weight, &edge.Properties, &edge.CreatedAt, &edge.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &edge, nil
}

// --- GraphStore: merge ---

// ApplyMerge executes the whole merge plan in one transaction: edges
// touching a source node are re-pointed at the target (collapsing onto
// an existing parallel edge where the unique key would collide, and
// dropping self-loops), the target receives the merged property bag,
// the sources are deleted and the audit log is appended.
func (s *Store) ApplyMerge(ctx context.Context, plan store.MergePlan) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM graph_nodes WHERE id = $1);`, plan.TargetID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return &common.NotFoundError{Kind: "node", ID: plan.TargetID}
	}
	for _, sourceID := range plan.SourceIDs {
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM graph_nodes WHERE id = $1);`, sourceID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return &common.NotFoundError{Kind: "node", ID: sourceID}
		}
	}

	sourceSet := make(map[string]bool, len(plan.SourceIDs))
	for _, id := range plan.SourceIDs {
		sourceSet[id] = true
	}

	touching, err := s.edgesTouching(ctx, tx, plan.SourceIDs)
	if err != nil {
		return err
	}
	for _, edge := range touching {
		if _, err := tx.Exec(ctx, `DELETE FROM graph_edges WHERE id = $1;`, edge.ID); err != nil {
			return err
		}
	}
	for _, edge := range touching {
		if sourceSet[edge.SourceNodeID] {
			edge.SourceNodeID = plan.TargetID
		}
		if sourceSet[edge.TargetNodeID] {
			edge.TargetNodeID = plan.TargetID
		}
		if edge.SourceNodeID == edge.TargetNodeID {
			continue
		}
		if err := upsertEdgeTx(ctx, tx, edge); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE graph_nodes SET properties = $2, updated_at = now() WHERE id = $1;`,
		plan.TargetID, plan.TargetProperties); err != nil {
		return err
	}
	for _, sourceID := range plan.SourceIDs {
		if _, err := tx.Exec(ctx, `DELETE FROM graph_nodes WHERE id = $1;`, sourceID); err != nil {
			return err
		}
	}
	for _, entry := range plan.LogEntries {
		id := entry.ID
		if id == "" {
			id, err = newID()
			if err != nil {
				return err
			}
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO normalization_log (id, dataset_id, original_entity, normalized_to, method, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6);`,
			id, entry.DatasetID, entry.OriginalEntity, entry.NormalizedTo, string(entry.Method), entry.Confidence); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *Store) edgesTouching(ctx context.Context, tx querier, nodeIDs []string) ([]common.GraphEdge, error) {
	rows, err := tx.Query(ctx, selectEdgeSQL+
		"WHERE source_node_id = ANY($1) OR target_node_id = ANY($1);", nodeIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.GraphEdge
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *edge)
	}
	return out, rows.Err()
}

const upsertEdgeSQL = `
INSERT INTO graph_edges (id, dataset_id, source_node_id, target_node_id, edge_type, weight, properties)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (dataset_id, source_node_id, target_node_id, edge_type) DO UPDATE
SET weight     = GREATEST(graph_edges.weight, EXCLUDED.weight),
    properties = graph_edges.properties || EXCLUDED.properties,
    updated_at = now();
`

func upsertEdgeTx(ctx context.Context, tx querier, edge common.GraphEdge) error {
	_, err := tx.Exec(ctx, upsertEdgeSQL,
		edge.ID, edge.DatasetID, edge.SourceNodeID, edge.TargetNodeID,
		edge.Type, edge.Weight, edge.Properties)
	return err
}

const listLogSQL = `
SELECT id, dataset_id, original_entity, normalized_to, method, confidence, created_at
FROM normalization_log
WHERE dataset_id = $1
ORDER BY created_at DESC, id
LIMIT $2;
`

func (s *Store) ListNormalizationLog(ctx context.Context, datasetID string, limit int) ([]common.NormalizationLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, listLogSQL, datasetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.NormalizationLogEntry
	for rows.Next() {
		var entry common.NormalizationLogEntry
		var method string
		if err := rows.Scan(&entry.ID, &entry.DatasetID, &entry.OriginalEntity,
			&entry.NormalizedTo, &method, &entry.Confidence, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Method = common.NormalizationMethod(method)
		out = append(out, entry)
	}
	return out, rows.Err()
}

// --- GraphStore: counts ---

func (s *Store) Counts(ctx context.Context, datasetID string) (store.GraphCounts, error) {
	counts := store.GraphCounts{
		NodesByType: make(map[common.NodeType]int),
		EdgesByType: make(map[common.EdgeType]int),
	}

	rows, err := s.pool.Query(ctx,
		`SELECT node_type, count(*) FROM graph_nodes WHERE dataset_id = $1 GROUP BY node_type;`, datasetID)
	if err != nil {
		return counts, err
	}
	defer rows.Close()
	for rows.Next() {
		var nodeType string
		var n int
		if err := rows.Scan(&nodeType, &n); err != nil {
			return counts, err
		}
		counts.NodesByType[common.NodeType(nodeType)] = n
		counts.Nodes += n
	}
	if err := rows.Err(); err != nil {
		return counts, err
	}

	edgeRows, err := s.pool.Query(ctx,
		`SELECT edge_type, count(*) FROM graph_edges WHERE dataset_id = $1 GROUP BY edge_type;`, datasetID)
	if err != nil {
		return counts, err
	}
	defer edgeRows.Close()
	for edgeRows.Next() {
		var edgeType string
		var n int
		if err := edgeRows.Scan(&edgeType, &n); err != nil {
			return counts, err
		}
		counts.EdgesByType[common.EdgeType(edgeType)] = n
		counts.Edges += n
	}
	return counts, edgeRows.Err()
}
