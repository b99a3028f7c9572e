package pgx

import (
	"context"
	"errors"

	"github.com/signalhouse/magpie/pkg/common"

	"github.com/jackc/pgx/v5"
)

// CreateSegment stores a new segment in pending state. Used by the
// ingest endpoint; extraction itself only ever reads segments and moves
// their status.
func (s *Store) CreateSegment(ctx context.Context, segment *common.Segment) error {
	if segment.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		segment.ID = id
	}
	if segment.Status == "" {
		segment.Status = common.SegmentPending
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO segments (id, dataset_id, document_id, content, platform, author, posted, engagement, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);`,
		segment.ID, segment.DatasetID, segment.DocumentID, segment.Content,
		segment.Platform, segment.Author, segment.Date, segment.Engagement, string(segment.Status))
	if isUniqueViolation(err) {
		return &common.ConflictError{Field: "segment", Value: segment.ID}
	}
	return err
}

const selectSegmentSQL = `
SELECT id, dataset_id, document_id, content, platform, author, posted, engagement, status
FROM segments
`

func (s *Store) GetSegment(ctx context.Context, id string) (*common.Segment, error) {
	row := s.pool.QueryRow(ctx, selectSegmentSQL+"WHERE id = $1;", id)
	segment, err := scanSegment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.NotFoundError{Kind: "segment", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return segment, nil
}

func (s *Store) ListPendingSegments(ctx context.Context, documentID string) ([]common.Segment, error) {
	rows, err := s.pool.Query(ctx, selectSegmentSQL+
		"WHERE document_id = $1 AND status = $2 ORDER BY id;",
		documentID, string(common.SegmentPending))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.Segment
	for rows.Next() {
		segment, err := scanSegment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *segment)
	}
	return out, rows.Err()
}

func (s *Store) SetStatus(ctx context.Context, segmentID string, status common.SegmentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE segments SET status = $2, updated_at = now() WHERE id = $1;`,
		segmentID, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.NotFoundError{Kind: "segment", ID: segmentID}
	}
	return nil
}

// StaleDocument identifies a document that had stale processing
// segments reset back to pending.
type StaleDocument struct {
	DatasetID  string
	DocumentID string
}

// ResetStaleProcessing flips segments that have sat in processing for
// longer than the given interval back to pending so a crashed worker's
// batch can be re-queued. Returns the affected documents, deduplicated.
func (s *Store) ResetStaleProcessing(ctx context.Context, olderThanMinutes int) ([]StaleDocument, error) {
	if olderThanMinutes <= 0 {
		olderThanMinutes = 30
	}
	rows, err := s.pool.Query(ctx,
		`UPDATE segments
		 SET status = $1, updated_at = now()
		 WHERE status = $2 AND updated_at < now() - ($3::bigint * interval '1 minute')
		 RETURNING dataset_id, document_id;`,
		string(common.SegmentPending), string(common.SegmentProcessing), olderThanMinutes)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[StaleDocument]bool)
	var out []StaleDocument
	for rows.Next() {
		var doc StaleDocument
		if err := rows.Scan(&doc.DatasetID, &doc.DocumentID); err != nil {
			return nil, err
		}
		if seen[doc] {
			continue
		}
		seen[doc] = true
		out = append(out, doc)
	}
	return out, rows.Err()
}

func scanSegment(row pgx.Row) (*common.Segment, error) {
	var segment common.Segment
	var status string
	err := row.Scan(&segment.ID, &segment.DatasetID, &segment.DocumentID, &segment.Content,
		&segment.Platform, &segment.Author, &segment.Date, &segment.Engagement, &status)
	if err != nil {
		return nil, err
	}
	segment.Status = common.SegmentStatus(status)
	return &segment, nil
}
