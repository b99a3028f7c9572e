package pgx

import (
	"context"
	"errors"
	"strings"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/jackc/pgx/v5"
)

// CreateEntity persists an entity and its aliases in one transaction.
// A duplicate global entity id or (entity_type, canonical_name) pair
// maps the unique violation onto a common.ConflictError.
func (s *Store) CreateEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	if entity.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		entity.ID = id
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO dictionary_entities (id, entity_id, entity_type, canonical_name, confidence_score, source, metadata)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)
		 RETURNING created_at, updated_at;`,
		entity.ID, entity.EntityID, entity.EntityType, entity.CanonicalName,
		entity.ConfidenceScore, string(entity.Source), entity.Metadata,
	).Scan(&entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return conflictFor(err, entity)
		}
		return err
	}

	for i := range entity.Aliases {
		alias := &entity.Aliases[i]
		alias.EntityID = entity.ID
		if alias.ID == "" {
			id, err := newID()
			if err != nil {
				return err
			}
			alias.ID = id
		}
		if err := upsertAliasTx(ctx, tx, alias); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func conflictFor(err error, entity *common.DictionaryEntity) error {
	if strings.Contains(err.Error(), "entity_id") {
		return &common.ConflictError{Field: "entity_id", Value: entity.EntityID}
	}
	return &common.ConflictError{Field: "canonical_name", Value: entity.EntityType + "/" + entity.CanonicalName}
}

func (s *Store) UpdateEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	err := s.pool.QueryRow(ctx,
		`UPDATE dictionary_entities
		 SET entity_id = NULLIF($2, ''), entity_type = $3, canonical_name = $4,
		     confidence_score = $5, source = $6, metadata = $7, updated_at = now()
		 WHERE id = $1
		 RETURNING updated_at;`,
		entity.ID, entity.EntityID, entity.EntityType, entity.CanonicalName,
		entity.ConfidenceScore, string(entity.Source), entity.Metadata,
	).Scan(&entity.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &common.NotFoundError{Kind: "entity", ID: entity.ID}
	}
	if isUniqueViolation(err) {
		return conflictFor(err, entity)
	}
	return err
}

const selectEntitySQL = `
SELECT id, COALESCE(entity_id, ''), entity_type, canonical_name, confidence_score, source, metadata, created_at, updated_at
FROM dictionary_entities
`

func (s *Store) GetEntity(ctx context.Context, id string) (*common.DictionaryEntity, error) {
	row := s.pool.QueryRow(ctx, selectEntitySQL+"WHERE id = $1;", id)
	entity, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &common.NotFoundError{Kind: "entity", ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := s.attachAliases(ctx, []*common.DictionaryEntity{entity}); err != nil {
		return nil, err
	}
	return entity, nil
}

// DeleteEntity removes an entity; aliases cascade.
func (s *Store) DeleteEntity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM dictionary_entities WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.NotFoundError{Kind: "entity", ID: id}
	}
	return nil
}

const listEntitiesSQL = selectEntitySQL + `
WHERE ($1 = '' OR entity_type = $1)
  AND ($2 = '' OR source = $2)
  AND ($3 = '' OR lower(canonical_name) = lower($3))
  AND confidence_score >= $4
ORDER BY entity_type, canonical_name;
`

func (s *Store) ListEntities(ctx context.Context, filter store.EntityFilter) ([]common.DictionaryEntity, error) {
	rows, err := s.pool.Query(ctx, listEntitiesSQL,
		filter.EntityType, string(filter.Source), filter.CanonicalName, filter.MinConfidence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []common.DictionaryEntity
	var refs []*common.DictionaryEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		refs = append(refs, &out[i])
	}
	if err := s.attachAliases(ctx, refs); err != nil {
		return nil, err
	}
	return out, nil
}

func scanEntity(row pgx.Row) (*common.DictionaryEntity, error) {
	var entity common.DictionaryEntity
	var source string
	err := row.Scan(&entity.ID, &entity.EntityID, &entity.EntityType, &entity.CanonicalName,
		&entity.ConfidenceScore, &source, &entity.Metadata, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return nil, err
	}
	entity.Source = common.EntitySource(source)
	return &entity, nil
}

const selectAliasesSQL = `
SELECT id, entity_ref, alias, COALESCE(language, ''), COALESCE(script, ''), COALESCE(alias_type, ''),
       similarity_score, match_count, last_matched_at
FROM entity_aliases
WHERE entity_ref = ANY($1)
ORDER BY alias;
`

func (s *Store) attachAliases(ctx context.Context, entities []*common.DictionaryEntity) error {
	if len(entities) == 0 {
		return nil
	}
	byID := make(map[string]*common.DictionaryEntity, len(entities))
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		e.Aliases = nil
		byID[e.ID] = e
		ids = append(ids, e.ID)
	}

	rows, err := s.pool.Query(ctx, selectAliasesSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var alias common.EntityAlias
		if err := rows.Scan(&alias.ID, &alias.EntityID, &alias.Alias, &alias.Language,
			&alias.Script, &alias.Type, &alias.SimilarityScore, &alias.MatchCount, &alias.LastMatchedAt); err != nil {
			return err
		}
		if owner, ok := byID[alias.EntityID]; ok {
			owner.Aliases = append(owner.Aliases, alias)
		}
	}
	return rows.Err()
}

// UpsertAlias inserts the alias or, when the entity already has it
// (case-insensitively), folds the usage telemetry into the existing
// row.
func (s *Store) UpsertAlias(ctx context.Context, alias *common.EntityAlias) error {
	if alias.ID == "" {
		id, err := newID()
		if err != nil {
			return err
		}
		alias.ID = id
	}
	return upsertAliasTx(ctx, s.pool, alias)
}

const upsertAliasSQL = `
INSERT INTO entity_aliases (id, entity_ref, alias, language, script, alias_type, similarity_score, match_count, last_matched_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8, $9)
ON CONFLICT (entity_ref, lower(alias)) DO UPDATE
SET match_count      = entity_aliases.match_count + EXCLUDED.match_count,
    last_matched_at  = COALESCE(EXCLUDED.last_matched_at, entity_aliases.last_matched_at),
    similarity_score = GREATEST(entity_aliases.similarity_score, EXCLUDED.similarity_score)
RETURNING id;
`

func upsertAliasTx(ctx context.Context, q querier, alias *common.EntityAlias) error {
	return q.QueryRow(ctx, upsertAliasSQL,
		alias.ID, alias.EntityID, alias.Alias, alias.Language, alias.Script, alias.Type,
		alias.SimilarityScore, alias.MatchCount, alias.LastMatchedAt,
	).Scan(&alias.ID)
}

func (s *Store) DeleteAlias(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM entity_aliases WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &common.NotFoundError{Kind: "alias", ID: id}
	}
	return nil
}

const statsSQL = `
SELECT entity_type, source, count(*), avg(confidence_score)
FROM dictionary_entities
GROUP BY entity_type, source;
`

func (s *Store) Stats(ctx context.Context) (store.DictionaryStats, error) {
	stats := store.DictionaryStats{
		EntitiesByType:   make(map[string]int),
		EntitiesBySource: make(map[common.EntitySource]int),
	}

	rows, err := s.pool.Query(ctx, statsSQL)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	confidenceSum := 0.0
	for rows.Next() {
		var entityType, source string
		var count int
		var avgConfidence float64
		if err := rows.Scan(&entityType, &source, &count, &avgConfidence); err != nil {
			return stats, err
		}
		stats.EntitiesByType[entityType] += count
		stats.EntitiesBySource[common.EntitySource(source)] += count
		stats.TotalEntities += count
		confidenceSum += avgConfidence * float64(count)
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}
	if stats.TotalEntities > 0 {
		stats.AverageConfidence = confidenceSum / float64(stats.TotalEntities)
	}

	err = s.pool.QueryRow(ctx, `SELECT count(*) FROM entity_aliases;`).Scan(&stats.TotalAliases)
	return stats, err
}
