// Package dictionary manages canonical entities and their aliases: CRUD,
// bulk import/export, free-text matching against the known entity set and
// usage-driven confidence scoring.
package dictionary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/similarity"
	"github.com/signalhouse/magpie/pkg/store"

	gocache "github.com/patrickmn/go-cache"
)

const (
	defaultMatchThreshold = 0.7
	defaultCacheTTL       = time.Hour
)

// Service is the entity dictionary. Match results are cached per input
// text for CacheTTL; every write flushes the cache so concurrent
// extraction workers never see stale matches.
//
// A Service should be created using NewService.
type Service struct {
	store          store.DictionaryStore
	matchThreshold float64
	matchCache     *gocache.Cache
}

// NewServiceParams defines the configuration parameters for creating a
// new dictionary Service.
//
// MatchThreshold is the default similarity cutoff for FindMatchingEntities
// when the caller passes 0. CacheTTL bounds how long a match result may be
// served from cache.
type NewServiceParams struct {
	Store          store.DictionaryStore
	MatchThreshold float64
	CacheTTL       time.Duration
}

// NewService creates and returns a new Service configured with the
// provided parameters.
func NewService(params NewServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("dictionary: store is required")
	}

	threshold := params.MatchThreshold
	if threshold <= 0 {
		threshold = defaultMatchThreshold
	}
	ttl := params.CacheTTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}

	return &Service{
		store:          params.Store,
		matchThreshold: threshold,
		matchCache:     gocache.New(ttl, 2*ttl),
	}, nil
}

// AddEntity validates and persists a new entity together with its
// aliases. Returns a common.ConflictError when the global entity id or
// the (entityType, canonicalName) pair is already taken.
func (s *Service) AddEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	if strings.TrimSpace(entity.EntityType) == "" {
		return fmt.Errorf("dictionary: entity type is required")
	}
	if strings.TrimSpace(entity.CanonicalName) == "" {
		return fmt.Errorf("dictionary: canonical name is required")
	}
	if entity.Source == "" {
		entity.Source = common.EntitySourceManual
	}
	if entity.ConfidenceScore <= 0 {
		entity.ConfidenceScore = 1.0
	}

	if err := s.store.CreateEntity(ctx, entity); err != nil {
		return err
	}

	s.matchCache.Flush()
	return nil
}

// UpdateEntity persists changes to an existing entity and invalidates
// the match cache.
func (s *Service) UpdateEntity(ctx context.Context, entity *common.DictionaryEntity) error {
	if err := s.store.UpdateEntity(ctx, entity); err != nil {
		return err
	}
	s.matchCache.Flush()
	return nil
}

// DeleteEntity removes an entity and its aliases.
func (s *Service) DeleteEntity(ctx context.Context, id string) error {
	if err := s.store.DeleteEntity(ctx, id); err != nil {
		return err
	}
	s.matchCache.Flush()
	return nil
}

// GetEntity returns one entity with aliases attached.
func (s *Service) GetEntity(ctx context.Context, id string) (*common.DictionaryEntity, error) {
	return s.store.GetEntity(ctx, id)
}

// FindEntities lists entities matching the filter, aliases attached.
func (s *Service) FindEntities(ctx context.Context, filter store.EntityFilter) ([]common.DictionaryEntity, error) {
	return s.store.ListEntities(ctx, filter)
}

// AddAlias attaches an alias to an entity. Re-adding an existing alias
// upserts its usage telemetry instead of duplicating the row.
func (s *Service) AddAlias(ctx context.Context, alias *common.EntityAlias) error {
	if strings.TrimSpace(alias.Alias) == "" {
		return fmt.Errorf("dictionary: alias text is required")
	}
	if err := s.store.UpsertAlias(ctx, alias); err != nil {
		return err
	}
	s.matchCache.Flush()
	return nil
}

// Match is one dictionary hit in a piece of free text.
type Match struct {
	Entity      common.DictionaryEntity `json:"entity"`
	Alias       string                  `json:"alias,omitempty"`
	Similarity  float64                 `json:"similarity"`
	MatchedText string                  `json:"matched_text"`
}

// FindMatchingEntities scans text against every canonical name and alias
// in the dictionary and returns all hits at or above threshold, sorted
// descending by similarity. A threshold of 0 uses the service default.
// Results are cached keyed by a hash of the input until the next
// dictionary write.
func (s *Service) FindMatchingEntities(ctx context.Context, text string, threshold float64) ([]Match, error) {
	if threshold <= 0 {
		threshold = s.matchThreshold
	}

	key := matchCacheKey(text, threshold)
	if cached, ok := s.matchCache.Get(key); ok {
		return cached.([]Match), nil
	}

	entities, err := s.store.ListEntities(ctx, store.EntityFilter{})
	if err != nil {
		return nil, fmt.Errorf("dictionary: listing entities for matching: %w", err)
	}

	var matches []Match
	for _, entity := range entities {
		best, aliasText := bestMatchForEntity(entity, text)
		if best.Score < threshold {
			continue
		}
		matches = append(matches, Match{
			Entity:      entity,
			Alias:       aliasText,
			Similarity:  best.Score,
			MatchedText: best.MatchedText,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return matches[i].Entity.CanonicalName < matches[j].Entity.CanonicalName
	})

	s.matchCache.SetDefault(key, matches)
	return matches, nil
}

// bestMatchForEntity slides the canonical name and every alias across
// the text and keeps the best window. The canonical name wins ties so
// the returned alias is only set when an alias genuinely scored higher.
func bestMatchForEntity(entity common.DictionaryEntity, text string) (similarity.PhraseMatch, string) {
	best := bestPhrase(entity.CanonicalName, text)
	aliasText := ""

	for _, alias := range entity.Aliases {
		m := bestPhrase(alias.Alias, text)
		if m.Score > best.Score {
			best = m
			aliasText = alias.Alias
		}
	}

	return best, aliasText
}

// bestPhrase matches a candidate both as written and with its tokens
// collapsed into one word, so "Acme Corp" still hits the single text
// token "AcmeCorp".
func bestPhrase(candidate, text string) similarity.PhraseMatch {
	best := similarity.MatchPhrase(candidate, text)

	tokens := similarity.Tokenize(candidate)
	if len(tokens) > 1 {
		if m := similarity.MatchPhrase(strings.Join(tokens, ""), text); m.Score > best.Score {
			best = m
		}
	}

	return best
}

// UpdateEntityFromUsage records one observed use of an entity during
// extraction: usage count and last-used move forward and the confidence
// score follows the saturating curve
// min(1.0, confidence + usage_count*0.01). When the event names an
// alias, that alias's match telemetry is bumped as well.
func (s *Service) UpdateEntityFromUsage(ctx context.Context, id string, event store.UsageEvent) error {
	entity, err := s.store.GetEntity(ctx, id)
	if err != nil {
		return err
	}

	matchedAt := event.MatchedAt
	if matchedAt.IsZero() {
		matchedAt = time.Now()
	}

	entity.Metadata.UsageCount++
	entity.Metadata.LastUsed = &matchedAt
	entity.ConfidenceScore = min(1.0, entity.ConfidenceScore+float64(entity.Metadata.UsageCount)*0.01)

	if err := s.store.UpdateEntity(ctx, entity); err != nil {
		return err
	}

	if event.Alias != "" {
		err := s.store.UpsertAlias(ctx, &common.EntityAlias{
			EntityID:        id,
			Alias:           event.Alias,
			SimilarityScore: event.Similarity,
			MatchCount:      1,
			LastMatchedAt:   &matchedAt,
		})
		if err != nil {
			logger.Warn("failed to bump alias usage", "entity", id, "alias", event.Alias, "error", err)
		}
	}

	s.matchCache.Flush()
	return nil
}

// Statistics summarizes the dictionary.
func (s *Service) Statistics(ctx context.Context) (store.DictionaryStats, error) {
	return s.store.Stats(ctx)
}

func matchCacheKey(text string, threshold float64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%.3f|%s", threshold, text)))
	return hex.EncodeToString(sum[:])
}
