package dictionary

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"gopkg.in/yaml.v3"
)

// ImportMode selects the duplicate policy of a bulk import.
type ImportMode string

const (
	// ImportSkipDuplicates leaves existing entities untouched.
	ImportSkipDuplicates ImportMode = "skipDuplicates"
	// ImportUpdateExisting overwrites existing entities and re-adds
	// their aliases.
	ImportUpdateExisting ImportMode = "updateExisting"
)

// ImportError records one failed entity of a bulk import.
type ImportError struct {
	CanonicalName string `json:"canonical_name"`
	Message       string `json:"message"`
}

// ImportResult summarizes a bulk import. Entities are processed
// independently; Errors collects per-entity failures without aborting
// the batch.
type ImportResult struct {
	Created int           `json:"created"`
	Updated int           `json:"updated"`
	Skipped int           `json:"skipped"`
	Errors  []ImportError `json:"errors,omitempty"`
}

// BulkImport imports entities one by one under the given duplicate
// policy. A failing entity is recorded and the rest of the batch
// continues.
func (s *Service) BulkImport(ctx context.Context, entities []common.DictionaryEntity, mode ImportMode) ImportResult {
	if mode == "" {
		mode = ImportSkipDuplicates
	}

	result := ImportResult{}
	for i := range entities {
		entity := entities[i]
		entity.ID = ""
		if entity.Source == "" {
			entity.Source = common.EntitySourceImported
		}

		err := s.AddEntity(ctx, &entity)
		if err == nil {
			result.Created++
			continue
		}

		if !common.IsConflict(err) {
			result.Errors = append(result.Errors, ImportError{
				CanonicalName: entity.CanonicalName,
				Message:       err.Error(),
			})
			continue
		}

		switch mode {
		case ImportUpdateExisting:
			if updateErr := s.overwriteExisting(ctx, entity); updateErr != nil {
				result.Errors = append(result.Errors, ImportError{
					CanonicalName: entity.CanonicalName,
					Message:       updateErr.Error(),
				})
				continue
			}
			result.Updated++
		default:
			result.Skipped++
		}
	}

	logger.Info("bulk import finished",
		"created", result.Created,
		"updated", result.Updated,
		"skipped", result.Skipped,
		"errors", len(result.Errors))

	return result
}

// overwriteExisting resolves the conflicting entity by canonical name
// and replaces its mutable fields, re-upserting the imported aliases.
func (s *Service) overwriteExisting(ctx context.Context, incoming common.DictionaryEntity) error {
	existing, err := s.store.ListEntities(ctx, store.EntityFilter{
		EntityType:    incoming.EntityType,
		CanonicalName: incoming.CanonicalName,
	})
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		return &common.NotFoundError{Kind: "dictionary entity", ID: incoming.CanonicalName}
	}

	target := existing[0]
	target.EntityID = incoming.EntityID
	if incoming.ConfidenceScore > 0 {
		target.ConfidenceScore = incoming.ConfidenceScore
	}
	target.Metadata.Description = incoming.Metadata.Description
	target.Metadata.Category = incoming.Metadata.Category
	target.Metadata.Tags = incoming.Metadata.Tags
	target.Metadata.ExtractionPatterns = incoming.Metadata.ExtractionPatterns

	if err := s.UpdateEntity(ctx, &target); err != nil {
		return err
	}

	for i := range incoming.Aliases {
		alias := incoming.Aliases[i]
		alias.ID = ""
		alias.EntityID = target.ID
		if err := s.store.UpsertAlias(ctx, &alias); err != nil {
			return err
		}
	}
	return nil
}

// ExportFormat selects the serialization of Export.
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// exportFile is the envelope written by Export and read by Import.
type exportFile struct {
	Entities []common.DictionaryEntity `json:"entities" yaml:"entities"`
}

// Export serializes the entities matching the filter, aliases included.
// The output round-trips through Import.
func (s *Service) Export(ctx context.Context, filter store.EntityFilter, format ExportFormat) ([]byte, error) {
	entities, err := s.store.ListEntities(ctx, filter)
	if err != nil {
		return nil, err
	}

	file := exportFile{Entities: entities}
	switch format {
	case FormatYAML:
		return yaml.Marshal(file)
	case FormatJSON, "":
		return json.MarshalIndent(file, "", "  ")
	default:
		return nil, fmt.Errorf("dictionary: unsupported export format %q", format)
	}
}

// Import parses a previously exported payload and bulk-imports it.
func (s *Service) Import(ctx context.Context, data []byte, format ExportFormat, mode ImportMode) (ImportResult, error) {
	var file exportFile
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, &file)
	case FormatJSON, "":
		err = json.Unmarshal(data, &file)
	default:
		err = fmt.Errorf("dictionary: unsupported import format %q", format)
	}
	if err != nil {
		return ImportResult{}, err
	}

	return s.BulkImport(ctx, file.Entities, mode), nil
}
