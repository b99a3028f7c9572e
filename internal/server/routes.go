package server

import (
	"github.com/signalhouse/magpie/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Segment ingest and status
	apiRoutes.POST("/datasets/:dataset_id/documents/:document_id/segments", routes.CreateSegmentsHandler)
	apiRoutes.POST("/datasets/:dataset_id/documents/:document_id/segments/import", routes.ImportSegmentsHandler)
	apiRoutes.GET("/segments/:id", routes.GetSegmentHandler)

	// Extraction
	apiRoutes.POST("/datasets/:dataset_id/documents/:document_id/extract", routes.ExtractDocumentHandler)
	apiRoutes.GET("/prompts", routes.GetPromptsHandler)

	// Graph browsing and analytics
	apiRoutes.GET("/datasets/:dataset_id/graph/stats", routes.GetGraphStatsHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/nodes", routes.GetGraphNodesHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/edges", routes.GetGraphEdgesHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/path", routes.GetShortestPathHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/neighbors/:node_id", routes.GetNeighborsHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/communities", routes.GetCommunitiesHandler)
	apiRoutes.GET("/datasets/:dataset_id/graph/centrality", routes.GetCentralityHandler)

	// Entity dictionary
	apiRoutes.GET("/dictionary/entities", routes.GetEntitiesHandler)
	apiRoutes.POST("/dictionary/entities", routes.CreateEntityHandler)
	apiRoutes.GET("/dictionary/entities/:id", routes.GetEntityHandler)
	apiRoutes.PATCH("/dictionary/entities/:id", routes.EditEntityHandler)
	apiRoutes.DELETE("/dictionary/entities/:id", routes.DeleteEntityHandler)
	apiRoutes.POST("/dictionary/entities/:id/aliases", routes.AddAliasHandler)
	apiRoutes.POST("/dictionary/import", routes.ImportDictionaryHandler)
	apiRoutes.GET("/dictionary/export", routes.ExportDictionaryHandler)
	apiRoutes.GET("/dictionary/stats", routes.GetDictionaryStatsHandler)

	// Learning
	apiRoutes.GET("/datasets/:dataset_id/suggestions", routes.GetSuggestionsHandler)
	apiRoutes.POST("/datasets/:dataset_id/suggestions/accept", routes.AcceptSuggestionHandler)
	apiRoutes.POST("/datasets/:dataset_id/discover-aliases", routes.DiscoverAliasesHandler)

	// Normalization
	apiRoutes.GET("/datasets/:dataset_id/duplicates", routes.GetDuplicatesHandler)
	apiRoutes.POST("/datasets/:dataset_id/normalize", routes.NormalizeByKeyHandler)
	apiRoutes.POST("/datasets/:dataset_id/merge", routes.MergeNodesHandler)
	apiRoutes.GET("/datasets/:dataset_id/normalization-log", routes.GetNormalizationLogHandler)
}
