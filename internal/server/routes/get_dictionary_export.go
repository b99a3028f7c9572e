package routes

import (
	"net/http"

	"github.com/signalhouse/magpie/internal/server/middleware"
	"github.com/signalhouse/magpie/internal/storage"
	"github.com/signalhouse/magpie/pkg/common"
	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/logger"
	"github.com/signalhouse/magpie/pkg/store"

	"github.com/labstack/echo/v4"
)

// ExportDictionaryHandler serializes the dictionary. With store=true
// the artifact is uploaded to the object store and a presigned download
// link is returned instead of the raw payload.
func ExportDictionaryHandler(c echo.Context) error {
	type exportQuery struct {
		Format     string  `query:"format"`
		EntityType string  `query:"type"`
		Source     string  `query:"source"`
		MinConf    float64 `query:"min_confidence"`
		Store      bool    `query:"store"`
	}

	params := new(exportQuery)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid query parameters"})
	}

	format := dictionary.ExportFormat(params.Format)
	if format == "" {
		format = dictionary.FormatJSON
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	data, err := app.Dictionary.Export(ctx, store.EntityFilter{
		EntityType:    params.EntityType,
		Source:        common.EntitySource(params.Source),
		MinConfidence: params.MinConf,
	}, format)
	if err != nil {
		logger.Error("Dictionary export failed", "format", format, "err", err)
		return jsonError(c, err)
	}

	contentType := "application/json"
	if format == dictionary.FormatYAML {
		contentType = "application/yaml"
	}

	if params.Store {
		if app.S3 == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Object storage is not configured"})
		}
		key := storage.ExportKey(string(format))
		if err := storage.PutObject(ctx, app.S3, key, contentType, data); err != nil {
			logger.Error("Failed to upload export artifact", "key", key, "err", err)
			return jsonError(c, err)
		}
		link, err := storage.GenerateDownloadLink(ctx, app.S3, key)
		if err != nil {
			logger.Error("Failed to presign export artifact", "key", key, "err", err)
			return jsonError(c, err)
		}
		return c.JSON(http.StatusOK, map[string]string{
			"key":  key,
			"link": link,
		})
	}

	return c.Blob(http.StatusOK, contentType, data)
}
