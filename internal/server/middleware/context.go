package middleware

import (
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"github.com/signalhouse/magpie/pkg/dictionary"
	"github.com/signalhouse/magpie/pkg/extraction"
	"github.com/signalhouse/magpie/pkg/graphquery"
	"github.com/signalhouse/magpie/pkg/learning"
	"github.com/signalhouse/magpie/pkg/normalize"
	pgxstore "github.com/signalhouse/magpie/pkg/store/pgx"
)

// App bundles the shared clients and engines every request handler
// needs. It is built once at startup; handlers reach it through the
// AppContext.
type App struct {
	DBConn *pgxpool.Pool
	Queue  *amqp091.Channel
	S3     *s3.Client

	Store        *pgxstore.Store
	Dictionary   *dictionary.Service
	Normalizer   *normalize.Engine
	Learner      *learning.Engine
	Query        *graphquery.Engine
	Orchestrator *extraction.Orchestrator
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app}
			return next(cc)
		}
	}
}
