package middleware

import (
	"github.com/labstack/echo/v4"
	"github.com/rabbitmq/amqp091-go"

	"awardgraph/pkg/nsf"
	"awardgraph/pkg/orchestrator"
	"awardgraph/pkg/planner"
	"awardgraph/pkg/store"
)

// App bundles the long-lived components every handler needs.
type App struct {
	Store        store.GraphStore
	Planner      *planner.Planner
	Orchestrator *orchestrator.Orchestrator
	NSF          *nsf.Client
	Queue        *amqp091.Channel
}

type AppContext struct {
	echo.Context
	App *App
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&AppContext{Context: c, App: app})
		}
	}
}
