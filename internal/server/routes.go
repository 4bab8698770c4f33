package server

import (
	"awardgraph/internal/server/routes"

	"github.com/labstack/echo/v4"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})

	apiRoutes := e.Group("/api")

	// Query routes
	apiRoutes.POST("/query", routes.QueryHandler)
	apiRoutes.POST("/query/view", routes.QueryViewHandler)

	// Graph routes
	apiRoutes.GET("/awards/:number", routes.GetAwardHandler)
	apiRoutes.GET("/nodes/:id", routes.GetNodeHandler)

	// Ingest routes
	apiRoutes.POST("/ingest", routes.PostIngestHandler)
}
