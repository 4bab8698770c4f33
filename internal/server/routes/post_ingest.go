package routes

import (
	"encoding/json"
	"net/http"

	"awardgraph/internal/queue"
	"awardgraph/internal/server/middleware"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// PostIngestHandler enqueues a bulk-ingest job for the worker. The job's
// params are passed through to the external awards API search.
func PostIngestHandler(c echo.Context) error {
	type ingestBody struct {
		Params map[string]string `json:"params" validate:"required,min=1"`
	}

	type ingestResponse struct {
		Message string `json:"message"`
	}

	data := new(ingestBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, ingestResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	if app.Queue == nil {
		return c.JSON(http.StatusServiceUnavailable, ingestResponse{
			Message: "Ingest queue not configured",
		})
	}

	msg, err := json.Marshal(queue.IngestMsg{
		Message: "Bulk ingest requested",
		Params:  data.Params,
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Internal server error",
		})
	}

	if err := queue.PublishFIFO(app.Queue, queue.IngestQueue, msg); err != nil {
		return c.JSON(http.StatusInternalServerError, ingestResponse{
			Message: "Failed to enqueue ingest job",
		})
	}

	return c.JSON(http.StatusAccepted, ingestResponse{
		Message: "Ingest job queued",
	})
}
