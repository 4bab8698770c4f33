package routes

import (
	"errors"
	"net/http"

	"awardgraph/internal/server/middleware"
	"awardgraph/pkg/common"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// QueryHandler plans and executes one structured query intent and returns
// the grounded answer bundle.
func QueryHandler(c echo.Context) error {
	type queryBody struct {
		Kind   string         `json:"kind" validate:"required"`
		Params map[string]any `json:"params" validate:"required"`
	}

	type queryResponse struct {
		Message string               `json:"message"`
		Answer  *common.AnswerBundle `json:"answer,omitempty"`
	}

	data := new(queryBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	plan, err := app.Planner.Plan(common.QueryIntent{
		Kind:   common.IntentKind(data.Kind),
		Params: data.Params,
	})
	if err != nil {
		if errors.Is(err, common.ErrUnsupportedIntent) || errors.Is(err, common.ErrInvalidIntentParameters) {
			return c.JSON(http.StatusBadRequest, queryResponse{
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	answer, err := app.Orchestrator.Execute(c.Request().Context(), plan)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, queryResponse{
		Message: "Query executed",
		Answer:  answer,
	})
}
