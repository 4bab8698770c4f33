package routes

import (
	"errors"
	"net/http"

	"awardgraph/internal/server/middleware"
	"awardgraph/pkg/common"
	"awardgraph/pkg/graphview"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

// QueryViewHandler executes a query intent and returns both the answer
// bundle and the exported subgraph view around its referenced entities.
func QueryViewHandler(c echo.Context) error {
	type queryViewBody struct {
		Kind     string         `json:"kind" validate:"required"`
		Params   map[string]any `json:"params" validate:"required"`
		MaxNodes int            `json:"max_nodes" validate:"omitempty,min=1,max=500"`
	}

	type queryViewResponse struct {
		Message string               `json:"message"`
		Answer  *common.AnswerBundle `json:"answer,omitempty"`
		View    *common.GraphView    `json:"view,omitempty"`
	}

	data := new(queryViewBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryViewResponse{
			Message: "Invalid request body",
		})
	}

	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryViewResponse{
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
			return c.JSON(http.StatusBadRequest, queryViewResponse{
				Message: err.Error(),
			})
		}
		return c.JSON(http.StatusInternalServerError, queryViewResponse{
			Message: "Internal server error",
		})
	}

	answer, err := app.Orchestrator.Execute(c.Request().Context(), plan)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, queryViewResponse{
			Message: "Internal server error",
		})
	}

	view := graphview.Export(app.Store, answer, data.MaxNodes)

	return c.JSON(http.StatusOK, queryViewResponse{
		Message: "Query executed",
		Answer:  answer,
		View:    view,
	})
}
