package routes

import (
	"net/http"

	"awardgraph/internal/server/middleware"
	"awardgraph/pkg/common"

	"github.com/labstack/echo/v4"
)

// GetAwardHandler returns one award node by award number together with
// its direct relationships.
func GetAwardHandler(c echo.Context) error {
	type getAwardResponse struct {
		Message string         `json:"message"`
		Award   *common.Node   `json:"award,omitempty"`
		Edges   []*common.Edge `json:"edges,omitempty"`
	}

	number := c.Param("number")
	if number == "" {
		return c.JSON(http.StatusBadRequest, getAwardResponse{
			Message: "Missing award number",
		})
	}

	app := c.(*middleware.AppContext).App
	award, ok := app.Store.NodeByKey(common.NodeAward, number)
	if !ok {
		return c.JSON(http.StatusNotFound, getAwardResponse{
			Message: "Award not found",
		})
	}

	return c.JSON(http.StatusOK, getAwardResponse{
		Message: "OK",
		Award:   award,
		Edges:   app.Store.EdgesFrom(award.ID),
	})
}
