package routes

import (
	"errors"
	"net/http"

	"awardgraph/internal/server/middleware"
	"awardgraph/pkg/common"

	"github.com/labstack/echo/v4"
)

// GetNodeHandler returns any graph node by id, following merge aliases.
func GetNodeHandler(c echo.Context) error {
	type getNodeResponse struct {
		Message string         `json:"message"`
		Node    *common.Node   `json:"node,omitempty"`
		Out     []*common.Edge `json:"out,omitempty"`
		In      []*common.Edge `json:"in,omitempty"`
	}

	id := c.Param("id")
	app := c.(*middleware.AppContext).App

	node, err := app.Store.GetNode(id)
	if err != nil {
		if errors.Is(err, common.ErrUnknownNode) {
			return c.JSON(http.StatusNotFound, getNodeResponse{
				Message: "Node not found",
			})
		}
		return c.JSON(http.StatusInternalServerError, getNodeResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusOK, getNodeResponse{
		Message: "OK",
		Node:    node,
		Out:     app.Store.EdgesFrom(node.ID),
		In:      app.Store.EdgesTo(node.ID),
	})
}
