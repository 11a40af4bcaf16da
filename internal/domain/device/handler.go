package device

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/devices", h.Register)
	api.DELETE("/devices/:deviceId", h.Unregister)
	api.GET("/devices", h.List)
}

type registerRequest struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
	Platform string `json:"platform"`
}

func (h *Handler) Register(c echo.Context) error {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}

	reg, err := h.svc.Register(c.Request().Context(), userID, req.DeviceID, req.Token, req.Platform)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, reg)
}

// Unregister always answers 204: removal is best-effort and a dead
// token is harmless.
func (h *Handler) Unregister(c echo.Context) error {
	h.svc.Unregister(c.Request().Context(), c.Param("deviceId"))
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) List(c echo.Context) error {
	userID, ok := auth.CurrentUserID(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	regs, err := h.svc.ListForUser(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, regs)
}
