package directory

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	read.GET("/departments", h.ListDepartments)
	read.GET("/departments/:id", h.GetDepartment)
	read.GET("/departments/:id/members", h.ListMembers)
	read.GET("/users", h.ListUsers)
	read.GET("/users/:id", h.GetUser)

	write := api.Group("", auth.RequireRole("admin"))
	write.POST("/departments", h.CreateDepartment)
	write.PUT("/departments/:id", h.UpdateDepartment)
	write.POST("/users", h.CreateUser)
	write.PUT("/users/:id", h.UpdateUser)
}

func (h *Handler) CreateDepartment(c echo.Context) error {
	var d Department
	if err := c.Bind(&d); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if err := h.svc.CreateDepartment(c.Request().Context(), &d); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid department id"))
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid department id"))
	}
	var d Department
	if err := c.Bind(&d); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	d.ID = id
	if err := h.svc.UpdateDepartment(c.Request().Context(), &d); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	p := pagination.FromContext(c)
	depts, total, err := h.svc.ListDepartments(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(depts, total, p.Limit, p.Offset))
}

func (h *Handler) ListMembers(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid department id"))
	}
	members, err := h.svc.ListDepartmentMembers(c.Request().Context(), id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, members)
}

func (h *Handler) CreateUser(c echo.Context) error {
	var u User
	if err := c.Bind(&u); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if err := h.svc.CreateUser(c.Request().Context(), &u); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) GetUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid user id"))
	}
	u, err := h.svc.GetUserRecord(c.Request().Context(), id)
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateUser(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid user id"))
	}
	var u User
	if err := c.Bind(&u); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	u.ID = id
	if err := h.svc.UpdateUser(c.Request().Context(), &u); err != nil {
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), p.Limit, p.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func notFoundOr500(c echo.Context, err error) error {
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, errBody(err.Error()))
	}
	return c.JSON(http.StatusInternalServerError, errBody(err.Error()))
}
