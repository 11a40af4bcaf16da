package consult

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
	g := api.Group("", auth.RequireRole("admin", "physician", "nurse"))
	g.POST("/consults", h.Submit)
	g.GET("/consults", h.List)
	g.GET("/consults/:id", h.Get)
	g.GET("/consults/:id/notes", h.ListNotes)
	g.POST("/consults/:id/acknowledge", h.Acknowledge)
	g.POST("/consults/:id/assign", h.Assign)
	g.POST("/consults/:id/notes", h.AddNote)
	g.POST("/consults/:id/complete", h.Complete)
	g.POST("/consults/:id/cancel", h.Cancel)
}

func (h *Handler) Submit(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}

	var in SubmitInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	consult, err := h.svc.Submit(c.Request().Context(), actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, consult)
}

func (h *Handler) Get(c echo.Context) error {
	actor, err := actorID(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid consult id"))
	}

	view, err := h.svc.Get(c.Request().Context(), id, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) List(c echo.Context) error {
	var f ListFilter
	if v := c.QueryParam("target_dept"); v != "" {
		f.TargetDeptID, _ = uuid.Parse(v)
	}
	if v := c.QueryParam("requesting_dept"); v != "" {
		f.RequestingDeptID, _ = uuid.Parse(v)
	}
	if v := c.QueryParam("patient"); v != "" {
		f.PatientID, _ = uuid.Parse(v)
	}
	if v := c.QueryParam("assigned_to"); v != "" {
		f.AssignedTo, _ = uuid.Parse(v)
	}
	if v := c.QueryParam("status"); v != "" {
		f.Status = Status(v)
		if !f.Status.Valid() {
			return c.JSON(http.StatusBadRequest, errBody("unknown status"))
		}
	}

	p := pagination.FromContext(c)
	views, total, err := h.svc.List(c.Request().Context(), f, p.Limit, p.Offset)
	if err != nil {
		return writeError(c, err)
	}

	// overdue=true narrows the page to consults past their deadline.
	if c.QueryParam("overdue") == "true" {
		filtered := make([]*View, 0, len(views))
		for _, v := range views {
			if v.IsOverdue {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}

	return c.JSON(http.StatusOK, pagination.NewResponse(views, total, p.Limit, p.Offset))
}

func (h *Handler) ListNotes(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid consult id"))
	}

	p := pagination.FromContext(c)
	notes, total, err := h.svc.Notes(c.Request().Context(), id, p.Limit, p.Offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(notes, total, p.Limit, p.Offset))
}

func (h *Handler) Acknowledge(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return err
	}

	consult, err := h.svc.Acknowledge(c.Request().Context(), id, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

type assignRequest struct {
	Assignee        uuid.UUID `json:"assignee"`
	ObservedVersion int       `json:"observed_version"`
}

func (h *Handler) Assign(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return err
	}

	var req assignRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}
	if req.Assignee == uuid.Nil {
		return c.JSON(http.StatusBadRequest, errBody("assignee is required"))
	}

	consult, err := h.svc.Assign(c.Request().Context(), id, actor, req.Assignee, req.ObservedVersion)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

func (h *Handler) AddNote(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return err
	}

	var in NoteInput
	if err := c.Bind(&in); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	consult, note, err := h.svc.AddNote(c.Request().Context(), id, actor, in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, map[string]interface{}{
		"consult": consult,
		"note":    note,
	})
}

func (h *Handler) Complete(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return err
	}

	consult, err := h.svc.Complete(c.Request().Context(), id, actor)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Cancel(c echo.Context) error {
	actor, id, err := actorAndID(c)
	if err != nil {
		return err
	}

	var req cancelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errBody("invalid request body"))
	}

	consult, err := h.svc.Cancel(c.Request().Context(), id, actor, req.Reason)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, consult)
}

func actorID(c echo.Context) (uuid.UUID, error) {
	id, ok := auth.CurrentUserID(c)
	if !ok {
		return uuid.Nil, echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}
	return id, nil
}

func actorAndID(c echo.Context) (uuid.UUID, uuid.UUID, error) {
	actor, err := actorID(c)
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	id, perr := uuid.Parse(c.Param("id"))
	if perr != nil {
		return uuid.Nil, uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid consult id")
	}
	return actor, id, nil
}

func errBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// writeError maps the domain error taxonomy to HTTP statuses.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return c.JSON(http.StatusNotFound, errBody(err.Error()))
	case errors.Is(err, ErrForbidden):
		return c.JSON(http.StatusForbidden, errBody(err.Error()))
	case errors.Is(err, ErrConflict):
		return c.JSON(http.StatusConflict, errBody(err.Error()))
	case errors.Is(err, ErrInvalidTransition):
		return c.JSON(http.StatusUnprocessableEntity, errBody(err.Error()))
	case errors.Is(err, ErrValidation):
		return c.JSON(http.StatusBadRequest, errBody(err.Error()))
	case errors.Is(err, ErrDirectoryUnavailable):
		return c.JSON(http.StatusServiceUnavailable, errBody(err.Error()))
	default:
		return c.JSON(http.StatusInternalServerError, errBody("internal error"))
	}
}
