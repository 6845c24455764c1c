package tasks

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/agentgate-io/agentgate-engine/pkg/tasks/api"
	"github.com/agentgate-io/agentgate-engine/pkg/types"
)

func (h *HttpHandler) Register(e *echo.Echo) {
	v1 := e.Group("/api/v1")

	t := v1.Group("/tasks")
	t.GET("", h.ListTasks)
	t.GET("/:taskId", h.GetTask)
	t.POST("/:taskId/approve", h.Approve)
	t.POST("/:taskId/reject", h.Reject)
	t.POST("/:taskId/cancel", h.Cancel)
	t.POST("/:taskId/rollback", h.Rollback)
}

func bindValidate(ctx echo.Context, i interface{}) error {
	if err := ctx.Bind(i); err != nil {
		return err
	}
	if err := ctx.Validate(i); err != nil {
		return err
	}
	return nil
}

func toAPI(task Task) api.Task {
	return api.Task{
		ID:            task.ID,
		IntegrationID: task.IntegrationID,
		Service:       task.Service,
		Type:          task.Type,
		RiskLevel:     string(task.RiskLevel),
		Status:        string(task.Status),
		Input:         task.Input,
		Output:        task.Output,
		ApprovedBy:    task.ApprovedBy,
		Cost:          task.Cost,
		Environment:   task.Environment,
		EscalatedAt:   task.EscalatedAt,
		CreatedAt:     task.CreatedAt,
	}
}

// httpError maps the fault taxonomy to the structured {kind, message} shape
// the management layer consumes.
func httpError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "task not found")
	}

	kind := types.KindOf(err)
	switch kind {
	case types.KindNotRollbackable, types.KindAlreadyRolledBack, types.KindTaskExecution:
		return echo.NewHTTPError(http.StatusConflict, map[string]string{
			"kind":    string(kind),
			"message": err.Error(),
		})
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (h *HttpHandler) ListTasks(ctx echo.Context) error {
	status := TaskStatus(ctx.QueryParam("status"))
	tasks, err := h.db.ListTasks(status)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "list tasks")
	}

	out := make([]api.Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, toAPI(task))
	}
	return ctx.JSON(http.StatusOK, out)
}

func (h *HttpHandler) GetTask(ctx echo.Context) error {
	id, err := taskID(ctx)
	if err != nil {
		return err
	}

	task, err := h.db.GetTask(id)
	if err != nil {
		return httpError(err)
	}
	return ctx.JSON(http.StatusOK, toAPI(*task))
}

func (h *HttpHandler) Approve(ctx echo.Context) error {
	id, err := taskID(ctx)
	if err != nil {
		return err
	}

	var req api.ApproveRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.gate.Approve(ctx.Request().Context(), id, req.ActorID); err != nil {
		return httpError(err)
	}
	return ctx.NoContent(http.StatusOK)
}

func (h *HttpHandler) Reject(ctx echo.Context) error {
	id, err := taskID(ctx)
	if err != nil {
		return err
	}

	var req api.RejectRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.gate.Reject(ctx.Request().Context(), id, req.ActorID, req.Reason); err != nil {
		return httpError(err)
	}
	return ctx.NoContent(http.StatusOK)
}

func (h *HttpHandler) Cancel(ctx echo.Context) error {
	id, err := taskID(ctx)
	if err != nil {
		return err
	}

	var req api.ApproveRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.gate.Cancel(ctx.Request().Context(), id, req.ActorID); err != nil {
		return httpError(err)
	}
	return ctx.NoContent(http.StatusOK)
}

func (h *HttpHandler) Rollback(ctx echo.Context) error {
	id, err := taskID(ctx)
	if err != nil {
		return err
	}

	var req api.RollbackRequest
	if err := bindValidate(ctx, &req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.rollback.Rollback(ctx.Request().Context(), id, req.ActorID); err != nil {
		return httpError(err)
	}
	return ctx.NoContent(http.StatusOK)
}

func taskID(ctx echo.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(ctx.Param("taskId"))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid task id")
	}
	return id, nil
}
