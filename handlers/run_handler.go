package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/ljbeal/MCP-remotemanager/middleware"
	"github.com/ljbeal/MCP-remotemanager/models"
)

// CodeRunner is the gateway operation exposed by the handlers
type CodeRunner interface {
	RunCode(ctx context.Context, source, hostname string, args map[string]interface{}) models.RunResponse
}

type RunHandler struct {
	runner CodeRunner
}

func NewRunHandler(runner CodeRunner) *RunHandler {
	return &RunHandler{runner: runner}
}

// RunCode godoc
// @Summary Run a function on a remote host
// @Description Validate a single Go function, run it on the named host with keyword arguments and wait for its result
// @Tags run
// @Accept json
// @Produce json
// @Param run body models.RunCodeRequest true "Function, host and arguments"
// @Success 200 {object} models.RunResponse
// @Failure 400 {object} models.RunResponse
// @Router /run_code [post]
func (h *RunHandler) RunCode(c *fiber.Ctx) error {
	var req models.RunCodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse("Invalid request body"))
	}

	if req.FunctionArgs == nil {
		req.FunctionArgs = map[string]interface{}{}
	}

	resp := h.runner.RunCode(middleware.GetXRayContext(c), req.FunctionSource, req.Hostname, req.FunctionArgs)
	return c.JSON(resp)
}
