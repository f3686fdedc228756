// Package mcp exposes the orchestrator as a Model Context Protocol tool
// provider, so coding assistants can ask/recommend/execute/status/respond
// against a spec pipeline the same way they drive any other MCP server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/smartspec/smartspec/internal/orchestrator"
	"github.com/smartspec/smartspec/pkg/engine"
)

// Handler wraps an Orchestrator to provide MCP tool access.
type Handler struct {
	orch   *orchestrator.Orchestrator
	server *server.MCPServer
	sse    *server.SSEServer
}

// NewHandler creates a new MCP handler bound to an orchestrator.
func NewHandler(orch *orchestrator.Orchestrator) *Handler {
	h := &Handler{orch: orch}

	mcpServer := server.NewMCPServer(
		"smartspec",
		"1.0.0",
		server.WithToolCapabilities(true),
	)
	h.registerTools(mcpServer)
	h.server = mcpServer
	h.sse = server.NewSSEServer(mcpServer)

	return h
}

// registerTools registers every pipeline tool with the server.
func (h *Handler) registerTools(mcpServer *server.MCPServer) {
	mcpServer.AddTool(
		mcp.NewTool("recommend",
			mcp.WithDescription("Recommend the next pipeline stage for a spec bundle (generate_spec, generate_plan, generate_tasks, verify_tasks, report_implement_prompter, implement_tasks, sync_tasks_checkboxes, generate_docs, release_tagger)."),
			mcp.WithString("category", mcp.Required(), mcp.Description("Spec category, e.g. 'feature' or 'bugfix'")),
			mcp.WithString("spec_id", mcp.Required(), mcp.Description("Spec bundle id, e.g. 'spec-feature-001-widget-exporter'")),
		),
		h.handleRecommend,
	)

	mcpServer.AddTool(
		mcp.NewTool("ask",
			mcp.WithDescription("Ask a natural-language question about pipeline status, recommendations, or spec existence."),
			mcp.WithString("category", mcp.Required(), mcp.Description("Spec category to scope the question to")),
			mcp.WithString("text", mcp.Required(), mcp.Description("The natural-language question")),
		),
		h.handleAsk,
	)

	mcpServer.AddTool(
		mcp.NewTool("execute",
			mcp.WithDescription("Execute a registered workflow by name, returning an execution id to poll with the status tool."),
			mcp.WithString("workflow", mcp.Required(), mcp.Description("Workflow name, e.g. 'generate_spec'")),
			mcp.WithString("args_json", mcp.Required(), mcp.Description("JSON object of the workflow's arguments")),
			mcp.WithBoolean("apply", mcp.Description("Allow writes to governed or runtime artifacts")),
			mcp.WithBoolean("allow_network", mcp.Description("Allow calls to external providers")),
		),
		h.handleExecute,
	)

	mcpServer.AddTool(
		mcp.NewTool("status",
			mcp.WithDescription("Report the lifecycle status of a previously started execution."),
			mcp.WithString("execution_id", mcp.Required(), mcp.Description("Execution id returned by the execute tool")),
		),
		h.handleStatus,
	)

	mcpServer.AddTool(
		mcp.NewTool("respond",
			mcp.WithDescription("Answer a paused execution's human-in-the-loop interrupt with approve, reject, or modify."),
			mcp.WithString("interrupt_id", mcp.Required(), mcp.Description("Interrupt id reported by a paused execution's events")),
			mcp.WithString("action", mcp.Required(), mcp.Description("One of: approve, reject, modify")),
			mcp.WithString("payload_json", mcp.Description("JSON object carrying a modified payload, when action is 'modify'")),
		),
		h.handleRespond,
	)
}

func (h *Handler) handleRecommend(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := request.GetString("category", "")
	specID := request.GetString("spec_id", "")

	rec, err := h.orch.Recommend(category, specID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.MarshalIndent(rec, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Handler) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	category := request.GetString("category", "")
	text := request.GetString("text", "")
	if text == "" {
		return mcp.NewToolResultError("text parameter is required"), nil
	}

	result, err := h.orch.Ask(ctx, category, text)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Handler) handleExecute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workflowName := request.GetString("workflow", "")
	if workflowName == "" {
		return mcp.NewToolResultError("workflow parameter is required"), nil
	}

	argsJSON := request.GetString("args_json", "{}")
	var args map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("invalid args_json: %v", err)), nil
	}

	flags := orchestrator.Flags{
		Apply:        request.GetBool("apply", false),
		AllowNetwork: request.GetBool("allow_network", false),
	}

	id, err := h.orch.Execute(ctx, workflowName, args, flags)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(`{"execution_id": %q}`, id)), nil
}

func (h *Handler) handleStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	executionID := request.GetString("execution_id", "")
	if executionID == "" {
		return mcp.NewToolResultError("execution_id parameter is required"), nil
	}

	exec, err := h.orch.Status(executionID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	data, _ := json.MarshalIndent(exec, "", "  ")
	return mcp.NewToolResultText(string(data)), nil
}

func (h *Handler) handleRespond(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	interruptID := request.GetString("interrupt_id", "")
	action := engine.InterruptAction(request.GetString("action", ""))
	if interruptID == "" || action == "" {
		return mcp.NewToolResultError("interrupt_id and action parameters are required"), nil
	}

	var payload map[string]any
	if raw := request.GetString("payload_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid payload_json: %v", err)), nil
		}
	}

	if err := h.orch.Respond(interruptID, action, payload); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return mcp.NewToolResultText(`{"status": "ok"}`), nil
}

// ServeStdio starts the MCP server on stdio, for assistants that launch
// smartspec-service as a subprocess rather than talking HTTP to it.
func (h *Handler) ServeStdio() error {
	return server.ServeStdio(h.server)
}

// SSEHandler returns the SSE transport's http.Handler, for assistants
// that connect over HTTP instead of stdio.
func (h *Handler) SSEHandler() *server.SSEServer {
	return h.sse
}
