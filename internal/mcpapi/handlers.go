package mcpapi

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/resctlgo/cgdemo/internal/intf"
)

type handlers struct {
	paths  *intf.Paths
	runner RunnerAPI
}

func (h *handlers) handleGetReport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rep := &intf.Report{}
	if err := intf.LoadJSON(h.paths.Report, rep); err != nil {
		return errResult(fmt.Sprintf("read report: %v", err)), nil
	}
	return jsonResult(rep)
}

func (h *handlers) handleGetBenchKnobs(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	bk := h.runner.BenchKnobs()
	return jsonResult(&bk)
}

func (h *handlers) handleGetCmd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cmd := h.runner.Cmd()
	return jsonResult(&cmd)
}

func (h *handlers) handleTriggerBenchHashd(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.runner.RequestBenchHashd(); err != nil {
		return errResult(fmt.Sprintf("request bench-hashd: %v", err)), nil
	}
	return newTextResult("bench-hashd requested"), nil
}

func (h *handlers) handleTriggerBenchIOCost(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.runner.RequestBenchIOCost(); err != nil {
		return errResult(fmt.Sprintf("request bench-iocost: %v", err)), nil
	}
	return newTextResult("bench-iocost requested"), nil
}

func (h *handlers) handleSetHashdActive(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := getArgs(request)
	idx, ok := args["index"].(float64)
	if !ok {
		return errResult("index is required"), nil
	}
	active, _ := args["active"].(bool)
	if err := h.runner.SetHashdActive(int(idx), active); err != nil {
		return errResult(fmt.Sprintf("set hashd active: %v", err)), nil
	}
	return newTextResult(fmt.Sprintf("hashd[%d].active = %v", int(idx), active)), nil
}

func getArgs(request mcp.CallToolRequest) map[string]interface{} {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return map[string]interface{}{}
	}
	return args
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errResult(fmt.Sprintf("json marshal: %v", err)), nil
	}
	return newTextResult(string(b)), nil
}

func newTextResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
	}
}

func errResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: msg}},
	}
}
