package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"dataresource/internal/domain"
	"dataresource/internal/service"
)

func (s *Server) registerCatalogTools() {
	s.mcp.AddTool(mcp.NewTool("register_resource",
		mcp.WithDescription("Register a data file in the catalog and infer its descriptor with stats. Optionally re-infer it on a cron schedule or whenever the file changes."),
		mcp.WithString("path", mcp.Description("Path or URL of the data"), mcp.Required()),
		mcp.WithString("name", mcp.Description("Catalog name (defaults to the name derived from the path)")),
		mcp.WithString("triggerType", mcp.Description("manual (default), schedule or file_watch"),
			mcp.Enum(string(domain.TriggerManual), string(domain.TriggerSchedule), string(domain.TriggerFileWatch))),
		mcp.WithString("triggerConfig", mcp.Description("Cron expression for schedule, watched path for file_watch")),
	), s.handleRegisterResource)

	s.mcp.AddTool(mcp.NewTool("list_catalog",
		mcp.WithDescription("List catalog entries with their last inference status"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListCatalog)

	s.mcp.AddTool(mcp.NewTool("refresh_catalog_entry",
		mcp.WithDescription("Re-infer a catalog entry now and log the run"),
		mcp.WithString("entry", mcp.Description("Entry ID or name"), mcp.Required()),
	), s.handleRefreshCatalogEntry)

	s.mcp.AddTool(mcp.NewTool("preview_catalog_entry",
		mcp.WithDescription("Read the first typed rows of a catalog entry using its stored schema"),
		mcp.WithString("entry", mcp.Description("Entry ID or name"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Rows to return (default 10, max 1000)")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handlePreviewCatalogEntry)

	s.mcp.AddTool(mcp.NewTool("delete_catalog_entry",
		mcp.WithDescription("🛑 DESTRUCTIVE: Remove an entry and its run history from the catalog. The data itself is not touched."),
		mcp.WithString("entry", mcp.Description("Entry ID or name"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteCatalogEntry)
}

func (s *Server) handleRegisterResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	input := service.RegisterInput{
		Name:          argString(args, "name"),
		Path:          argString(args, "path"),
		TriggerType:   domain.TriggerType(argString(args, "triggerType")),
		TriggerConfig: argString(args, "triggerConfig"),
		Enabled:       true,
	}
	entry, run, err := catalog.Register(ctx, input)
	if entry == nil {
		return nil, err
	}
	// a failed first inference still registers the entry
	return jsonResult(map[string]any{"entry": entry, "run": run})
}

func (s *Server) handleListCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	entries, err := catalog.List()
	if err != nil {
		return nil, err
	}

	type entrySummary struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Path       string `json:"path"`
		Trigger    string `json:"trigger"`
		LastStatus string `json:"lastStatus,omitempty"`
		LastError  string `json:"lastError,omitempty"`
	}
	summaries := make([]entrySummary, len(entries))
	for i, e := range entries {
		summaries[i] = entrySummary{
			ID: e.ID, Name: e.Name, Path: e.Path, Trigger: string(e.TriggerType),
			LastStatus: e.LastStatus, LastError: e.LastError,
		}
	}
	return jsonResult(summaries)
}

func (s *Server) handleRefreshCatalogEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	entry, err := catalog.Get(argString(req.GetArguments(), "entry"))
	if err != nil {
		return nil, err
	}
	run, err := catalog.Refresh(ctx, entry.ID)
	if run == nil {
		return nil, err
	}
	return jsonResult(run)
}

func (s *Server) handlePreviewCatalogEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	args := req.GetArguments()
	limit := min(max(argInt(args, "limit", 10), 1), 1000)
	header, rows, err := catalog.Preview(ctx, argString(args, "entry"), limit)
	if err != nil {
		return nil, err
	}
	records := make([]rowRecord, len(rows))
	for i, r := range rows {
		records[i] = toRecord(r)
	}
	return jsonResult(map[string]any{"header": header, "rows": records})
}

func (s *Server) handleDeleteCatalogEntry(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	id := argString(req.GetArguments(), "entry")
	if err := catalog.Delete(ctx, id); err != nil {
		return nil, err
	}
	return textResult(fmt.Sprintf("Deleted catalog entry %s", id)), nil
}
