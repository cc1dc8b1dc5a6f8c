package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"dataresource/internal/compression"
	"dataresource/internal/loader"
	"dataresource/internal/parser"
	"dataresource/internal/resource"
)

const sourceDescription = `Path or URL of the data, or a resource descriptor as a JSON object, e.g. {"path":"data/people.csv","schema":{"fields":[...]}}`

func (s *Server) registerResourceTools() {
	s.mcp.AddTool(mcp.NewTool("describe_resource",
		mcp.WithDescription("Infer and return the descriptor of a data resource: format, encoding, dialect and a field schema. Reads a sample only."),
		mcp.WithString("source", mcp.Description(sourceDescription), mcp.Required()),
		mcp.WithString("format", mcp.Description("Force a format instead of detecting it (use list_formats)")),
		mcp.WithString("encoding", mcp.Description("Force a text encoding, e.g. utf-8 or windows-1252")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleDescribeResource)

	s.mcp.AddTool(mcp.NewTool("infer_resource",
		mcp.WithDescription("Like describe_resource, and with stats=true also read everything to compute row and byte counts and md5/sha256 hashes."),
		mcp.WithString("source", mcp.Description(sourceDescription), mcp.Required()),
		mcp.WithBoolean("stats", mcp.Description("Compute stats over a full read")),
		mcp.WithString("format", mcp.Description("Force a format")),
		mcp.WithString("encoding", mcp.Description("Force a text encoding")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleInferResource)

	s.mcp.AddTool(mcp.NewTool("read_rows",
		mcp.WithDescription("Read typed rows from a tabular resource. Cells that fail their field type are reported per row and read as null."),
		mcp.WithString("source", mcp.Description(sourceDescription), mcp.Required()),
		mcp.WithNumber("offset", mcp.Description("Rows to skip (default 0)")),
		mcp.WithNumber("limit", mcp.Description("Maximum rows to return (default 20, max 1000)")),
		mcp.WithString("format", mcp.Description("Force a format")),
		mcp.WithString("encoding", mcp.Description("Force a text encoding")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleReadRows)

	s.mcp.AddTool(mcp.NewTool("validate_resource",
		mcp.WithDescription("Validate a tabular resource against its schema (given or inferred) and return a report of label, row and cell errors."),
		mcp.WithString("source", mcp.Description(sourceDescription), mcp.Required()),
		mcp.WithString("format", mcp.Description("Force a format")),
		mcp.WithString("encoding", mcp.Description("Force a text encoding")),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleValidateResource)

	s.mcp.AddTool(mcp.NewTool("list_formats",
		mcp.WithDescription("List supported formats, schemes and compressions"),
		mcp.WithReadOnlyHintAnnotation(true),
	), s.handleListFormats)
}

func (s *Server) handleDescribeResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.newResource(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if err := r.Infer(ctx, resource.InferOptions{}); err != nil {
		return nil, err
	}
	return jsonResult(r.ToDescriptor())
}

func (s *Server) handleInferResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	r, err := s.newResource(args)
	if err != nil {
		return nil, err
	}
	if err := r.Infer(ctx, resource.InferOptions{Stats: argBool(args, "stats")}); err != nil {
		return nil, err
	}
	return jsonResult(r.ToDescriptor())
}

func (s *Server) handleReadRows(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	offset := max(argInt(args, "offset", 0), 0)
	limit := min(max(argInt(args, "limit", 20), 1), 1000)

	r, err := s.newResource(args)
	if err != nil {
		return nil, err
	}
	if err := r.Open(ctx); err != nil {
		return nil, err
	}
	defer r.Close()

	rs, err := r.RowStream()
	if err != nil {
		return nil, err
	}
	rows := []rowRecord{}
	skipped := 0
	for len(rows) < limit && rs.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		rows = append(rows, toRecord(rs.Row()))
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return jsonResult(map[string]any{
		"header": r.Header(),
		"offset": offset,
		"rows":   rows,
	})
}

func (s *Server) handleValidateResource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r, err := s.newResource(req.GetArguments())
	if err != nil {
		return nil, err
	}
	if !r.Tabular() && r.Format() != "" {
		return nil, fmt.Errorf("format %q is not tabular", r.Format())
	}
	report, err := r.Validate(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResult(report)
}

func (s *Server) handleListFormats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(map[string]any{
		"formats":      parser.List(),
		"schemes":      loader.List(),
		"compressions": compression.Supported(),
	})
}
