package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("profile_dataset",
		mcp.WithPromptDescription("Profile a data file: structure, types, size and quality"),
		mcp.WithArgument("source",
			mcp.ArgumentDescription("Path or URL of the data"),
			mcp.RequiredArgument(),
		),
	), s.handleProfilePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("fix_validation_errors",
		mcp.WithPromptDescription("Explain validation errors of a resource and propose a corrected schema"),
		mcp.WithArgument("source",
			mcp.ArgumentDescription("Path or URL of the data, or a descriptor"),
			mcp.RequiredArgument(),
		),
	), s.handleFixValidationPrompt)
}

func (s *Server) handleProfilePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	source := req.Params.Arguments["source"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Profile %s", source),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Profile the dataset at "%s". Follow these steps:

1. Use infer_resource with stats=true to get the format, encoding, schema, row count and hashes
2. Use read_rows with limit 10 to look at sample values
3. Use validate_resource to find type and structure problems

Summarize: what each field holds, its inferred type, whether values look clean, and how large the data is.`, source),
				},
			},
		},
	}, nil
}

func (s *Server) handleFixValidationPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	source := req.Params.Arguments["source"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Fix validation errors of %s", source),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Validate "%s" with validate_resource. For each error type in the report:

1. Explain what it means and quote an example row (use read_rows with an offset near the failing row)
2. Decide whether the data or the schema is wrong

Then write a corrected resource descriptor as JSON with an adjusted schema (types, formats, missingValues) and re-run validate_resource passing that descriptor as the source to confirm it is valid.`, source),
				},
			},
		},
	}, nil
}
