package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	entriesURI    = "catalog://entries"
	entryPrefix   = "catalog://entry/"
	entryTemplate = entryPrefix + "{name}"
)

func (s *Server) registerResources() {
	// ── catalog://entries ──────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		entriesURI,
		"Catalog entries",
		mcp.WithMIMEType("application/json"),
	), s.handleEntriesResource)

	// ── catalog://entry/{name} ─────────────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			entryTemplate,
			"Descriptor of a catalog entry",
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleEntryResource,
	)
}

func (s *Server) handleEntriesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	entries, err := catalog.List()
	if err != nil {
		return nil, err
	}

	type entryLink struct {
		Name string `json:"name"`
		URI  string `json:"uri"`
	}
	links := make([]entryLink, len(entries))
	for i, e := range entries {
		links[i] = entryLink{Name: e.Name, URI: entryPrefix + e.Name}
	}

	data, _ := json.MarshalIndent(links, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      entriesURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleEntryResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	catalog, err := s.requireCatalog()
	if err != nil {
		return nil, err
	}
	uri := req.Params.URI
	name := entryNameFromURI(uri)
	if name == "" {
		return nil, fmt.Errorf("could not extract entry name from URI: %s", uri)
	}
	entry, err := catalog.Get(name)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     entry.Descriptor,
		},
	}, nil
}

// entryNameFromURI extracts the name from "catalog://entry/{name}".
func entryNameFromURI(uri string) string {
	name, ok := strings.CutPrefix(uri, entryPrefix)
	if !ok || strings.Contains(name, "/") {
		return ""
	}
	return name
}
