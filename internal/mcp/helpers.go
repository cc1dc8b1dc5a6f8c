package mcpserver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cast"

	"dataresource/internal/resource"
)

// argString returns a string argument, or "" when absent.
func argString(args map[string]any, key string) string {
	v, ok := args[key]
	if !ok || v == nil {
		return ""
	}
	return cast.ToString(v)
}

// argInt returns an integer argument, falling back to def when absent or
// not a number.
func argInt(args map[string]any, key string, def int) int {
	v, ok := args[key]
	if !ok || v == nil {
		return def
	}
	n, err := cast.ToIntE(v)
	if err != nil {
		return def
	}
	return n
}

func argBool(args map[string]any, key string) bool {
	return cast.ToBool(args[key])
}

func boolPtr(b bool) *bool { return &b }

// newResource builds a resource from the "source" argument: a path or URL,
// or a JSON descriptor object given inline or as a string.
func (s *Server) newResource(args map[string]any) (*resource.Resource, error) {
	var source any
	switch v := args["source"].(type) {
	case map[string]any:
		source = v
	case string:
		trimmed := strings.TrimSpace(v)
		if strings.HasPrefix(trimmed, "{") {
			var desc map[string]any
			if err := json.Unmarshal([]byte(trimmed), &desc); err != nil {
				return nil, fmt.Errorf("parse descriptor: %w", err)
			}
			source = desc
		} else {
			source = trimmed
		}
	default:
		return nil, fmt.Errorf("source is required")
	}
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}

	opts := []resource.Option{resource.WithTrusted(s.trusted)}
	if s.basepath != "" {
		opts = append(opts, resource.WithBasepath(s.basepath))
	}
	if f := argString(args, "format"); f != "" {
		opts = append(opts, resource.WithFormat(f))
	}
	if e := argString(args, "encoding"); e != "" {
		opts = append(opts, resource.WithEncoding(e))
	}
	return resource.New(source, opts...)
}

// rowRecord is the JSON shape of a typed row in tool results.
type rowRecord struct {
	Number int            `json:"rowNumber"`
	Values map[string]any `json:"values"`
	Errors []string       `json:"errors,omitempty"`
}

func toRecord(r *resource.Row) rowRecord {
	rec := rowRecord{Number: r.Number, Values: r.Map()}
	for _, e := range r.Errors {
		rec.Errors = append(rec.Errors, e.Error())
	}
	return rec
}
