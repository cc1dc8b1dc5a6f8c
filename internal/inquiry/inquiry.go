// Package inquiry validates batches of resources concurrently.
package inquiry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"dataresource/internal/parser"
	"dataresource/internal/resource"
	"dataresource/internal/schema"
)

// Task describes one resource to validate: either a data path with
// overrides, or a resource descriptor (path or inline object).
type Task struct {
	Name        string          `json:"name,omitempty" yaml:"name,omitempty"`
	Path        string          `json:"path,omitempty" yaml:"path,omitempty"`
	Scheme      string          `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Format      string          `json:"format,omitempty" yaml:"format,omitempty"`
	Encoding    string          `json:"encoding,omitempty" yaml:"encoding,omitempty"`
	Compression string          `json:"compression,omitempty" yaml:"compression,omitempty"`
	Innerpath   string          `json:"innerpath,omitempty" yaml:"innerpath,omitempty"`
	Dialect     *parser.Dialect `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	Schema      *schema.Schema  `json:"schema,omitempty" yaml:"schema,omitempty"`
	Resource    any             `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// Inquiry is a list of tasks, loadable from JSON or YAML.
type Inquiry struct {
	Tasks []Task `json:"tasks" yaml:"tasks"`

	basepath string // directory of the file it was loaded from
}

type Options struct {
	Workers  int    // concurrent validations, default 4
	Trusted  bool   // allow absolute and parent-escaping paths
	Basepath string // resolves relative task paths, default the inquiry file's directory
}

// TaskReport is the outcome of one task. Source and open failures are
// reported as a source-error entry rather than aborting the run.
type TaskReport struct {
	Task     string           `json:"task"`
	Duration time.Duration    `json:"duration"`
	Report   *resource.Report `json:"report"`
}

type Report struct {
	Valid bool         `json:"valid"`
	Tasks []TaskReport `json:"tasks"`
}

// Load reads an inquiry file. Relative task paths resolve against its
// directory unless Options.Basepath says otherwise.
func Load(path string) (*Inquiry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inquiry: %w", err)
	}
	var inq Inquiry
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &inq)
	default:
		err = json.Unmarshal(b, &inq)
	}
	if err != nil {
		return nil, fmt.Errorf("parse inquiry: %w", err)
	}
	inq.basepath = filepath.Dir(path)
	if abs, err := filepath.Abs(inq.basepath); err == nil {
		inq.basepath = abs
	}
	return &inq, nil
}

// Check reports structural problems without touching any source.
func (t *Task) Check(trusted bool) error {
	if t.Path == "" && t.Resource == nil {
		return fmt.Errorf(`one of the properties "path" or "resource" is required`)
	}
	if trusted {
		return nil
	}
	for _, p := range []string{t.Path, stringOrEmpty(t.Resource)} {
		if p != "" && !resource.IsSafePath(p) {
			return fmt.Errorf("path %q is not safe", p)
		}
	}
	return nil
}

func (t *Task) label(i int) string {
	switch {
	case t.Name != "":
		return t.Name
	case t.Path != "":
		return t.Path
	case stringOrEmpty(t.Resource) != "":
		return stringOrEmpty(t.Resource)
	default:
		return fmt.Sprintf("task-%d", i+1)
	}
}

// open builds the resource a task describes.
func (t *Task) open(opts Options) (*resource.Resource, error) {
	common := []resource.Option{resource.WithTrusted(opts.Trusted)}
	if opts.Basepath != "" {
		common = append(common, resource.WithBasepath(opts.Basepath))
	}
	if t.Resource != nil {
		src := t.Resource
		if p, ok := src.(string); ok && opts.Basepath != "" && !filepath.IsAbs(p) {
			src = filepath.Join(opts.Basepath, p)
		}
		return resource.New(src, common...)
	}

	o := append(common, resource.WithPath(t.Path))
	add := func(v string, fn func(string) resource.Option) {
		if v != "" {
			o = append(o, fn(v))
		}
	}
	add(t.Name, resource.WithName)
	add(t.Scheme, resource.WithScheme)
	add(t.Format, resource.WithFormat)
	add(t.Encoding, resource.WithEncoding)
	add(t.Compression, resource.WithCompression)
	add(t.Innerpath, resource.WithInnerpath)
	if t.Dialect != nil {
		o = append(o, resource.WithDialect(t.Dialect))
	}
	if t.Schema != nil {
		o = append(o, resource.WithSchema(t.Schema))
	}
	return resource.New(nil, o...)
}

// Validate runs one task.
func (t *Task) Validate(ctx context.Context, opts Options) *resource.Report {
	if err := t.Check(opts.Trusted); err != nil {
		return sourceError(t.Path, err)
	}
	r, err := t.open(opts)
	if err != nil {
		return sourceError(t.Path, err)
	}
	rep, err := r.Validate(ctx)
	if err != nil {
		failed := sourceError(r.Path(), err)
		failed.Name = r.Name()
		return failed
	}
	return rep
}

func sourceError(path string, err error) *resource.Report {
	return &resource.Report{
		Path: path,
		Errors: []resource.ReportError{{
			Type: resource.ErrorSource,
			Note: err.Error(),
		}},
	}
}

// Run validates every task with a bounded number of workers. Reports keep
// task order. Only context cancellation aborts the run.
func (inq *Inquiry) Run(ctx context.Context, opts Options) (*Report, error) {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	if opts.Basepath == "" {
		opts.Basepath = inq.basepath
	}
	reports := make([]TaskReport, len(inq.Tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range inq.Tasks {
		task := &inq.Tasks[i]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			start := time.Now()
			rep := task.Validate(gctx, opts)
			reports[i] = TaskReport{Task: task.label(i), Duration: time.Since(start), Report: rep}
			log.Debug().
				Str("task", reports[i].Task).
				Bool("valid", rep.Valid).
				Int("errors", len(rep.Errors)).
				Msg("inquiry: task done")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Report{Valid: true, Tasks: reports}
	for _, tr := range reports {
		if !tr.Report.Valid {
			out.Valid = false
		}
	}
	return out, nil
}

func stringOrEmpty(v any) string {
	s, _ := v.(string)
	return s
}
