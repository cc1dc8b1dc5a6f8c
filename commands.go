package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"dataresource/internal/inquiry"
	"dataresource/internal/pipeline"
	"dataresource/internal/resource"
)

// ── Shared flags ───────────────────────────────────────────

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "format", Usage: "force a format (csv, json, jsonl, inline, sqlite, ...)"},
		&cli.StringFlag{Name: "encoding", Usage: "force a text encoding"},
		&cli.StringFlag{Name: "compression", Usage: "force a compression (gz, zip, zst, ...)"},
		&cli.StringFlag{Name: "innerpath", Usage: "member to read from an archive"},
		&cli.StringFlag{Name: "basepath", Usage: "resolve relative paths against this directory"},
	}
}

// openSource builds a resource from the first argument: a data path or URL,
// or a resource descriptor file.
func openSource(c *cli.Context) (*resource.Resource, error) {
	source := c.Args().First()
	if source == "" {
		return nil, cli.Exit("a source path is required", 2)
	}
	opts := []resource.Option{resource.WithTrusted(application.Config().Trusted)}
	for flag, opt := range map[string]func(string) resource.Option{
		"format":      resource.WithFormat,
		"encoding":    resource.WithEncoding,
		"compression": resource.WithCompression,
		"innerpath":   resource.WithInnerpath,
		"basepath":    resource.WithBasepath,
	} {
		if v := c.String(flag); v != "" {
			opts = append(opts, opt(v))
		}
	}
	return resource.New(source, opts...)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printYAML(w io.Writer, v any) error {
	// round-trip through JSON so field names match the JSON form
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m any
	if err := yaml.Unmarshal(b, &m); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer enc.Close()
	return enc.Encode(m)
}

func printValue(c *cli.Context, v any) error {
	if c.Bool("yaml") {
		return printYAML(c.App.Writer, v)
	}
	return printJSON(c.App.Writer, v)
}

func yamlFlag() cli.Flag {
	return &cli.BoolFlag{Name: "yaml", Usage: "print YAML instead of JSON"}
}

// ── describe / infer ───────────────────────────────────────

func describeCommand() *cli.Command {
	return &cli.Command{
		Name:      "describe",
		Usage:     "infer and print a resource descriptor from a sample",
		ArgsUsage: "<source>",
		Flags:     append(sourceFlags(), yamlFlag(), &cli.BoolFlag{Name: "stats", Usage: "also compute stats over a full read"}),
		Action: func(c *cli.Context) error {
			r, err := openSource(c)
			if err != nil {
				return err
			}
			if err := r.Infer(c.Context, resource.InferOptions{Stats: c.Bool("stats")}); err != nil {
				return err
			}
			return printValue(c, r.ToDescriptor())
		},
	}
}

func inferCommand() *cli.Command {
	return &cli.Command{
		Name:      "infer",
		Usage:     "infer a descriptor with stats and save it next to the data or to --out",
		ArgsUsage: "<source>",
		Flags: append(sourceFlags(),
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "descriptor file to write (.json, .yaml or .yml)"},
		),
		Action: func(c *cli.Context) error {
			r, err := openSource(c)
			if err != nil {
				return err
			}
			if err := r.Infer(c.Context, resource.InferOptions{Stats: true}); err != nil {
				return err
			}
			out := c.String("out")
			if out == "" {
				return printJSON(c.App.Writer, r.ToDescriptor())
			}
			switch strings.ToLower(filepath.Ext(out)) {
			case ".yaml", ".yml":
				err = r.ToYAML(out)
			default:
				err = r.ToJSON(out)
			}
			if err != nil {
				return err
			}
			log.Info().Str("path", out).Msg("infer: descriptor written")
			return nil
		},
	}
}

// ── extract ────────────────────────────────────────────────

func extractCommand() *cli.Command {
	return &cli.Command{
		Name:      "extract",
		Usage:     "print typed rows as JSON lines, or raw cells with --cells",
		ArgsUsage: "<source>",
		Flags: append(sourceFlags(),
			&cli.IntFlag{Name: "limit", Usage: "stop after this many rows (0 reads all)"},
			&cli.BoolFlag{Name: "cells", Usage: "print raw cells including the header row"},
			&cli.BoolFlag{Name: "text", Usage: "print the decoded text"},
		),
		Action: func(c *cli.Context) error {
			r, err := openSource(c)
			if err != nil {
				return err
			}
			if err := r.Open(c.Context); err != nil {
				return err
			}
			defer r.Close()

			out := c.App.Writer
			limit := c.Int("limit")
			enc := json.NewEncoder(out)

			switch {
			case c.Bool("text"):
				ts, err := r.TextStream()
				if err != nil {
					return err
				}
				_, err = io.Copy(out, ts)
				return err

			case c.Bool("cells"):
				cs, err := r.CellStream()
				if err != nil {
					return err
				}
				for n := 0; (limit == 0 || n < limit) && cs.Next(); n++ {
					if err := enc.Encode(cs.Cells()); err != nil {
						return err
					}
				}
				return cs.Err()

			default:
				rs, err := r.RowStream()
				if err != nil {
					return err
				}
				invalid := 0
				for n := 0; (limit == 0 || n < limit) && rs.Next(); n++ {
					row := rs.Row()
					if !row.Valid() {
						invalid++
					}
					if err := enc.Encode(row.Map()); err != nil {
						return err
					}
				}
				if invalid > 0 {
					log.Warn().Int("rows", invalid).Msg("extract: rows with cell errors (run validate for details)")
				}
				return rs.Err()
			}
		},
	}
}

// ── validate ───────────────────────────────────────────────

func validateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "validate a resource, or every task of an inquiry file with --inquiry",
		ArgsUsage: "<source|inquiry>",
		Flags: append(sourceFlags(), yamlFlag(),
			&cli.BoolFlag{Name: "inquiry", Usage: "treat the argument as an inquiry file"},
			&cli.IntFlag{Name: "workers", Usage: "concurrent validations for an inquiry (default from config)"},
		),
		Action: func(c *cli.Context) error {
			var (
				report any
				valid  bool
			)
			if c.Bool("inquiry") {
				inq, err := inquiry.Load(c.Args().First())
				if err != nil {
					return err
				}
				workers := c.Int("workers")
				if workers == 0 {
					workers = application.Config().Inquiry.Workers
				}
				rep, err := inq.Run(c.Context, inquiry.Options{
					Workers:  workers,
					Trusted:  application.Config().Trusted,
					Basepath: c.String("basepath"),
				})
				if err != nil {
					return err
				}
				report, valid = rep, rep.Valid
			} else {
				r, err := openSource(c)
				if err != nil {
					return err
				}
				rep, err := r.Validate(c.Context)
				if err != nil {
					return err
				}
				report, valid = rep, rep.Valid
			}

			if err := printValue(c, report); err != nil {
				return err
			}
			if !valid {
				return cli.Exit("", 1)
			}
			return nil
		},
	}
}

// ── convert / transform ────────────────────────────────────

func writeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "append", Usage: "append to a database table instead of replacing it"},
		&cli.StringFlag{Name: "table", Usage: "database table name", Value: "data"},
	}
}

func convertCommand() *cli.Command {
	return &cli.Command{
		Name:      "convert",
		Usage:     "read a resource and write its typed rows to csv, tsv, json, jsonl or sqlite",
		ArgsUsage: "<source> <target>",
		Flags:     append(sourceFlags(), writeFlags()...),
		Action: func(c *cli.Context) error {
			target := c.Args().Get(1)
			if target == "" {
				return cli.Exit("a target path is required", 2)
			}
			r, err := openSource(c)
			if err != nil {
				return err
			}
			t, err := pipeline.ReadTable(c.Context, r)
			if err != nil {
				return err
			}
			return writeTable(c, t, target)
		},
	}
}

func transformCommand() *cli.Command {
	return &cli.Command{
		Name:      "transform",
		Usage:     "apply a list of steps to a resource and print or write the result",
		ArgsUsage: "<source>",
		Flags: append(sourceFlags(), append(writeFlags(),
			&cli.StringFlag{Name: "steps", Usage: "JSON or YAML file with a list of {type, config} steps", Required: true},
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "target file; prints the result descriptor when empty"},
		)...),
		Action: func(c *cli.Context) error {
			configs, err := loadSteps(c.String("steps"))
			if err != nil {
				return err
			}
			steps, err := pipeline.Build(configs)
			if err != nil {
				return err
			}
			r, err := openSource(c)
			if err != nil {
				return err
			}
			out, err := pipeline.Transform(c.Context, r, steps...)
			if err != nil {
				return err
			}
			target := c.String("out")
			if target == "" {
				return printJSON(c.App.Writer, out.ToDescriptor())
			}
			t, err := pipeline.ReadTable(c.Context, out)
			if err != nil {
				return err
			}
			return writeTable(c, t, target)
		},
	}
}

func loadSteps(path string) ([]pipeline.StepConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read steps: %w", err)
	}
	var configs []pipeline.StepConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &configs)
	default:
		err = json.Unmarshal(data, &configs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse steps %s: %w", path, err)
	}
	return configs, nil
}

func writeTable(c *cli.Context, t *pipeline.Table, target string) error {
	dest, err := pipeline.DestinationFor(target)
	if err != nil {
		return err
	}
	if w, ok := dest.(*pipeline.SQLiteWriter); ok {
		w.Table = c.String("table")
	}
	mode := pipeline.WriteReplace
	if c.Bool("append") {
		mode = pipeline.WriteAppend
	}
	n, err := dest.Write(c.Context, t, target, mode)
	if err != nil {
		return err
	}
	log.Info().Int("rows", n).Str("target", target).Msg("convert: rows written")
	return nil
}
