package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"dataresource/internal/domain"
	"dataresource/internal/service"
)

// ── catalog ────────────────────────────────────────────────

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "register resources and keep their descriptors up to date",
		Subcommands: []*cli.Command{
			{
				Name:      "register",
				Usage:     "add a resource and run its first inference",
				ArgsUsage: "<path>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "name", Usage: "entry name (defaults to the derived resource name)"},
					&cli.StringFlag{Name: "schedule", Usage: "cron expression for periodic re-inference"},
					&cli.StringFlag{Name: "watch", Usage: "re-infer when this file changes"},
				},
				Action: catalogRegister,
			},
			{
				Name:   "list",
				Usage:  "list entries",
				Action: catalogList,
			},
			{
				Name:      "show",
				Usage:     "print the stored descriptor of an entry",
				ArgsUsage: "<entry>",
				Action: func(c *cli.Context) error {
					catalog, err := application.Catalog()
					if err != nil {
						return err
					}
					r, err := catalog.Resource(c.Args().First())
					if err != nil {
						return err
					}
					return printJSON(c.App.Writer, r.ToDescriptor())
				},
			},
			{
				Name:      "refresh",
				Usage:     "re-infer an entry now",
				ArgsUsage: "<entry>",
				Action: func(c *cli.Context) error {
					catalog, err := application.Catalog()
					if err != nil {
						return err
					}
					e, err := catalog.Get(c.Args().First())
					if err != nil {
						return err
					}
					run, err := catalog.Refresh(c.Context, e.ID)
					if run != nil {
						_ = printJSON(c.App.Writer, run)
					}
					return err
				},
			},
			{
				Name:      "preview",
				Usage:     "print the first typed rows of an entry",
				ArgsUsage: "<entry>",
				Flags:     []cli.Flag{&cli.IntFlag{Name: "limit", Value: 10}},
				Action: func(c *cli.Context) error {
					catalog, err := application.Catalog()
					if err != nil {
						return err
					}
					_, rows, err := catalog.Preview(c.Context, c.Args().First(), c.Int("limit"))
					if err != nil {
						return err
					}
					for _, row := range rows {
						if err := printJSON(c.App.Writer, row.Map()); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:      "runs",
				Usage:     "list the latest inference runs of an entry",
				ArgsUsage: "<entry>",
				Action: func(c *cli.Context) error {
					catalog, err := application.Catalog()
					if err != nil {
						return err
					}
					runs, err := catalog.ListRuns(c.Args().First())
					if err != nil {
						return err
					}
					w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
					fmt.Fprintln(w, "STARTED\tSTATUS\tROWS\tBYTES\tDURATION\tERROR")
					for _, r := range runs {
						fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\n",
							r.StartedAt.Local().Format(time.DateTime), r.Status, r.Rows, r.Bytes,
							r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), r.Error)
					}
					return w.Flush()
				},
			},
			{
				Name:      "delete",
				Usage:     "remove an entry and its run history",
				ArgsUsage: "<entry>",
				Action: func(c *cli.Context) error {
					catalog, err := application.Catalog()
					if err != nil {
						return err
					}
					return catalog.Delete(c.Context, c.Args().First())
				},
			},
		},
	}
}

func catalogRegister(c *cli.Context) error {
	catalog, err := application.Catalog()
	if err != nil {
		return err
	}
	input := service.RegisterInput{
		Name:    c.String("name"),
		Path:    c.Args().First(),
		Enabled: true,
	}
	switch {
	case c.String("schedule") != "" && c.String("watch") != "":
		return cli.Exit("--schedule and --watch are mutually exclusive", 2)
	case c.String("schedule") != "":
		input.TriggerType = domain.TriggerSchedule
		input.TriggerConfig = c.String("schedule")
	case c.String("watch") != "":
		input.TriggerType = domain.TriggerFileWatch
		input.TriggerConfig = c.String("watch")
	}

	entry, run, err := catalog.Register(c.Context, input)
	if entry == nil {
		return err
	}
	if perr := printJSON(c.App.Writer, map[string]any{"entry": entry, "run": run}); perr != nil {
		return perr
	}
	return err
}

func catalogList(c *cli.Context) error {
	catalog, err := application.Catalog()
	if err != nil {
		return err
	}
	entries, err := catalog.List()
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tPATH\tTRIGGER\tLAST RUN\tSTATUS")
	for _, e := range entries {
		lastRun := "-"
		if !e.LastRunAt.IsZero() {
			lastRun = e.LastRunAt.Local().Format(time.DateTime)
		}
		trigger := string(e.TriggerType)
		if e.TriggerConfig != "" {
			trigger += " " + e.TriggerConfig
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Name, e.Path, trigger, lastRun, e.LastStatus)
	}
	return w.Flush()
}

// ── watch / mcp ────────────────────────────────────────────

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "run scheduled and file-triggered catalog refreshes until interrupted",
		Action: func(c *cli.Context) error {
			return application.Watch(c.Context)
		},
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "serve the MCP tools on stdin/stdout",
		Action: func(c *cli.Context) error {
			return application.ServeMCP(c.Context, version)
		},
	}
}
