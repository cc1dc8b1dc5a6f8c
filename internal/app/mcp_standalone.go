package app

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	mcpserver "dataresource/internal/mcp"
)

// ServeMCP runs the MCP server on stdin/stdout until the client disconnects.
// The catalog tools are available when the catalog database opens.
func (a *App) ServeMCP(ctx context.Context, version string) error {
	catalog, err := a.Catalog()
	if err != nil {
		log.Warn().Err(err).Msg("mcp: catalog tools disabled")
	}
	if catalog != nil {
		catalog.RestartWatchers(ctx)
	}

	wd, _ := os.Getwd()
	srv := mcpserver.New(ctx, mcpserver.Deps{
		Catalog:  catalog,
		Basepath: wd,
		Trusted:  a.cfg.Trusted,
		Version:  version,
	})
	return srv.ServeStdio()
}

// Watch re-infers triggered catalog entries until ctx is cancelled.
func (a *App) Watch(ctx context.Context) error {
	catalog, err := a.Catalog()
	if err != nil {
		return err
	}
	catalog.RestartWatchers(ctx)
	log.Info().Msg("watch: running, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}
