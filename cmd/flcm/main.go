// Command flcm runs the content pipeline over a local document tree.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/custodia-labs/flcm/internal/adapters/driving/cli"
	"github.com/custodia-labs/flcm/internal/app"
	"github.com/custodia-labs/flcm/internal/core/ports/driving"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.SetOpener(openServices)
	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func openServices(root string) (*cli.Services, error) {
	a, err := app.Open(root)
	if err != nil {
		return nil, err
	}
	return &cli.Services{
		Document: a.Documents,
		Pipeline: a.Pipeline,
		Settings: a.Settings,
		IndexSync: func() (driving.IndexSyncService, error) {
			return a.NewIndexSync()
		},
		DryRun: func() driving.PipelineService {
			return a.NewDryRunPipeline()
		},
		Root:  a.Root,
		Close: a.Close,
	}, nil
}
