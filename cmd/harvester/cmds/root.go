package cmds

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/contestguard/harvester/cmd/harvester/cmds")

var rootCmd = &cobra.Command{
	Use:   "harvester",
	Short: "Harvest contest ranking data and report near-duplicate submissions",
}

func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
