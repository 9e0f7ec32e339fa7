package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/xvierd/stepflow/internal/adapters/mcp"
)

// mcpCmd represents the mcp command
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server on stdio",
	Long: `Start the Model Context Protocol server so AI assistants can read the
focus state, manage tasks and steps, and drive sessions.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := breakService.RestoreCycle(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not restore break cycle")
		}

		err := mcp.NewServer(stateService, Version).Start(ctx)
		unloadGuard.OnUnload()
		if ctx.Err() != nil {
			return nil
		}
		return err
	},
}
