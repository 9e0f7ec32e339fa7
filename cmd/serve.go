package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xvierd/stepflow/internal/adapters/httpapi"
	"github.com/xvierd/stepflow/internal/services"
)

var serveAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serve the JSON API and the live state stream on the configured address.
Requests need a bearer token from 'stepflow token'. A session still running
when the server stops is recorded as interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		issuer, err := newIssuer()
		if err != nil {
			return err
		}
		if err := breakService.RestoreCycle(ctx); err != nil {
			logger.Warn().Err(err).Msg("could not restore break cycle")
		}
		if _, err := cleanupService.SweepOrphans(ctx, services.DefaultOrphanGrace, ""); err != nil {
			logger.Warn().Err(err).Msg("orphan sweep failed")
		}

		addr := serveAddr
		if addr == "" {
			addr = appConfig.Server.Addr
		}
		router := httpapi.NewRouter(httpapi.Deps{
			Handler: httpapi.NewHandler(stateService, settings),
			Issuer:  issuer,
			Events:  focusController,
			Logger:  logger,
		})
		server := httpapi.NewServer(addr, router, logger)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			return server.Run(gctx)
		})
		g.Go(func() error {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if _, err := cleanupService.SweepOrphans(gctx, services.DefaultOrphanGrace, currentSessionID()); err != nil {
						logger.Warn().Err(err).Msg("orphan sweep failed")
					}
				}
			}
		})

		fmt.Fprintf(cmd.OutOrStdout(), "Listening on http://%s\n", addr)
		err = g.Wait()
		if decision := unloadGuard.OnUnload(); decision.Beacon {
			logger.Info().Int("elapsed", decision.Elapsed).Msg("running session recorded as interrupted")
		}
		return err
	},
}

var tokenSubject string

// tokenCmd represents the token command
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		issuer, err := newIssuer()
		if err != nil {
			return err
		}
		token, err := issuer.Issue(tokenSubject)
		if err != nil {
			return fmt.Errorf("failed to issue token: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, map[string]interface{}{
				"token":      token,
				"expires_in": int(time.Duration(appConfig.Server.TokenTTL) / time.Second),
			})
		}
		fmt.Fprintln(out, token)
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from config server.addr)")
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "stepflow", "Token subject")
}

func newIssuer() (*httpapi.TokenIssuer, error) {
	issuer, err := httpapi.NewTokenIssuer(appConfig.Server.JWTSecret, time.Duration(appConfig.Server.TokenTTL))
	if err != nil {
		return nil, fmt.Errorf("%w (set it with: stepflow config set server.jwt_secret <secret>)", err)
	}
	return issuer, nil
}

func currentSessionID() string {
	if state := focusController.State(); state.ActiveSession != nil {
		return state.ActiveSession.ID
	}
	return ""
}
