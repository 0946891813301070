package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/khanhnv2901/secheckup/internal/api"
	infraapi "github.com/khanhnv2901/secheckup/internal/infrastructure/api"
	consts "github.com/khanhnv2901/secheckup/internal/shared/constants"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the checkup page and REST API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		addr, _ := cmd.Flags().GetString("addr")
		authToken, _ := cmd.Flags().GetString("auth-token")
		shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")
		corsOrigins, _ := cmd.Flags().GetStringSlice("cors-origins")
		rateLimit, _ := cmd.Flags().GetInt("rate-limit")
		rateBurst, _ := cmd.Flags().GetInt("rate-burst")
		trustProxy, _ := cmd.Flags().GetBool("trust-proxy")
		maxCheckups, _ := cmd.Flags().GetInt("max-checkups")
		allowPrivate, _ := cmd.Flags().GetBool("allow-private-targets")
		allowBrowser, _ := cmd.Flags().GetBool("allow-browser")

		// The service always logs at info level.
		logger, err := zap.NewProduction()
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() {
			if err := logger.Sync(); err != nil {
				fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
			}
		}()
		appCtx.Logger = logger

		services, err := appCtx.newServicesWith(serviceOptions{
			PublicTargetsOnly: !allowPrivate,
			NoBrowser:         !allowBrowser,
		})
		if err != nil {
			return err
		}
		if allowPrivate {
			logger.Warn("remote callers may check loopback and private network targets")
		}
		manager := infraapi.NewCheckupManager(services.Orchestrator, logger)
		manager.SetMaxCheckups(maxCheckups)

		server := api.NewServer(api.Config{
			Checkups:    manager,
			Health:      &healthAPIService{resultsDir: appCtx.ResultsDir},
			AuthToken:   authToken,
			Logger:      logger,
			CORSOrigins: corsOrigins,
			RateLimit:   rateLimit,
			RateBurst:   rateBurst,
			TrustProxy:  trustProxy,
		})

		httpServer := &http.Server{
			Addr:              addr,
			Handler:           server,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Event streams stay open; handlers bound their own writes.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("%s Checkup page on http://%s/ (results dir: %s)\n", colorInfo("→"), addr, appCtx.ResultsDir)
			fmt.Printf("%s Press Ctrl+C to gracefully shutdown\n", colorInfo("→"))
			serverErrors <- httpServer.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err := <-serverErrors:
			if !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}
		case sig := <-shutdown:
			fmt.Printf("\n%s Received signal %v, initiating graceful shutdown...\n", colorInfo("→"), sig)

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()

			// Running checkups are cancelled and saved as failed before the
			// listener goes away, so watchers see their final event.
			shutdownErr := manager.Shutdown(ctx)
			if err := httpServer.Shutdown(ctx); err != nil {
				shutdownErr = multierr.Append(shutdownErr, err)
				if closeErr := httpServer.Close(); closeErr != nil {
					shutdownErr = multierr.Append(shutdownErr, closeErr)
				}
			}
			if shutdownErr != nil {
				return fmt.Errorf("failed to gracefully shutdown server: %w", shutdownErr)
			}

			fmt.Printf("%s Server shutdown complete\n", colorInfo("✓"))
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", defaultServeAddr, "Address for the API server")
	serveCmd.Flags().String("auth-token", "", "Optional shared secret for API requests")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	serveCmd.Flags().StringSlice("cors-origins", []string{}, "Allowed CORS origins (empty = allow all)")
	serveCmd.Flags().Int("rate-limit", 10, "Rate limit per IP (requests/second, 0 = disabled)")
	serveCmd.Flags().Int("rate-burst", 20, "Rate limit burst size")
	serveCmd.Flags().Bool("trust-proxy", false, "Take the client address from X-Forwarded-For")
	serveCmd.Flags().Int("max-checkups", 1000, "Checkups kept in memory for live viewing")
	serveCmd.Flags().Bool("allow-private-targets", false, "Allow targets on loopback, private and link-local addresses")
	serveCmd.Flags().Bool("allow-browser", false, "Allow API callers to request headless browser collection")
}

// healthAPIService reports readiness once the results directory is writable.
type healthAPIService struct {
	resultsDir string
}

func (s *healthAPIService) Check(ctx context.Context) error {
	return nil
}

func (s *healthAPIService) Ready(ctx context.Context) error {
	probe := filepath.Join(s.resultsDir, ".ready")
	if err := os.WriteFile(probe, []byte("ok"), consts.DefaultFilePerm); err != nil {
		return fmt.Errorf("results directory not writable: %w", err)
	}
	return os.Remove(probe)
}
