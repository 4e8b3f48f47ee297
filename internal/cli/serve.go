package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/recorder"
	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
)

const shutdownTimeout = 5 * time.Second

func NewServeCmd(deps *Dependencies) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and WebSocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if port > 0 {
				deps.Config.Port = port
			}
			return Serve(cmd.Context(), deps.Config)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (overrides config)")
	return cmd
}

// Build wires the meeting core and its adapters from configuration.
func Build(cfg *config.Config) (*orch.Orchestrator, *signal.SignalWSController) {
	opts := cfg.MeetingOptions()
	opts.Recorder = recorder.NewMemory(cfg.Recorder.Latency)
	opts.Policy = app.SimplePolicy{}

	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Sessions: app.NewSessionManager(opts),
	}
	ctl := signal.NewSignalWSController(o, signal.NewRateLimiter(cfg.Signal.JoinLimit, cfg.Signal.JoinInterval), cfg.WebRTC())
	if cfg.Signal.SendBuffer > 0 {
		ctl.SendBuffer = cfg.Signal.SendBuffer
	}
	return o, ctl
}

// Serve runs until ctx is cancelled, then ends every live session and
// drains the HTTP server.
func Serve(ctx context.Context, cfg *config.Config) error {
	zerolog.SetGlobalLevel(cfg.Level())

	o, ctl := Build(cfg)
	r := router.SetupRouter(ctx, cfg, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		o.Sessions.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}
		log.Info().Msg("Server exited gracefully")
		return nil
	})
	return g.Wait()
}
