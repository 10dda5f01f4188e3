// Command reefd runs the reef daemon: it opens the store, rebuilds the
// vector index, starts the consensus sweep loop, and serves the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/reefipedia/reef/internal/api"
	"github.com/reefipedia/reef/internal/config"
	"github.com/reefipedia/reef/internal/consensus"
	"github.com/reefipedia/reef/internal/embed"
	"github.com/reefipedia/reef/internal/engine"
	"github.com/reefipedia/reef/internal/index"
	"github.com/reefipedia/reef/internal/metrics"
	"github.com/reefipedia/reef/internal/polyp"
	"github.com/reefipedia/reef/internal/reference"
	"github.com/reefipedia/reef/internal/reputation"
	"github.com/reefipedia/reef/internal/scoring"
	"github.com/reefipedia/reef/internal/search"
	"github.com/reefipedia/reef/internal/store"
	"github.com/reefipedia/reef/internal/verify"
)

// #region main

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "reefd",
		Short: "Content-addressed knowledge store with proof-gated ingestion",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "reef.yaml", "path to config file")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "reefd: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region run

func run(ctx context.Context, cfg config.Config) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	// One daemon per data dir.
	lock := flock.New(filepath.Join(cfg.DataDir, "reefd.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("data dir %s is locked by another reefd", cfg.DataDir)
	}
	defer lock.Unlock()

	s, err := store.New(filepath.Join(cfg.DataDir, "reef.db"))
	if err != nil {
		return err
	}
	defer s.Close()

	model := polyp.ModelID{
		Provider:    cfg.Embedding.Provider,
		Name:        cfg.Embedding.Model,
		WeightsHash: cfg.Embedding.WeightsHash,
		Dimensions:  cfg.Embedding.Dimensions,
	}
	embedder, err := buildEmbedder(cfg.Embedding)
	if err != nil {
		return err
	}
	verifier := verify.NewBindingVerifier(verify.NewPlaceholderVerifier())

	ix := index.New()
	scorer := scoring.NewScorer(verifier, ix, reputation.NewStore(s.DB()), reference.NewStore(s.DB()), cfg.Scoring)
	source := consensus.NewClockSource(time.Now(), time.Duration(cfg.Epoch.BlockInterval))
	epochs := consensus.NewEpochManager(source, cfg.Epoch.BlocksPerEpoch)
	m := metrics.New(prometheus.DefaultRegisterer)
	sweeps := consensus.NewEngine(s, scorer, consensus.NewGate(cfg.Gate), epochs, ix, logger, cfg.Sweep)
	searcher := search.NewSearcher(embedder, ix, s, cfg.Search)
	eng := engine.New(s, ix, embedder, verifier, searcher, sweeps, m, logger)

	if _, err := eng.RebuildIndex(ctx); err != nil {
		return err
	}

	go sweepLoop(ctx, eng, time.Duration(cfg.Epoch.SweepInterval), logger)

	router := api.NewServer(eng, s, epochs, model, logger).Router()
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return serve(ctx, cfg.Listen, router, logger)
}

// sweepLoop runs consensus sweeps on a fixed cadence until ctx is done.
func sweepLoop(ctx context.Context, eng *engine.Engine, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := eng.Sweep(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("sweep failed", "err", err)
			}
		}
	}
}

func buildEmbedder(cfg config.EmbeddingConfig) (embed.Embedder, error) {
	switch cfg.Provider {
	case "local":
		return embed.NewLocalEmbedder(), nil
	case "openai":
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("embedding provider openai needs %s", cfg.APIKeyEnv)
		}
		return embed.NewOpenAIEmbedder(key), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}

func serve(ctx context.Context, listen string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{Addr: listen, Handler: handler}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// #endregion run
