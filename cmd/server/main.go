package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DoyleJ11/judgement-scorekeeper/internal/config"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/httpapi"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/hub"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/livesync"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/logging"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/remote"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/store"
	"github.com/DoyleJ11/judgement-scorekeeper/internal/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Judgement scorekeeper server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}
		log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
		if err != nil {
			return err
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return run(ctx, cfg, log)
	},
}

func init() {
	rootCmd.Flags().StringVar(&configFile, "config", "", "optional config file (yaml, json or toml)")
}

func run(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	kv, closeKV, err := openKV(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeKV()

	rem, closeRemote, err := openRemote(ctx, cfg.Remote, log)
	if err != nil {
		return err
	}
	defer closeRemote()

	h := hub.NewHub(ctx, table.Config{
		KV:         kv,
		KeyVersion: cfg.Store.KeyVersion,
		Remote:     rem,
		Debounce:   cfg.Sync.Debounce,
		TokenTTL:   cfg.Sync.TokenTTL,
		Log:        log,
	})

	// Build the router *with* the hub injected
	handler, err := httpapi.SetupRoutes(h, log, httpapi.Options{Statsviz: cfg.Debug.Statsviz})
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openKV(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (store.KV, func(), error) {
	if cfg.RedisAddr == "" {
		log.Info("snapshot slots in memory")
		return store.NewMemoryKV(), func() {}, nil
	}
	cli, err := store.DialRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, nil, err
	}
	log.Info("snapshot slots in redis", zap.String("addr", cfg.RedisAddr))
	return store.NewRedisKV(cli, cfg.TTL), func() { _ = cli.Close() }, nil
}

// openRemote returns a nil Remote when cloud sync is not configured.
func openRemote(ctx context.Context, cfg config.RemoteConfig, log *zap.Logger) (livesync.Remote, func(), error) {
	switch cfg.Driver {
	case "":
		log.Info("cloud sync disabled")
		return nil, func() {}, nil
	case "memory":
		log.Info("cloud sync in process memory")
		return remote.NewMemory(), func() {}, nil
	}

	records, err := remote.OpenRecords(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	var feed remote.Feed
	switch cfg.Feed {
	case "nats":
		feed, err = remote.DialNATSFeed(cfg.NatsURL)
	default:
		feed, err = remote.DialPGFeed(ctx, cfg.DSN)
	}
	if err != nil {
		_ = records.Close()
		return nil, nil, err
	}
	log.Info("cloud sync in postgres", zap.String("feed", cfg.Feed))
	c := remote.NewClient(records, feed, log)
	return c, func() {
		if err := c.Close(); err != nil {
			log.Warn("close remote", zap.Error(err))
		}
	}, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
