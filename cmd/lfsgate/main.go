// Command lfsgate runs the stateless Git LFS batch gateway. It translates
// batch requests into presigned S3 URLs; object bytes never pass through it.
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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/lfsgate/lfsgate/internal/config"
	"github.com/lfsgate/lfsgate/internal/gateway"
	"github.com/lfsgate/lfsgate/internal/metrics"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "lfsgate:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lfsgate",
		Short:         "Stateless Git LFS batch gateway backed by S3 presigned URLs",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.Flags().String("listen", config.DefaultListen, "public listener address")
	cmd.Flags().String("metrics-listen", "", "admin listener address for Prometheus metrics (empty disables)")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(level)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Requests without a region override fall back to the ambient AWS
	// config chain (env, shared config, IMDS).
	if cfg.Region == "" {
		if awsCfg, err := awsconfig.LoadDefaultConfig(ctx); err == nil {
			cfg.Region = awsCfg.Region
		}
	}

	met := metrics.New()
	handler := gateway.New(cfg, log, met, nil)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		log.WithField("addr", cfg.Listen).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	var adminSrv *http.Server
	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", met.Handler())
		adminSrv = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.WithField("addr", cfg.MetricsListen).Info("metrics listening")
			errCh <- adminSrv.ListenAndServe()
		}()
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if adminSrv != nil {
		_ = adminSrv.Shutdown(shutdownCtx)
	}
	return srv.Shutdown(shutdownCtx)
}
