package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"tashkeela.com/diac/api"
	"tashkeela.com/diac/decoder"
	"tashkeela.com/diac/logger"
	"tashkeela.com/diac/ngram"
	"tashkeela.com/diac/pipeline"
	"tashkeela.com/diac/types"
	"tashkeela.com/diac/worker"
)

const (
	modelLoadMaxRetries = 5
	retryDelay          = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

// sleepCtx waits d or until ctx is done, reporting whether the wait finished.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// loadModelWithRetry keeps trying remote stores that may not be up yet. A
// model that is simply absent is not retried.
func loadModelWithRetry(ctx context.Context, profile types.RunConfig) (*ngram.Model, error) {
	loadLogger := logger.NewLogger("Main")
	var lastErr error
	for retry := 0; retry < modelLoadMaxRetries; retry++ {
		m, closeStore, err := openModel(ctx, profile, true)
		if err == nil {
			_ = closeStore()
			loadLogger.Info().Int("order", m.Order()).Int("entries", m.Len()).Msg("Model loaded")
			return m, nil
		}
		if errors.Is(err, types.ErrMissingResource) {
			return nil, err
		}
		lastErr = err
		loadLogger.Err(err).Msgf("Failed to load model. Retrying in %s", retryDelay)
		if !sleepCtx(ctx, retryDelay) {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("could not load model after %d retries: %w", modelLoadMaxRetries, lastErr)
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the decoder over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, config, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, err := loadModelWithRetry(ctx, profile)
			if err != nil {
				return err
			}
			return serve(ctx, fmt.Sprintf(":%s", config.RestAPIPort), &api.Request{
				Decode: pipeline.NewTextDecoder(decoder.New(m)),
				Order:  m.Order(),
			})
		},
	}
}

func serve(ctx context.Context, addr string, req *api.Request) error {
	apiLogger := logger.NewLogger("Main")
	server := &http.Server{
		Addr:              addr,
		Handler:           api.NewMux(req),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		apiLogger.Info().Msgf("REST API on %s", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("REST API stopped with error: %w", err)
	case <-ctx.Done():
		apiLogger.Info().Msg("Shutting down REST API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
}

func newWorkerCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Decode documents queued on RabbitMQ",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, _, err := resolveProfile(opts)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, err := loadModelWithRetry(ctx, profile)
			if err != nil {
				return err
			}
			decode := pipeline.NewTextDecoder(decoder.New(m))

			workerLogger := logger.NewLogger("Main")
			workerLogger.Info().Msg("Start diacritizer worker")
			for ctx.Err() == nil {
				rmqWorker, err := worker.New(decode)
				if err != nil {
					return fmt.Errorf("could not initialize RMQ worker: %w", err)
				}
				if err = rmqWorker.StartWorker(ctx); err != nil {
					workerLogger.Err(err).Msgf("Worker returned with error. Launching new in %s", retryDelay)
					sleepCtx(ctx, retryDelay)
				}
			}
			return nil
		},
	}
}
