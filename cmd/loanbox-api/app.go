package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/pkg/errors"
	httpSwagger "github.com/swaggo/http-swagger"
	"golang.org/x/sync/errgroup"

	recordsapi "github.com/BearBump/LoanBox/internal/api/records_api"
	"github.com/BearBump/LoanBox/internal/broker/kafka"
	"github.com/BearBump/LoanBox/internal/broker/messages"
	"github.com/BearBump/LoanBox/internal/models"
	"github.com/BearBump/LoanBox/internal/services/records"
)

type apiOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler kafka.Handler) error
}

func runLoanBoxAPI(ctx context.Context, opts apiOpts, svc *records.Service, consumer kafkaConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runHTTPServer(gctx, lis, recordsapi.New(svc), opts.swaggerPath)
	})
	g.Go(func() error {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		return consumeRefreshes(gctx, consumer, svc)
	})
	return g.Wait()
}

func runHTTPServer(ctx context.Context, lis net.Listener, api *recordsapi.RecordsAPI, swaggerPath string) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger.json"),
	))
	api.Routes(r)

	srv := &http.Server{Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// consumeRefreshes applies worker updates until ctx is done. A failed
// handler stops the consumer without committing; it is restarted after a
// pause.
func consumeRefreshes(ctx context.Context, consumer kafkaConsumer, svc *records.Service) error {
	handler := func(ctx context.Context, msg kafka.Message) error {
		var m messages.RecordRefreshed
		if err := json.Unmarshal(msg.Value, &m); err != nil {
			slog.Warn("skip undecodable message", "message_id", msg.ID, "error", err.Error())
			return nil
		}
		err := svc.ApplyRefresh(ctx, m)
		if errors.Is(err, records.ErrInvalidArgument) || errors.Is(err, models.ErrRecordNotFound) {
			slog.Warn("skip invalid message", "message_id", msg.ID, "record_id", m.RecordID, "error", err.Error())
			return nil
		}
		return err
	}

	for {
		err := consumer.Consume(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Error("kafka consumer stopped", "error", err.Error())
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}
