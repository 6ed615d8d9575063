package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BearBump/LoanBox/config"
	"github.com/BearBump/LoanBox/internal/broker/kafka"
	"github.com/BearBump/LoanBox/internal/cache/rediscache"
	"github.com/BearBump/LoanBox/internal/integrations/backend"
	"github.com/BearBump/LoanBox/internal/integrations/backend/fake"
	"github.com/BearBump/LoanBox/internal/integrations/backend/httpbackend"
	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/models"
	"github.com/BearBump/LoanBox/internal/services/poller"
	"github.com/BearBump/LoanBox/internal/storage/pgrecords"
)

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo poller.Repository, closeFn func(), err error)
	newProducer      func(cfg *config.Config) poller.Producer
	newRateLimiter   func(cfg *config.Config) poller.RateLimiter
	newBackendClient func(cfg *config.Config) backend.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (poller.Repository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgrecords.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr)
		},
		newBackendClient: func(cfg *config.Config) backend.Client {
			// Without a backend URL the worker runs against deterministic fake payloads.
			if cfg.Backend.BaseURL == "" {
				return fake.New()
			}
			timeout := time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
			if timeout <= 0 {
				timeout = 10 * time.Second
			}
			return httpbackend.New(cfg.Backend.BaseURL, cfg.Backend.Token, cfg.Backend.RequestsPerSecond, timeout)
		},
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func plannerConfig(c config.LoanBoxConfig) poller.PlannerConfig {
	return poller.PlannerConfig{
		ActiveMinDelay: seconds(c.WorkerNextCheckActiveMinSeconds),
		ActiveMaxDelay: seconds(c.WorkerNextCheckActiveMaxSeconds),
		PendingDelay:   seconds(c.WorkerNextCheckPendingSeconds),
		DefaultDelay:   seconds(c.WorkerNextCheckDefaultSeconds),
		Backoff1:       seconds(c.WorkerBackoff1Seconds),
		Backoff2:       seconds(c.WorkerBackoff2Seconds),
		Backoff3:       seconds(c.WorkerBackoff3Seconds),
		Backoff4:       seconds(c.WorkerBackoff4Seconds),
	}
}

// RunLoanBoxWorker runs the refresh poller and the ops HTTP server until
// ctx is done or one of them fails.
func RunLoanBoxWorker(ctx context.Context, cfg *config.Config, f workerFactories, swaggerPath string) error {
	topic := cfg.Kafka.RecordRefreshedTopicName
	if topic == "" {
		topic = "record.refreshed"
	}

	pollInterval := seconds(cfg.LoanBox.WorkerPollIntervalSeconds)
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	batchSize := cfg.LoanBox.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.LoanBox.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}
	lease := seconds(cfg.LoanBox.WorkerLeaseSeconds)
	if lease <= 0 {
		lease = 120 * time.Second
	}
	rlPerMin := int64(cfg.LoanBox.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 120
	}
	httpAddr := cfg.LoanBox.WorkerHTTPAddr
	if httpAddr == "" {
		httpAddr = ":8082"
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	rl := f.newRateLimiter(cfg)
	client := f.newBackendClient(cfg)
	engine := lifecycle.NewEngine(lifecycle.SlogObserver(slog.Default()))

	p := poller.New(repo, client, engine, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(plannerConfig(cfg.LoanBox)).
		WithKindRateLimits(map[models.Kind]int{
			models.KindBorrow:   cfg.LoanBox.WorkerRateLimitBorrowPerMinute,
			models.KindReturn:   cfg.LoanBox.WorkerRateLimitReturnPerMinute,
			models.KindDelivery: cfg.LoanBox.WorkerRateLimitDeliveryPerMinute,
		})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("poller started", "topic", topic, "batch", batchSize, "concurrency", concurrency)
		return p.Run(gctx)
	})
	g.Go(func() error {
		return runWorkerHTTPServer(gctx, workerHTTPOpts{
			httpAddr:    httpAddr,
			swaggerPath: swaggerPath,
			poller:      p,
			cfg:         cfg,
		})
	})
	return g.Wait()
}
