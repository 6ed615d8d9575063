package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/LoanBox/config"
	"github.com/BearBump/LoanBox/internal/broker/kafka"
	"github.com/BearBump/LoanBox/internal/cache/rediscache"
	"github.com/BearBump/LoanBox/internal/lifecycle"
	"github.com/BearBump/LoanBox/internal/services/records"
	"github.com/BearBump/LoanBox/internal/storage/pgrecords"
)

type apiApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     apiOpts
	svc      *records.Service
	consumer *kafka.Consumer
	closers  []func()
}

func mustBootstrapAPI() *apiApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("config parse failed: %v", err))
	}

	httpAddr := cfg.LoanBox.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.LoanBox.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "loanbox-api"
	}
	topic := cfg.Kafka.RecordRefreshedTopicName
	if topic == "" {
		topic = "record.refreshed"
	}
	snapshotTTL := time.Duration(cfg.LoanBox.SnapshotTTLSeconds) * time.Second
	if snapshotTTL <= 0 {
		snapshotTTL = 10 * time.Minute
	}

	st := mustOpenPostgresWithRetry(postgresDSN(cfg.Database), 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr)

	engine := lifecycle.NewEngine(lifecycle.SlogObserver(slog.Default()))
	svc := records.New(st, rc, snapshotTTL, engine)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &apiApp{
		ctx:    ctx,
		cancel: cancel,
		opts: apiOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closers:  []func(){st.Close, func() { _ = rc.Close() }},
	}
}

func postgresDSN(db config.DatabaseConfig) string {
	sslMode := db.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		db.Username, db.Password, db.Host, db.Port, db.DBName, sslMode)
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgrecords.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgrecords.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *apiApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	for _, c := range a.closers {
		c()
	}
}

func (a *apiApp) Run() error {
	return runLoanBoxAPI(a.ctx, a.opts, a.svc, a.consumer)
}
