package config

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

// EnvPrefix prefixes environment overrides, e.g. LOANBOX_DATABASE_HOST.
const EnvPrefix = "LOANBOX"

type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Backend  BackendConfig  `yaml:"backend"`
	LoanBox  LoanBoxConfig  `yaml:"loanbox"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name" split_words:"true"`
	SSLMode  string `yaml:"ssl_mode" split_words:"true"`
}

type KafkaConfig struct {
	Host                     string `yaml:"host"`
	Port                     int    `yaml:"port"`
	RecordRefreshedTopicName string `yaml:"record_refreshed_topic_name" split_words:"true"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// BackendConfig points at the library backend REST API. An empty BaseURL
// selects the deterministic fake client.
type BackendConfig struct {
	BaseURL           string  `yaml:"base_url" split_words:"true"`
	Token             string  `yaml:"token"`
	RequestsPerSecond float64 `yaml:"requests_per_second" split_words:"true"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" split_words:"true"`
}

type LoanBoxConfig struct {
	HTTPAddr           string `yaml:"http_addr" split_words:"true"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group" split_words:"true"`
	SnapshotTTLSeconds int    `yaml:"snapshot_ttl_seconds" split_words:"true"`

	WorkerPollIntervalSeconds int    `yaml:"worker_poll_interval_seconds" split_words:"true"`
	WorkerBatchSize           int    `yaml:"worker_batch_size" split_words:"true"`
	WorkerConcurrency         int    `yaml:"worker_concurrency" split_words:"true"`
	WorkerLeaseSeconds        int    `yaml:"worker_lease_seconds" split_words:"true"`
	WorkerRateLimitPerMinute  int    `yaml:"worker_rate_limit_per_minute" split_words:"true"`
	WorkerHTTPAddr            string `yaml:"worker_http_addr" split_words:"true"`

	// Per-kind limits override WorkerRateLimitPerMinute when set.
	WorkerRateLimitBorrowPerMinute   int `yaml:"worker_rate_limit_borrow_per_minute" split_words:"true"`
	WorkerRateLimitReturnPerMinute   int `yaml:"worker_rate_limit_return_per_minute" split_words:"true"`
	WorkerRateLimitDeliveryPerMinute int `yaml:"worker_rate_limit_delivery_per_minute" split_words:"true"`

	// Scheduling. Zero values fall back to the planner defaults:
	// in_delivery 10..30 minutes, pending/unknown 90 minutes, backoff 5/15/30/60 minutes.
	WorkerNextCheckActiveMinSeconds int `yaml:"worker_next_check_active_min_seconds" split_words:"true"`
	WorkerNextCheckActiveMaxSeconds int `yaml:"worker_next_check_active_max_seconds" split_words:"true"`
	WorkerNextCheckPendingSeconds   int `yaml:"worker_next_check_pending_seconds" split_words:"true"`
	WorkerNextCheckDefaultSeconds   int `yaml:"worker_next_check_default_seconds" split_words:"true"`
	WorkerBackoff1Seconds           int `yaml:"worker_backoff_1_seconds" split_words:"true"`
	WorkerBackoff2Seconds           int `yaml:"worker_backoff_2_seconds" split_words:"true"`
	WorkerBackoff3Seconds           int `yaml:"worker_backoff_3_seconds" split_words:"true"`
	WorkerBackoff4Seconds           int `yaml:"worker_backoff_4_seconds" split_words:"true"`
}

// LoadConfig reads the YAML file and then applies LOANBOX_* environment
// overrides on top of it.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "read config file")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "unmarshal yaml")
	}
	if err := envconfig.Process(EnvPrefix, &config); err != nil {
		return nil, errors.Wrap(err, "apply env overrides")
	}

	return &config, nil
}
