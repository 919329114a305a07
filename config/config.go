/*
Copyright 2024 LedgerSnap Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package config

import (
	"encoding/json"
	"errors"
	"log"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/sirupsen/logrus"
)

const (
	DEFAULT_PORT = "5002"
)

var ConfigStore atomic.Value

type ServerConfig struct {
	SSL       bool   `json:"ssl" envconfig:"LEDGERSNAP_SERVER_SSL"`
	Secure    bool   `json:"secure" envconfig:"LEDGERSNAP_SERVER_SECURE"`
	SecretKey string `json:"secret_key" envconfig:"LEDGERSNAP_SERVER_SECRET_KEY"`
	Domain    string `json:"domain" envconfig:"LEDGERSNAP_SERVER_SSL_DOMAIN"`
	Email     string `json:"ssl_email" envconfig:"LEDGERSNAP_SERVER_SSL_EMAIL"`
	Port      string `json:"port" envconfig:"LEDGERSNAP_SERVER_PORT"`
}

type DataSourceConfig struct {
	Dns string `json:"dns" envconfig:"LEDGERSNAP_DATA_SOURCE_DNS"`
}

type RedisConfig struct {
	Dns           string `json:"dns" envconfig:"LEDGERSNAP_REDIS_DNS"`
	SkipTLSVerify bool   `json:"skip_tls_verify" envconfig:"LEDGERSNAP_REDIS_SKIP_TLS_VERIFY"`
}

// S3Config points the file-store collaborator at an S3-compatible bucket.
// Endpoint is optional and only needed for non-AWS deployments (MinIO etc).
type S3Config struct {
	AccessKeyID     string `json:"access_key_id" envconfig:"LEDGERSNAP_S3_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"secret_access_key" envconfig:"LEDGERSNAP_S3_SECRET_ACCESS_KEY"`
	Bucket          string `json:"bucket" envconfig:"LEDGERSNAP_S3_BUCKET"`
	Region          string `json:"region" envconfig:"LEDGERSNAP_S3_REGION"`
	Endpoint        string `json:"endpoint" envconfig:"LEDGERSNAP_S3_ENDPOINT"`
}

// HttpServiceConfig describes an external HTTP collaborator (sheets bridge,
// extraction service). Timeout is in seconds.
type HttpServiceConfig struct {
	Url     string `json:"url"`
	Timeout int    `json:"timeout"`
	Headers struct {
		Authorization string `json:"Authorization"`
	} `json:"headers"`
}

// QueueConfig controls the server-side submission queue worker. All retry
// semantics of the pipeline live here: how often the worker polls, how many
// jobs one tick may claim, and the linear capped backoff schedule.
type QueueConfig struct {
	PollIntervalSec   int `json:"poll_interval_sec" envconfig:"LEDGERSNAP_QUEUE_POLL_INTERVAL_SEC"`
	BatchSize         int `json:"batch_size" envconfig:"LEDGERSNAP_QUEUE_BATCH_SIZE"`
	MaxAttempts       int `json:"max_attempts" envconfig:"LEDGERSNAP_QUEUE_MAX_ATTEMPTS"`
	BackoffUnitSec    int `json:"backoff_unit_sec" envconfig:"LEDGERSNAP_QUEUE_BACKOFF_UNIT_SEC"`
	BackoffCeilingSec int `json:"backoff_ceiling_sec" envconfig:"LEDGERSNAP_QUEUE_BACKOFF_CEILING_SEC"`
	JobTimeoutSec     int `json:"job_timeout_sec" envconfig:"LEDGERSNAP_QUEUE_JOB_TIMEOUT_SEC"`
}

func (q QueueConfig) PollInterval() time.Duration {
	return time.Duration(q.PollIntervalSec) * time.Second
}

func (q QueueConfig) BackoffUnit() time.Duration {
	return time.Duration(q.BackoffUnitSec) * time.Second
}

func (q QueueConfig) BackoffCeiling() time.Duration {
	return time.Duration(q.BackoffCeilingSec) * time.Second
}

func (q QueueConfig) JobTimeout() time.Duration {
	return time.Duration(q.JobTimeoutSec) * time.Second
}

// AgentConfig is the client-resident side: where the durable outbox lives and
// which server to drain it to.
type AgentConfig struct {
	ServerUrl         string `json:"server_url" envconfig:"LEDGERSNAP_AGENT_SERVER_URL"`
	OutboxPath        string `json:"outbox_path" envconfig:"LEDGERSNAP_AGENT_OUTBOX_PATH"`
	Token             string `json:"token" envconfig:"LEDGERSNAP_AGENT_TOKEN"`
	StaleUploadSec    int    `json:"stale_upload_sec" envconfig:"LEDGERSNAP_AGENT_STALE_UPLOAD_SEC"`
	RequestTimeoutSec int    `json:"request_timeout_sec" envconfig:"LEDGERSNAP_AGENT_REQUEST_TIMEOUT_SEC"`
}

func (a AgentConfig) StaleUploadAfter() time.Duration {
	return time.Duration(a.StaleUploadSec) * time.Second
}

func (a AgentConfig) RequestTimeout() time.Duration {
	return time.Duration(a.RequestTimeoutSec) * time.Second
}

type RateLimitConfig struct {
	RequestsPerSecond  *float64 `json:"requests_per_second" envconfig:"LEDGERSNAP_RATE_LIMIT_RPS"`
	Burst              *int     `json:"burst" envconfig:"LEDGERSNAP_RATE_LIMIT_BURST"`
	CleanupIntervalSec *int     `json:"cleanup_interval_sec" envconfig:"LEDGERSNAP_RATE_LIMIT_CLEANUP_INTERVAL_SEC"`
}

type SlackWebhook struct {
	WebhookUrl string `json:"webhook_url"`
}

type Notification struct {
	Slack SlackWebhook `json:"slack"`
}

type TelemetryConfig struct {
	Disabled bool `json:"disabled" envconfig:"LEDGERSNAP_TELEMETRY_DISABLED"`
}

type Configuration struct {
	ProjectName  string            `json:"project_name" envconfig:"LEDGERSNAP_PROJECT_NAME"`
	Server       ServerConfig      `json:"server"`
	DataSource   DataSourceConfig  `json:"data_source"`
	Redis        RedisConfig       `json:"redis"`
	S3           S3Config          `json:"s3"`
	Sheets       HttpServiceConfig `json:"sheets"`
	Extraction   HttpServiceConfig `json:"extraction"`
	Queue        QueueConfig       `json:"queue"`
	Agent        AgentConfig       `json:"agent"`
	RateLimit    RateLimitConfig   `json:"rate_limit"`
	Notification Notification      `json:"notification"`
	Telemetry    TelemetryConfig   `json:"telemetry"`
}

func loadConfigFromFile(file string) error {
	var cnf Configuration
	_, err := os.Stat(file)
	if err == nil {
		f, err := os.Open(file)
		if err != nil {
			return err
		}
		err = json.NewDecoder(f).Decode(&cnf)
		if err != nil {
			return err
		}
	} else if errors.Is(err, os.ErrNotExist) {
		log.Println("config json not passed, will use env variables")
	}

	// override config from environment variables
	err = envconfig.Process("ledgersnap", &cnf)
	if err != nil {
		return err
	}

	err = cnf.validateAndAddDefaults()
	if err != nil {
		return err
	}

	ConfigStore.Store(&cnf)
	return err
}

func InitConfig(configFile string) error {
	logger()
	return loadConfigFromFile(configFile)
}

func Fetch() (*Configuration, error) {
	config := ConfigStore.Load()
	c, ok := config.(*Configuration)
	if !ok {
		return nil, errors.New("config not loaded from file. Create a json file called ledgersnap.json with your config")
	}
	return c, nil
}

func (cnf *Configuration) validateAndAddDefaults() error {
	if cnf.ProjectName == "" {
		log.Println("Warning: Project name is empty. Setting a default name.")
		cnf.ProjectName = "LedgerSnap Server"
	}

	if cnf.DataSource.Dns == "" {
		log.Println("Error: Data source DNS is empty. It's a required field.")
		return errors.New("data source DNS is required")
	}

	if cnf.Redis.Dns == "" {
		log.Println("Error: Redis DNS is empty. It's a required field.")
		return errors.New("redis DNS is required")
	}

	// Trim white spaces from fields
	cnf.ProjectName = strings.TrimSpace(cnf.ProjectName)
	cnf.Server.Port = strings.TrimSpace(cnf.Server.Port)
	cnf.DataSource.Dns = strings.TrimSpace(cnf.DataSource.Dns)
	cnf.Redis.Dns = strings.TrimSpace(cnf.Redis.Dns)

	if cnf.Server.Port == "" {
		cnf.Server.Port = DEFAULT_PORT
		log.Printf("Warning: Port not specified in config. Setting default port: %s", DEFAULT_PORT)
	}

	// Queue defaults mirror the original deployment profile: poll every 5s,
	// one job per tick, five attempts, 30s backoff unit capped at 10m.
	if cnf.Queue.PollIntervalSec <= 0 {
		cnf.Queue.PollIntervalSec = 5
	}
	if cnf.Queue.BatchSize <= 0 {
		cnf.Queue.BatchSize = 1
	}
	if cnf.Queue.MaxAttempts <= 0 {
		cnf.Queue.MaxAttempts = 5
	}
	if cnf.Queue.BackoffUnitSec <= 0 {
		cnf.Queue.BackoffUnitSec = 30
	}
	if cnf.Queue.BackoffCeilingSec <= 0 {
		cnf.Queue.BackoffCeilingSec = 600
	}
	if cnf.Queue.JobTimeoutSec <= 0 {
		cnf.Queue.JobTimeoutSec = 120
	}

	if cnf.Sheets.Timeout <= 0 {
		cnf.Sheets.Timeout = 30
	}
	if cnf.Extraction.Timeout <= 0 {
		cnf.Extraction.Timeout = 60
	}

	if cnf.Agent.OutboxPath == "" {
		cnf.Agent.OutboxPath = "ledgersnap-outbox.db"
	}
	if cnf.Agent.StaleUploadSec <= 0 {
		cnf.Agent.StaleUploadSec = 600
	}
	if cnf.Agent.RequestTimeoutSec <= 0 {
		cnf.Agent.RequestTimeoutSec = 30
	}

	// Rate limiting is disabled by default (when both RPS and Burst are nil)
	if cnf.RateLimit.RequestsPerSecond != nil && cnf.RateLimit.Burst == nil {
		defaultBurst := 2 * int(*cnf.RateLimit.RequestsPerSecond)
		cnf.RateLimit.Burst = &defaultBurst
		log.Printf("Warning: Rate limit burst not specified. Setting default value: %d", defaultBurst)
	}
	if cnf.RateLimit.RequestsPerSecond == nil && cnf.RateLimit.Burst != nil {
		defaultRPS := float64(*cnf.RateLimit.Burst) / 2
		cnf.RateLimit.RequestsPerSecond = &defaultRPS
		log.Printf("Warning: Rate limit RPS not specified. Setting default value: %.2f", defaultRPS)
	}
	if cnf.RateLimit.CleanupIntervalSec == nil {
		defaultCleanup := 10800 // 3 hours in seconds
		cnf.RateLimit.CleanupIntervalSec = &defaultCleanup
	}

	return nil
}

// MockConfig sets a mock configuration for testing purposes.
func MockConfig(mockConfig *Configuration) {
	_ = mockConfig.validateAndAddDefaults()
	ConfigStore.Store(mockConfig)
}

func logger() {
	logger := logrus.New()
	log.SetOutput(logger.Writer())
}
