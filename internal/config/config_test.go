package config

import (
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  dashboard_port: "8080"
  metrics_port: "9090"

database:
  host: "db.internal"
  port: 5432
  user: "chainaudit_user"
  database: "chainaudit"
  ssl_mode: "require"

redis:
  address: "redis.internal:6379"
  db: 2
  lock_ttl: "30s"
  tip_cache_ttl: "10s"

services:
  - id: "infura"
    blockchain_id: "ethereum-mainnet"
    base_url: "https://mainnet.infura.io/v3"
    timeout: "10s"
  - id: "blockset"
    blockchain_id: "bitcoin-mainnet"
    base_url: "https://api.blockset.com"
    timeout: "15s"

scheduling:
  check_all_interval: "60s"
  check_job_interval: "5s"
  clean_interval: "1h"
  block_worker_pool_size: 20
  max_in_flight_per_job: 50

logging:
  level: "info"
  format: "json"

error_sink:
  slack_webhook_url: "https://hooks.slack.com/services/test"
  channel: "#chain-audit-alerts"
`
				err := os.WriteFile(configFile, []byte(validConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load configuration successfully", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(config).NotTo(BeNil())

				Expect(config.Server.DashboardPort).To(Equal("8080"))
				Expect(config.Server.MetricsPort).To(Equal("9090"))

				Expect(config.Database.Host).To(Equal("db.internal"))
				Expect(config.Database.Port).To(Equal(5432))
				Expect(config.Database.User).To(Equal("chainaudit_user"))
				Expect(config.Database.Database).To(Equal("chainaudit"))
				Expect(config.Database.SSLMode).To(Equal("require"))

				Expect(config.Redis.Address).To(Equal("redis.internal:6379"))
				Expect(config.Redis.DB).To(Equal(2))
				Expect(config.Redis.LockTTL).To(Equal(30 * time.Second))
				Expect(config.Redis.TipCacheTTL).To(Equal(10 * time.Second))

				Expect(config.Services).To(HaveLen(2))
				Expect(config.Services[0].ID).To(Equal("infura"))
				Expect(config.Services[0].BlockchainID).To(Equal("ethereum-mainnet"))
				Expect(config.Services[0].BaseURL).To(Equal("https://mainnet.infura.io/v3"))
				Expect(config.Services[0].Timeout).To(Equal(10 * time.Second))

				Expect(config.Scheduling.CheckAllInterval).To(Equal(60 * time.Second))
				Expect(config.Scheduling.CheckJobInterval).To(Equal(5 * time.Second))
				Expect(config.Scheduling.CleanInterval).To(Equal(time.Hour))
				Expect(config.Scheduling.BlockWorkerPoolSize).To(Equal(20))
				Expect(config.Scheduling.MaxInFlightPerJob).To(Equal(50))

				Expect(config.Logging.Level).To(Equal("info"))
				Expect(config.Logging.Format).To(Equal("json"))

				Expect(config.ErrorSink.SlackWebhookURL).To(Equal("https://hooks.slack.com/services/test"))
				Expect(config.ErrorSink.Channel).To(Equal("#chain-audit-alerts"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				minimalConfig := `
server:
  dashboard_port: "3000"

database:
  host: "localhost"
  user: "chainaudit_user"
  database: "chainaudit"

services:
  - id: "infura"
    blockchain_id: "ethereum-mainnet"
    base_url: "https://mainnet.infura.io/v3"
`
				err := os.WriteFile(configFile, []byte(minimalConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should load with defaults for missing values", func() {
				config, err := Load(configFile)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Server.DashboardPort).To(Equal("3000"))
				Expect(config.Database.Host).To(Equal("localhost"))

				// Check that defaults are applied where needed
				Expect(config.Server.MetricsPort).To(Equal("9090"))
				Expect(config.Scheduling.BlockWorkerPoolSize).To(Equal(20))
				Expect(config.Scheduling.MaxInFlightPerJob).To(Equal(50))
				Expect(config.Redis.TipCacheTTL).To(Equal(10 * time.Second))
			})
		})

		Context("when config file does not exist", func() {
			It("should return an error", func() {
				_, err := Load("/nonexistent/config.yaml")
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to read config file"))
			})
		})

		Context("when config file has invalid YAML", func() {
			BeforeEach(func() {
				invalidConfig := `
server:
  dashboard_port: "8080"
  invalid_yaml: [
database:
  host: "test"
`
				err := os.WriteFile(configFile, []byte(invalidConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})

		Context("when config has invalid duration formats", func() {
			BeforeEach(func() {
				invalidDurationConfig := `
server:
  dashboard_port: "8080"

database:
  host: "localhost"
  user: "chainaudit_user"
  database: "chainaudit"

redis:
  lock_ttl: "not-a-duration"
`
				err := os.WriteFile(configFile, []byte(invalidDurationConfig), 0644)
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return an error", func() {
				_, err := Load(configFile)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to parse config file"))
			})
		})
	})

	Describe("validate", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Server: ServerConfig{
					DashboardPort: "8080",
					MetricsPort:   "9090",
				},
				Database: DatabaseConfig{
					Host:     "localhost",
					Port:     5432,
					User:     "chainaudit_user",
					Database: "chainaudit",
					SSLMode:  "disable",
				},
				Redis: RedisConfig{
					Address:     "localhost:6379",
					LockTTL:     30 * time.Second,
					TipCacheTTL: 10 * time.Second,
				},
				Services: []ServiceConfig{
					{ID: "infura", BlockchainID: "ethereum-mainnet", BaseURL: "https://mainnet.infura.io/v3", Timeout: 10 * time.Second},
				},
				Scheduling: SchedulingConfig{
					CheckAllInterval:    60 * time.Second,
					CheckJobInterval:    5 * time.Second,
					CleanInterval:       time.Hour,
					BlockWorkerPoolSize: 20,
					MaxInFlightPerJob:   50,
				},
				Logging: LoggingConfig{
					Level:  "info",
					Format: "json",
				},
			}
		})

		Context("when config is valid", func() {
			It("should pass validation", func() {
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})

		Context("when database host is missing", func() {
			BeforeEach(func() {
				config.Database.Host = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("database host is required"))
			})
		})

		Context("when no services are configured", func() {
			BeforeEach(func() {
				config.Services = nil
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("at least one service must be configured"))
			})
		})

		Context("when a service is missing an ID", func() {
			BeforeEach(func() {
				config.Services[0].ID = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("service id is required"))
			})
		})

		Context("when a service is missing a base URL", func() {
			BeforeEach(func() {
				config.Services[0].BaseURL = ""
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("service base_url is required"))
			})
		})

		Context("when block worker pool size is invalid", func() {
			BeforeEach(func() {
				config.Scheduling.BlockWorkerPoolSize = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("block worker pool size must be greater than 0"))
			})
		})

		Context("when max in-flight per job is invalid", func() {
			BeforeEach(func() {
				config.Scheduling.MaxInFlightPerJob = 0
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max in-flight per job must be greater than 0"))
			})
		})

		Context("when max in-flight per job is negative", func() {
			BeforeEach(func() {
				config.Scheduling.MaxInFlightPerJob = -1
			})

			It("should return validation error", func() {
				err := validate(config)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("max in-flight per job must be greater than 0"))
			})
		})

		Context("when check_all interval is negative", func() {
			BeforeEach(func() {
				config.Scheduling.CheckAllInterval = -1 * time.Second
			})

			It("should pass validation", func() {
				// Negative polling intervals are a misconfiguration caught at
				// startup by the dispatcher itself, not here.
				err := validate(config)
				Expect(err).NotTo(HaveOccurred())
			})
		})
	})

	Describe("loadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{}
			os.Clearenv()
		})

		Context("when environment variables are set", func() {
			BeforeEach(func() {
				os.Setenv("DB_HOST", "envhost")
				os.Setenv("DB_PASSWORD", "env-secret")
				os.Setenv("REDIS_ADDRESS", "env-redis:6379")
				os.Setenv("DASHBOARD_PORT", "3000")
				os.Setenv("METRICS_PORT", "9999")
				os.Setenv("LOG_LEVEL", "debug")
				os.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/env")
			})

			AfterEach(func() {
				os.Clearenv()
			})

			It("should load values from environment", func() {
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())

				Expect(config.Database.Host).To(Equal("envhost"))
				Expect(config.Database.Password).To(Equal("env-secret"))
				Expect(config.Redis.Address).To(Equal("env-redis:6379"))
				Expect(config.Server.DashboardPort).To(Equal("3000"))
				Expect(config.Server.MetricsPort).To(Equal("9999"))
				Expect(config.Logging.Level).To(Equal("debug"))
				Expect(config.ErrorSink.SlackWebhookURL).To(Equal("https://hooks.slack.com/services/env"))
			})
		})

		Context("when no environment variables are set", func() {
			It("should not modify config", func() {
				originalConfig := *config
				err := loadFromEnv(config)
				Expect(err).NotTo(HaveOccurred())
				Expect(*config).To(Equal(originalConfig))
			})
		})
	})
})
