package database

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Database Configuration", func() {
	Describe("DefaultConfig", func() {
		It("returns the local-development baseline for chainaudit's pool", func() {
			config := DefaultConfig()

			Expect(config.Host).To(Equal("localhost"))
			Expect(config.Port).To(Equal(5432))
			Expect(config.User).To(Equal("chainaudit_user"))
			Expect(config.Database).To(Equal("chainaudit"))
			Expect(config.SSLMode).To(Equal("disable"))
			Expect(config.MaxOpenConns).To(Equal(25))
			Expect(config.MaxIdleConns).To(Equal(5))
			Expect(config.ConnMaxLifetime).To(Equal(5 * time.Minute))
			Expect(config.ConnMaxIdleTime).To(Equal(5 * time.Minute))
		})
	})

	Describe("LoadFromEnv", func() {
		var config *Config

		BeforeEach(func() {
			config = DefaultConfig()
			for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE"} {
				os.Unsetenv(key)
			}
		})

		AfterEach(func() {
			for _, key := range []string{"DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSL_MODE"} {
				os.Unsetenv(key)
			}
		})

		It("overlays every DB_* variable when set", func() {
			os.Setenv("DB_HOST", "testhost")
			os.Setenv("DB_PORT", "3306")
			os.Setenv("DB_USER", "testuser")
			os.Setenv("DB_PASSWORD", "testpass")
			os.Setenv("DB_NAME", "testdb")
			os.Setenv("DB_SSL_MODE", "require")

			config.LoadFromEnv()

			Expect(config.Host).To(Equal("testhost"))
			Expect(config.Port).To(Equal(3306))
			Expect(config.User).To(Equal("testuser"))
			Expect(config.Password).To(Equal("testpass"))
			Expect(config.Database).To(Equal("testdb"))
			Expect(config.SSLMode).To(Equal("require"))
		})

		It("keeps the default port when DB_PORT does not parse", func() {
			os.Setenv("DB_PORT", "invalid_port")

			originalPort := config.Port
			config.LoadFromEnv()

			Expect(config.Port).To(Equal(originalPort))
		})

		It("leaves the config untouched when nothing is set", func() {
			originalConfig := *config
			config.LoadFromEnv()

			Expect(*config).To(Equal(originalConfig))
		})
	})

	Describe("Validate", func() {
		var config *Config

		BeforeEach(func() {
			config = DefaultConfig()
		})

		It("passes a default config", func() {
			Expect(config.Validate()).NotTo(HaveOccurred())
		})

		DescribeTable("rejecting a malformed field",
			func(mutate func(*Config), wantSubstring string) {
				mutate(config)
				err := config.Validate()
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring(wantSubstring))
			},
			Entry("empty host", func(c *Config) { c.Host = "" }, "database host is required"),
			Entry("zero port", func(c *Config) { c.Port = 0 }, "database port must be between 1 and 65535"),
			Entry("port above 65535", func(c *Config) { c.Port = 70000 }, "database port must be between 1 and 65535"),
			Entry("empty user", func(c *Config) { c.User = "" }, "database user is required"),
			Entry("empty database name", func(c *Config) { c.Database = "" }, "database name is required"),
			Entry("zero max open connections", func(c *Config) { c.MaxOpenConns = 0 }, "max open connections must be greater than 0"),
			Entry("negative max idle connections", func(c *Config) { c.MaxIdleConns = -1 }, "max idle connections must be non-negative"),
		)
	})

	Describe("ConnectionString", func() {
		var config *Config

		BeforeEach(func() {
			config = &Config{
				Host:     "localhost",
				Port:     5432,
				User:     "testuser",
				Database: "testdb",
				SSLMode:  "disable",
			}
		})

		It("appends password when set", func() {
			config.Password = "testpass"
			Expect(config.ConnectionString()).To(Equal(
				"host=localhost port=5432 user=testuser dbname=testdb sslmode=disable password=testpass",
			))
		})

		It("omits the password parameter entirely rather than rendering it empty", func() {
			result := config.ConnectionString()
			Expect(result).To(Equal("host=localhost port=5432 user=testuser dbname=testdb sslmode=disable"))
			Expect(result).NotTo(ContainSubstring("password="))
		})
	})

	Describe("Connect", func() {
		var logger *logrus.Logger

		BeforeEach(func() {
			logger = logrus.New()
			logger.SetLevel(logrus.FatalLevel)
		})

		It("rejects an invalid config before attempting to open a connection", func() {
			config := &Config{Host: "", Port: 5432, User: "testuser"}

			_, err := Connect(config, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("invalid database configuration"))
		})

		// Connecting to a live Postgres instance is covered by the
		// integration suite, not here.
	})
})
