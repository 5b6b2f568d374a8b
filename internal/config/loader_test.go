package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/restwell/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()
		defer clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":5000")
				convey.So(cfg.ContentThreshold, convey.ShouldEqual, 50)
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 10_000)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("RESTWELL_ADDR", ":8080")
			_ = os.Setenv("RESTWELL_CONTENT_THRESHOLD", "10")
			_ = os.Setenv("RESTWELL_FALLBACK_ENABLED", "false")
			_ = os.Setenv("RESTWELL_WORKER_COUNT", "4")
			_ = os.Setenv("RESTWELL_BREAKER_TIMEOUT", "3s")
			_ = os.Setenv("RESTWELL_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.ContentThreshold, convey.ShouldEqual, 10)
				convey.So(cfg.FallbackEnabled, convey.ShouldBeFalse)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 4)
				convey.So(cfg.BreakerTimeout, convey.ShouldEqual, 3*time.Second)
				convey.So(cfg.CORSAllowedOrigins, convey.ShouldResemble,
					[]string{"https://a.example", "https://b.example"})
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			tmpFile := createTempConfigFile(`
addr: ":9090"
db_path: "/var/lib/restwell/history.db"
queue_size: 300
worker_count: 24
log_format: json
`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("RESTWELL_CONFIG", tmpFile)
			_ = os.Setenv("RESTWELL_WORKER_COUNT", "32")

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")
				convey.So(cfg.DBPath, convey.ShouldEqual, "/var/lib/restwell/history.db")
				convey.So(cfg.EventQueueSize, convey.ShouldEqual, 300)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)
				convey.So(cfg.LogFormat, convey.ShouldEqual, "json")
				convey.So(cfg.ContentThreshold, convey.ShouldEqual, 50)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()
			_ = os.Setenv("RESTWELL_CONFIG", tmpFile)

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("RESTWELL_CONFIG", "/non/existent/file.yaml")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a numeric variable is not a number", func() {
			_ = os.Setenv("RESTWELL_QUEUE_SIZE", "invalid")

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should fail to load", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When values fail validation", func() {
			cases := map[string]string{
				"RESTWELL_ADDR":              "",
				"RESTWELL_CONTENT_THRESHOLD": "0",
				"RESTWELL_WORKER_COUNT":      "-1",
				"RESTWELL_LOG_LEVEL":         "verbose",
				"RESTWELL_LOG_FORMAT":        "xml",
			}
			for key, value := range cases {
				clearConfigEnvVars()
				_ = os.Setenv(key, value)

				cfg, err := config.Load(ctx)

				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			}
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"RESTWELL_CONFIG",
		"RESTWELL_ADDR",
		"RESTWELL_CONTENT_THRESHOLD",
		"RESTWELL_FALLBACK_ENABLED",
		"RESTWELL_WORKER_COUNT",
		"RESTWELL_QUEUE_SIZE",
		"RESTWELL_BREAKER_TIMEOUT",
		"RESTWELL_CORS_ALLOWED_ORIGINS",
		"RESTWELL_LOG_LEVEL",
		"RESTWELL_LOG_FORMAT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "restwell-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
