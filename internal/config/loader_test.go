package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/okian/readq/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Storage, convey.ShouldEqual, config.StorageSQLite)
			convey.So(cfg.QueueSize, convey.ShouldEqual, 1024)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, runtime.NumCPU())
			convey.So(cfg.DedupeSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.PrivilegedAvailability, convey.ShouldEqual, "physical")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()
		clearConfigEnvVars()

		convey.Convey("When loading config with defaults only", func() {
			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
				convey.So(cfg.LogFormat, convey.ShouldEqual, "text")
				convey.So(cfg.RescoreOnStart, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config with environment variables", func() {
			_ = os.Setenv("READQ_ADDR", ":8080")
			_ = os.Setenv("READQ_QUEUE_SIZE", "4096")
			_ = os.Setenv("READQ_WORKER_COUNT", "16")
			_ = os.Setenv("READQ_STORAGE", "memory")
			_ = os.Setenv("READQ_RESCORE_ON_START", "true")
			_ = os.Setenv("READQ_MISSING_TYPE_WEIGHT", "1.5")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
				convey.So(cfg.QueueSize, convey.ShouldEqual, 4096)
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 16)
				convey.So(cfg.Storage, convey.ShouldEqual, config.StorageMemory)
				convey.So(cfg.RescoreOnStart, convey.ShouldBeTrue)
				convey.So(cfg.MissingTypeWeight, convey.ShouldEqual, 1.5)
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
# comments are fine
addr: ":9090"
queue_size: 300
worker_count: 24
sqlite_path: /var/lib/readq/books.db
admin_token: from-file
`
			tmpFile := createTempConfigFile(t, yamlContent)
			_ = os.Setenv("READQ_CONFIG", tmpFile)
			_ = os.Setenv("READQ_WORKER_COUNT", "32") // This should override the file
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Addr, convey.ShouldEqual, ":9090")                       // From file
				convey.So(cfg.QueueSize, convey.ShouldEqual, 300)                      // From file
				convey.So(cfg.WorkerCount, convey.ShouldEqual, 32)                     // Overridden by env
				convey.So(cfg.SQLitePath, convey.ShouldEqual, "/var/lib/readq/books.db") // From file
				convey.So(cfg.AdminToken, convey.ShouldEqual, "from-file")
				convey.So(cfg.DedupeSize, convey.ShouldEqual, 10_000) // From defaults
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(t, `invalid: yaml: content: [`)
			_ = os.Setenv("READQ_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("READQ_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(cfg, convey.ShouldBeNil)
		})

		convey.Convey("When loading config with empty addr", func() {
			_ = os.Setenv("READQ_ADDR", "")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a validation error", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(err.Error(), convey.ShouldContainSubstring, "addr must not be empty")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with an unknown storage", func() {
			_ = os.Setenv("READQ_STORAGE", "postgres")
			defer clearConfigEnvVars()

			_, err := config.Load(ctx)
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			_ = os.Setenv("READQ_QUEUE_SIZE", "invalid")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

func TestConfig_DefaultFormula(t *testing.T) {
	convey.Convey("Given a config", t, func() {
		cfg := config.New()

		convey.Convey("When no formula path is set", func() {
			f, err := cfg.DefaultFormula()
			convey.So(err, convey.ShouldBeNil)
			convey.So(f, convey.ShouldBeNil)
		})

		convey.Convey("When the path names a formula document", func() {
			cfg.DefaultFormulaPath = filepath.Join(t.TempDir(), "formula.json")
			err := os.WriteFile(cfg.DefaultFormulaPath, []byte(`{"category":{"Poetry":4}}`), 0o600)
			convey.So(err, convey.ShouldBeNil)

			f, err := cfg.DefaultFormula()

			convey.Convey("Then it is decoded", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(f.Category, convey.ShouldNotBeNil)
				w, ok := f.Category.Lookup("Poetry")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(w, convey.ShouldEqual, 4.0)
			})
		})

		convey.Convey("When the document is malformed", func() {
			cfg.DefaultFormulaPath = filepath.Join(t.TempDir(), "formula.json")
			convey.So(os.WriteFile(cfg.DefaultFormulaPath, []byte(`[`), 0o600), convey.ShouldBeNil)

			_, err := cfg.DefaultFormula()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
		})
	})
}

// Helper functions.

func clearConfigEnvVars() {
	envVars := []string{
		"READQ_CONFIG",
		"READQ_ADDR",
		"READQ_QUEUE_SIZE",
		"READQ_WORKER_COUNT",
		"READQ_STORAGE",
		"READQ_RESCORE_ON_START",
		"READQ_MISSING_TYPE_WEIGHT",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "readq.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
