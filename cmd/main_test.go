package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	service "github.com/okian/readq/internal/app"
	"github.com/okian/readq/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func run(args ...string) (string, error) {
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func setEnv(kv ...string) func() {
	for i := 0; i+1 < len(kv); i += 2 {
		_ = os.Setenv(kv[i], kv[i+1])
	}
	return func() {
		for i := 0; i+1 < len(kv); i += 2 {
			_ = os.Unsetenv(kv[i])
		}
	}
}

func TestCommands(t *testing.T) {
	convey.Convey("Given the readq command line", t, func() {
		convey.Convey("When auditing a user on in-memory storage", func() {
			defer setEnv("READQ_STORAGE", "memory")()

			out, err := run("audit", "--user", "alice")

			convey.Convey("Then an empty list is reported consistent", func() {
				convey.So(err, convey.ShouldBeNil)
				var line map[string]interface{}
				convey.So(json.Unmarshal([]byte(out), &line), convey.ShouldBeNil)
				convey.So(line["user_id"], convey.ShouldEqual, "alice")
				convey.So(line["consistent"], convey.ShouldEqual, true)
			})
		})

		convey.Convey("When resequencing without a scope", func() {
			defer setEnv("READQ_STORAGE", "memory")()

			_, err := run("resequence")
			convey.So(errors.Is(err, errUserOrAll), convey.ShouldBeTrue)
		})

		convey.Convey("When resequencing with both scopes", func() {
			defer setEnv("READQ_STORAGE", "memory")()

			_, err := run("resequence", "--user", "alice", "--all")
			convey.So(errors.Is(err, errUserOrAll), convey.ShouldBeTrue)
		})

		convey.Convey("When resequencing every user of an empty store", func() {
			defer setEnv("READQ_STORAGE", "memory")()

			out, err := run("resequence", "--all")
			convey.So(err, convey.ShouldBeNil)
			convey.So(out, convey.ShouldEqual, "")
		})

		convey.Convey("When migrating a fresh sqlite database", func() {
			path := filepath.Join(t.TempDir(), "data", "readq.db")
			defer setEnv("READQ_STORAGE", "sqlite", "READQ_SQLITE_PATH", path)()

			out, err := run("migrate")

			convey.Convey("Then every migration is applied", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(out, convey.ShouldEqual, "schema version 2\n")
				_, statErr := os.Stat(path)
				convey.So(statErr, convey.ShouldBeNil)
			})
		})

		convey.Convey("When migrating in-memory storage", func() {
			defer setEnv("READQ_STORAGE", "memory")()

			_, err := run("migrate")
			convey.So(err, convey.ShouldNotBeNil)
		})

		convey.Convey("When the config is invalid", func() {
			defer setEnv("READQ_STORAGE", "postgres")()

			_, err := run("audit", "--user", "alice")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "failed to load config")
		})

		convey.Convey("When the default formula file is unreadable", func() {
			defer setEnv(
				"READQ_STORAGE", "memory",
				"READQ_DEFAULT_FORMULA_PATH", filepath.Join(t.TempDir(), "missing.json"),
			)()

			_, err := run("audit", "--user", "alice")
			convey.So(err, convey.ShouldNotBeNil)
		})
	})
}

func TestMainApplicationComponents(t *testing.T) {
	convey.Convey("Given main application components", t, func() {
		convey.Convey("When testing system metrics updater", func() {
			convey.Convey("Then it returns once the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startSystemMetricsUpdater(ctx)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing service metrics updater", func() {
			svc := service.New()

			convey.Convey("Then it returns once the context ends", func() {
				ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
				defer cancel()

				convey.So(func() {
					startServiceMetricsUpdater(ctx, svc)
				}, convey.ShouldNotPanic)
			})
		})

		convey.Convey("When testing system metrics update", func() {
			convey.So(func() {
				updateSystemMetrics()
			}, convey.ShouldNotPanic)
		})

		convey.Convey("When testing service metrics update on a started service", func() {
			svc := service.New(service.WithWorkerCount(1))
			convey.So(svc.Start(context.Background()), convey.ShouldBeNil)
			defer svc.Stop()

			convey.So(func() {
				updateServiceMetrics(svc)
			}, convey.ShouldNotPanic)
		})
	})
}
