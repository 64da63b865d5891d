package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When a manager is created with custom options", func() {
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.rankOperations.WithLabelValues("insert").Inc()

			Convey("Then collectors are registered under the custom names", func() {
				So(manager, ShouldNotBeNil)
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var names []string
				for _, f := range families {
					names = append(names, f.GetName())
				}
				So(strings.Join(names, ","), ShouldContainSubstring, "test_unit_rank_operations_total")
			})
		})

		Convey("When empty options are passed", func() {
			manager := NewManager(
				WithNamespace(""),
				WithSubsystem(""),
				WithHistogramBuckets(nil),
				WithPrometheusRegistry(registry),
			)

			Convey("Then defaults are kept", func() {
				So(manager.namespace, ShouldEqual, "readq")
				So(manager.subsystem, ShouldEqual, "queue")
				So(manager.histogramBuckets, ShouldResemble, defaultLatencyBuckets)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When rank operations are recorded", func() {
			before := testutil.ToFloat64(globalManager.rankOperations.WithLabelValues("move"))
			shiftsBefore := testutil.ToFloat64(globalManager.rankShifts)
			RecordRankOperation("move", 3)
			RecordRankOperation("move", 0)

			Convey("Then operations and shifts are counted", func() {
				So(testutil.ToFloat64(globalManager.rankOperations.WithLabelValues("move"))-before, ShouldEqual, 2.0)
				So(testutil.ToFloat64(globalManager.rankShifts)-shiftsBefore, ShouldEqual, 3.0)
			})
		})

		Convey("When reorder skips are recorded", func() {
			before := testutil.ToFloat64(globalManager.reorderSkipped.WithLabelValues("not_owned"))
			RecordReorderSkipped("not_owned")
			So(testutil.ToFloat64(globalManager.reorderSkipped.WithLabelValues("not_owned"))-before, ShouldEqual, 1.0)
		})

		Convey("When queue gauges are updated", func() {
			UpdateQueueSize(7)
			UpdateQueueCapacity(100)
			UpdateQueueUtilization(0.07)

			Convey("Then they report the latest values", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7.0)
				So(testutil.ToFloat64(globalManager.queueCapacity), ShouldEqual, 100.0)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.07)
			})
		})

		Convey("When a failed store transaction is recorded", func() {
			before := testutil.ToFloat64(globalManager.storeTxErrors.WithLabelValues("update"))
			RecordStoreTx("update", 1.5, true)
			RecordStoreTx("update", 0.5, false)
			So(testutil.ToFloat64(globalManager.storeTxErrors.WithLabelValues("update"))-before, ShouldEqual, 1.0)
		})

		Convey("When the remaining helpers are called", func() {
			So(func() {
				RecordInconsistentRank()
				RecordScoreComputations(4)
				RecordFormulaUpdate()
				RecordBooksRescored(2)
				RecordHTTPRequest("/books", "GET", "200")
				RecordHTTPRequestDuration("/books", "GET", "200", 0.01)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueDuplicate()
				UpdateWorkerCount(4)
				UpdateWorkerActiveCount(2)
				RecordWorkerJob("ok", 3)
				RecordErrorByComponent("service", "not_found")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("When the registry is gathered", func() {
			families, err := GetRegistry().Gather()
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
		})
	})
}
