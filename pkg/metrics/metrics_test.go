package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsOptions(t *testing.T) {
	Convey("Given a manager built with options", t, func() {
		registry := prometheus.NewRegistry()
		manager := NewManager(
			WithNamespace("test"),
			WithSubsystem("unit"),
			WithHistogramBuckets([]float64{1, 10, 100}),
			WithTimingBuckets([]float64{1, 2}),
			WithConstLabels(map[string]string{"env": "test"}),
			WithPrometheusRegistry(registry),
		)

		Convey("Then the options are applied", func() {
			So(manager.namespace, ShouldEqual, "test")
			So(manager.subsystem, ShouldEqual, "unit")
			So(manager.histogramBuckets, ShouldResemble, []float64{1, 10, 100})
			So(manager.timingBuckets, ShouldResemble, []float64{1, 2})
		})

		Convey("Then collectors are registered on the given registry", func() {
			manager.judgments.WithLabelValues("perfect").Inc()
			families, err := registry.Gather()
			So(err, ShouldBeNil)

			names := map[string]bool{}
			for _, f := range families {
				names[f.GetName()] = true
			}
			So(names["test_unit_judgments_total"], ShouldBeTrue)
		})

		Convey("Empty options keep the defaults", func() {
			m := NewManager(WithNamespace(""), WithHistogramBuckets(nil), WithPrometheusRegistry(prometheus.NewRegistry()))
			So(m.namespace, ShouldEqual, "ovation")
			So(m.histogramBuckets, ShouldResemble, prometheus.DefBuckets)
		})
	})
}

func TestGameMetrics(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When judgments are recorded", func() {
			before := testutil.ToFloat64(globalManager.judgments.WithLabelValues("good"))
			RecordJudgment("good")
			RecordJudgment("good")

			Convey("Then the quality counter grows", func() {
				So(testutil.ToFloat64(globalManager.judgments.WithLabelValues("good")), ShouldEqual, before+2)
			})
		})

		Convey("When inputs are dropped", func() {
			before := testutil.ToFloat64(globalManager.inputsDropped.WithLabelValues("late"))
			RecordInputDropped("late")

			Convey("Then the reason counter grows", func() {
				So(testutil.ToFloat64(globalManager.inputsDropped.WithLabelValues("late")), ShouldEqual, before+1)
			})
		})

		Convey("When a leaderboard size is published", func() {
			UpdateLeaderboardEntries("track-a", 12)

			Convey("Then the gauge holds it", func() {
				So(testutil.ToFloat64(globalManager.leaderboardEntries.WithLabelValues("track-a")), ShouldEqual, 12)
			})
		})

		Convey("Recording everything else never panics", func() {
			So(func() {
				RecordSessionStarted("live")
				RecordSessionFinished("replay")
				RecordCueFired()
				RecordCueLateness(3)
				RecordTickDuration(0.4)
				RecordReplayVerification("verified")
				RecordVerificationLatency(12)
				RecordSubmissionDuplicate()
				RecordArchiveWrite()
				RecordLeaderboardUpdate()
				RecordRepositoryUpdateLatency(1)
				RecordRepositoryQueryLatency(1)
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				UpdateQueueUtilization(0.3)
				RecordQueueEnqueue()
				RecordQueueDequeue()
				RecordQueueEnqueueError()
				RecordQueueProcessingLatency(0)
				UpdateWorkerActiveCount(4)
				UpdateWorkerMessagesPerSecond(2.5)
				RecordWorkerProcessingLatency(8)
				RecordWorkerError()
				RecordHTTPRequest("replays", "POST", "202")
				RecordHTTPRequestDuration("replays", "POST", "202", 2)
				RecordErrorByComponent("queue", "full")
				RecordErrorByType("client_error", "medium")
				RecordErrorByEndpoint("rank", "GET", "not_found")
				RecordErrorLatency("http", "not_found", 1)
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("The registry is shared", func() {
			So(GetRegistry(), ShouldEqual, customRegistry)
		})
	})
}
