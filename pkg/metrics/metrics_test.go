package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	. "github.com/smartystreets/goconvey/convey"
)

func gathered(reg *prometheus.Registry) map[string]bool {
	families, err := reg.Gather()
	So(err, ShouldBeNil)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given a fresh registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("unit"),
				WithMetricPrefix("x"),
				WithHistogramBuckets([]float64{1, 10}),
				WithPriceBuckets([]float64{1, 10, 100}),
				WithCycleBuckets([]float64{0.5, 5}),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then it registers its collectors on that registry", func() {
				So(m, ShouldNotBeNil)
				m.gamesPriced.Inc()
				m.cyclesTotal.WithLabelValues("ok").Inc()
				names := gathered(registry)
				So(names["test_unit_x_games_priced_total"], ShouldBeTrue)
				So(names["test_unit_x_cycles_total"], ShouldBeTrue)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("Recording helpers never panic", func() {
			So(func() {
				RecordCycle("ok", time.Second)
				RecordScan("processed", 200*time.Millisecond)
				RecordGamePriced(12.4, 8)
				RecordGameSkipped("not_in_pool")
				RecordGatewayRequest("match", "200", 12)
				RecordRateLimitWait()
				RecordRateLimitExhausted()
				UpdateQueueSize(3)
				UpdateQueueCapacity(10)
				RecordQueueEnqueue()
				RecordQueueCoalesced()
				RecordQueueEnqueueError()
				UpdateWorkerCount(2)
				RecordWorkerError()
				RecordHTTPRequest("/healthz", "GET", "200")
				RecordHTTPRequestDuration("/healthz", "GET", "200", 1.5)
				RecordErrorByComponent("scanner", "gateway")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.2)
			}, ShouldNotPanic)
		})

		Convey("The custom registry exposes the pipeline families", func() {
			RecordGamePriced(10, 5)
			names := gathered(GetRegistry())
			So(names["champstock_pipeline_games_priced_total"], ShouldBeTrue)
			So(names["champstock_pipeline_price_value"], ShouldBeTrue)
		})
	})
}
