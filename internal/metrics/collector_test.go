package metrics_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/gemini-proxy/internal/metrics"
)

const model = "gemini-2.0-flash"

var _ = Describe("Collector", func() {
	var (
		collector *metrics.Collector
		log       *slog.Logger
		ctx       context.Context
		cancel    context.CancelFunc
	)

	totalRequests := func() int64 {
		return collector.Snapshot(model).TotalRequests
	}

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
	})

	AfterEach(func() {
		cancel()
	})

	Describe("NewCollector", func() {
		It("should create a collector with specified buffer size", func() {
			c := metrics.NewCollector(500, log)
			Expect(c).NotTo(BeNil())
			Expect(c.EventChannel()).NotTo(BeNil())
		})
	})

	Describe("Start and event processing", func() {
		BeforeEach(func() {
			collector.Start(ctx)
		})

		It("should process EventRequestReceived", func() {
			collector.EventChannel() <- metrics.MetricEvent{
				Type:      metrics.EventRequestReceived,
				Timestamp: time.Now(),
			}

			Eventually(totalRequests).Should(Equal(int64(1)))
		})

		It("should process EventRequestRejected", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventRequestRejected,
				StatusCode: http.StatusBadRequest,
			})

			Eventually(func() int64 {
				return collector.Snapshot(model).Rejected[http.StatusBadRequest]
			}).Should(Equal(int64(1)))
		})

		It("should process EventUpstreamCompleted", func() {
			collector.Emit(metrics.MetricEvent{
				Type:       metrics.EventUpstreamCompleted,
				Duration:   100 * time.Millisecond,
				StatusCode: http.StatusOK,
			})

			Eventually(func() int64 {
				return collector.Snapshot(model).Upstream.Calls
			}).Should(Equal(int64(1)))

			upstream := collector.Snapshot(model).Upstream
			Expect(upstream.AvgResponse).To(Equal(100 * time.Millisecond))
			Expect(upstream.StatusCodes[http.StatusOK]).To(Equal(int64(1)))
			Expect(upstream.Failures).To(BeZero())
		})

		It("should process EventUpstreamFailed", func() {
			collector.Emit(metrics.MetricEvent{
				Type:     metrics.EventUpstreamFailed,
				Duration: 30 * time.Millisecond,
			})

			Eventually(func() int64 {
				return collector.Snapshot(model).Upstream.Failures
			}).Should(Equal(int64(1)))
			Expect(collector.Snapshot(model).Upstream.Calls).To(Equal(int64(1)))
		})

		It("should process multiple events in sequence", func() {
			events := []metrics.MetricEvent{
				{Type: metrics.EventRequestReceived},
				{Type: metrics.EventUpstreamCompleted, Duration: 50 * time.Millisecond, StatusCode: http.StatusTooManyRequests},
				{Type: metrics.EventRequestReceived},
				{Type: metrics.EventUpstreamCompleted, Duration: 50 * time.Millisecond, StatusCode: http.StatusOK},
			}

			for _, event := range events {
				Expect(collector.Emit(event)).To(BeTrue())
			}

			Eventually(func() int64 {
				return collector.Snapshot(model).Upstream.Calls
			}).Should(Equal(int64(2)))

			snap := collector.Snapshot(model)
			Expect(snap.TotalRequests).To(Equal(int64(2)))
			Expect(snap.Upstream.StatusCodes).To(HaveKeyWithValue(http.StatusTooManyRequests, int64(1)))
			Expect(snap.Upstream.StatusCodes).To(HaveKeyWithValue(http.StatusOK, int64(1)))
			Expect(snap.Upstream.AvgResponse).To(Equal(50 * time.Millisecond))
		})

		It("should drain events on context cancellation", func() {
			for i := 0; i < 5; i++ {
				collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			}

			cancel()

			Eventually(totalRequests).Should(Equal(int64(5)))
		})
	})

	Describe("Emit", func() {
		It("should drop events instead of blocking when the buffer is full", func() {
			small := metrics.NewCollector(1, log)

			Expect(small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})).To(BeTrue())
			Expect(small.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})).To(BeFalse())
		})
	})

	Describe("Handler", func() {
		It("should serve the snapshot as JSON", func() {
			collector.Start(ctx)
			collector.Emit(metrics.MetricEvent{Type: metrics.EventRequestReceived})
			Eventually(totalRequests).Should(Equal(int64(1)))

			req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
			w := httptest.NewRecorder()
			collector.Handler(model).ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(Equal("application/json"))

			var snap metrics.Snapshot
			Expect(json.Unmarshal(w.Body.Bytes(), &snap)).To(Succeed())
			Expect(snap.Model).To(Equal(model))
			Expect(snap.TotalRequests).To(Equal(int64(1)))
		})
	})
})
