// Package metrics collects counters and latencies for forwarded requests.
//
// The handler reports each step of a request as a MetricEvent:
//   - request_received when a request arrives
//   - request_rejected when it is answered without calling the upstream
//   - upstream_completed with the upstream status and call duration
//   - upstream_failed when the call could not complete
//
// A single goroutine consumes events from a buffered channel. Emit never
// blocks; events are dropped when the buffer is full so metrics cannot slow
// down forwarding.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventUpstreamCompleted,
//		Duration:   850 * time.Millisecond,
//		StatusCode: 200,
//	})
//
//	snapshot := collector.Snapshot("gemini-2.0-flash")
//
// Remaining events are drained when the context passed to Start is cancelled.
package metrics
