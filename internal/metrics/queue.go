// Package metrics provides Prometheus metrics for V4L2 buffer queues.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	queueInFlight = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vidbuf",
		Subsystem: "queue",
		Name:      "in_flight",
		Help:      "Buffers currently owned by the driver",
	}, []string{"device"})

	queuePending = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vidbuf",
		Subsystem: "queue",
		Name:      "pending",
		Help:      "Buffers waiting for an in-flight slot",
	}, []string{"device"})

	streamActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "vidbuf",
		Subsystem: "stream",
		Name:      "active",
		Help:      "1 while the device is streaming",
	}, []string{"device"})

	buffersDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbuf",
		Name:      "buffers_dequeued_total",
		Help:      "Buffers returned by the driver",
	}, []string{"device"})

	bytesDequeued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbuf",
		Name:      "bytes_dequeued_total",
		Help:      "Payload bytes in dequeued buffers",
	}, []string{"device"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vidbuf",
		Name:      "errors_total",
		Help:      "Failed buffer operations by error code",
	}, []string{"device", "code"})

	// Local cache for console reporting.
	deviceCache   = make(map[string]*DeviceMetrics)
	deviceCacheMu sync.RWMutex
)

// DeviceMetrics holds current metric values for a device.
type DeviceMetrics struct {
	InFlight  int
	Pending   int
	Streaming bool
	Dequeued  uint64
	Bytes     uint64
	Errors    uint64
}

// SetQueueDepth records the in-flight and pending counts for a device.
func SetQueueDepth(device string, inFlight, pending int) {
	queueInFlight.WithLabelValues(device).Set(float64(inFlight))
	queuePending.WithLabelValues(device).Set(float64(pending))
	updateCache(device, func(m *DeviceMetrics) {
		m.InFlight = inFlight
		m.Pending = pending
	})
}

// SetStreamActive records whether a device is streaming.
func SetStreamActive(device string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1
	}
	streamActive.WithLabelValues(device).Set(v)
	updateCache(device, func(m *DeviceMetrics) { m.Streaming = streaming })
}

// ObserveDequeue counts one dequeued buffer carrying bytes of payload.
func ObserveDequeue(device string, bytes int) {
	buffersDequeued.WithLabelValues(device).Inc()
	if bytes > 0 {
		bytesDequeued.WithLabelValues(device).Add(float64(bytes))
	}
	updateCache(device, func(m *DeviceMetrics) {
		m.Dequeued++
		if bytes > 0 {
			m.Bytes += uint64(bytes)
		}
	})
}

// IncError counts a failed operation under its error code.
func IncError(device, code string) {
	errorsTotal.WithLabelValues(device, code).Inc()
	updateCache(device, func(m *DeviceMetrics) { m.Errors++ })
}

// DeleteDeviceMetrics removes all metrics for a device.
func DeleteDeviceMetrics(device string) {
	queueInFlight.DeleteLabelValues(device)
	queuePending.DeleteLabelValues(device)
	streamActive.DeleteLabelValues(device)
	buffersDequeued.DeleteLabelValues(device)
	bytesDequeued.DeleteLabelValues(device)
	errorsTotal.DeletePartialMatch(prometheus.Labels{"device": device})

	deviceCacheMu.Lock()
	delete(deviceCache, device)
	deviceCacheMu.Unlock()
}

// GetDeviceMetrics returns current metric values for a device, or nil.
func GetDeviceMetrics(device string) *DeviceMetrics {
	deviceCacheMu.RLock()
	defer deviceCacheMu.RUnlock()
	if m, ok := deviceCache[device]; ok {
		dup := *m
		return &dup
	}
	return nil
}

func updateCache(device string, update func(*DeviceMetrics)) {
	deviceCacheMu.Lock()
	defer deviceCacheMu.Unlock()
	m, ok := deviceCache[device]
	if !ok {
		m = &DeviceMetrics{}
		deviceCache[device] = m
	}
	update(m)
}
