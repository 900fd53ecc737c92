package api

import (
	"sync"
	"time"
)

// AlertType identifies the kind of anomaly detected.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertAuthDeniedSpike   AlertType = "auth_denied_spike"
)

// AlertEvent describes an anomaly that triggered an alert.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc is the callback invoked when an anomaly is detected.
type AlertFunc func(AlertEvent)

const (
	defaultLoginFailureWindow    = 1 * time.Minute
	defaultLoginFailureThreshold = 50
	defaultAuthDeniedWindow      = 1 * time.Minute
	defaultAuthDeniedThreshold   = 100
)

// slidingWindow counts events within the trailing window.
type slidingWindow struct {
	times     []time.Time
	window    time.Duration
	threshold int
}

// add records an event at now and reports the count if the threshold was
// reached, resetting so one spike raises one alert.
func (sw *slidingWindow) add(now time.Time) (int, bool) {
	sw.times = append(sw.times, now)
	sw.times = trimWindow(sw.times, now, sw.window)
	if len(sw.times) < sw.threshold {
		return 0, false
	}
	n := len(sw.times)
	sw.times = sw.times[:0]
	return n, true
}

// metricsCollector watches audit events for spikes of failed logins and
// rejected credentials.
type metricsCollector struct {
	mu sync.Mutex

	loginFailures slidingWindow
	authDenied    slidingWindow

	now     func() time.Time
	alertFn AlertFunc
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		loginFailures: slidingWindow{window: defaultLoginFailureWindow, threshold: defaultLoginFailureThreshold},
		authDenied:    slidingWindow{window: defaultAuthDeniedWindow, threshold: defaultAuthDeniedThreshold},
		now:           time.Now,
		alertFn:       alertFn,
	}
}

// recordEvent inspects an audit event and updates the relevant counters.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	var (
		sw  *slidingWindow
		typ AlertType
		msg string
	)
	switch event {
	case AuditLoginFailure:
		sw, typ, msg = &m.loginFailures, AlertLoginFailureSpike, "login failure rate exceeds threshold"
	case AuditAuthDenied:
		sw, typ, msg = &m.authDenied, AlertAuthDeniedSpike, "rejected credential rate exceeds threshold"
	default:
		return
	}

	m.mu.Lock()
	now := m.now()
	count, fire := sw.add(now)
	threshold := sw.threshold
	m.mu.Unlock()

	if fire {
		m.alertFn(AlertEvent{
			Type:      typ,
			Message:   msg,
			Count:     count,
			Threshold: threshold,
			Timestamp: now,
		})
	}
}

// trimWindow removes entries older than (now - window) from the sorted slice.
func trimWindow(times []time.Time, now time.Time, window time.Duration) []time.Time {
	cutoff := now.Add(-window)
	start := 0
	for start < len(times) && times[start].Before(cutoff) {
		start++
	}
	return times[start:]
}
