package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

const (
	forwardQueueSize    = 1024
	forwardAttempts     = 2
	defaultForwardBatch = 50
	defaultForwardWait  = 5 * time.Second
)

// AuditWebhookConfig configures forwarding of audit events to an external
// collector.
type AuditWebhookConfig struct {
	URL         string
	HeaderName  string // optional, e.g. "Authorization"
	HeaderValue string
	Client      *http.Client // nil means a client with a 5s timeout
	BatchSize   int          // events per request, default 50
}

// auditRecord is the forwarded form of one audit event. It carries the same
// fields the audit log does and never a password or key secret.
type auditRecord struct {
	Event      AuditEvent `json:"event"`
	At         time.Time  `json:"at"`
	RemoteAddr string     `json:"remote_addr,omitempty"`
	Principal  string     `json:"principal,omitempty"`
	Username   string     `json:"username,omitempty"`
	KeyID      string     `json:"key_id,omitempty"`
	Scope      string     `json:"scope,omitempty"`
	Scopes     []string   `json:"scopes,omitempty"`
	Path       string     `json:"path,omitempty"`
	Reason     string     `json:"reason,omitempty"`
}

// auditBatch is the request body POSTed to the collector.
type auditBatch struct {
	Source string        `json:"source"`
	Events []auditRecord `json:"events"`
}

// auditForwarder ships audit records in batches from a bounded queue. When
// the queue is full a record is dropped and counted; the local audit log
// still has it.
type auditForwarder struct {
	cfg        AuditWebhookConfig
	client     *http.Client
	retryDelay time.Duration

	queue   chan auditRecord
	done    chan struct{}
	dropped atomic.Int64
}

func newAuditForwarder(cfg AuditWebhookConfig) *auditForwarder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultForwardBatch
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: defaultForwardWait}
	}
	f := &auditForwarder{
		cfg:        cfg,
		client:     client,
		retryDelay: time.Second,
		queue:      make(chan auditRecord, forwardQueueSize),
		done:       make(chan struct{}),
	}
	go f.run()
	return f
}

// publish never blocks.
func (f *auditForwarder) publish(rec auditRecord) {
	select {
	case f.queue <- rec:
	default:
		n := f.dropped.Add(1)
		slog.Warn("audit forwarder queue full, dropping event", "event", rec.Event, "dropped_total", n)
	}
}

// close stops accepting records and waits until the queue is delivered.
func (f *auditForwarder) close() {
	close(f.queue)
	<-f.done
}

func (f *auditForwarder) run() {
	defer close(f.done)
	for rec := range f.queue {
		batch := []auditRecord{rec}
	fill:
		for len(batch) < f.cfg.BatchSize {
			select {
			case next, ok := <-f.queue:
				if !ok {
					break fill
				}
				batch = append(batch, next)
			default:
				break fill
			}
		}
		f.deliver(batch)
	}
}

// deliver sends one batch, retrying once on a transport error or 5xx.
func (f *auditForwarder) deliver(batch []auditRecord) {
	body, err := json.Marshal(auditBatch{Source: "dashgate", Events: batch})
	if err != nil {
		slog.Warn("audit forwarder: encoding batch failed", "error", err)
		return
	}
	for attempt := 1; attempt <= forwardAttempts; attempt++ {
		if attempt > 1 {
			time.Sleep(f.retryDelay)
		}
		retry, err := f.post(body)
		if err == nil {
			return
		}
		slog.Warn("audit forwarder: delivery failed", "error", err, "events", len(batch), "attempt", attempt)
		if !retry {
			return
		}
	}
}

func (f *auditForwarder) post(body []byte) (retry bool, err error) {
	req, err := http.NewRequest(http.MethodPost, f.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "dashgate-audit/1")
	if f.cfg.HeaderName != "" {
		req.Header.Set(f.cfg.HeaderName, f.cfg.HeaderValue)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return true, err
	}
	resp.Body.Close()
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 500:
		return true, fmt.Errorf("collector returned %d", resp.StatusCode)
	default:
		return false, fmt.Errorf("collector rejected batch with %d", resp.StatusCode)
	}
}
