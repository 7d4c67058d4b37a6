package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/radiowave/station-backend/internal/config"
	"github.com/radiowave/station-backend/internal/db/models"
	"github.com/radiowave/station-backend/internal/telemetry"
)

// LogEntry is the shipped form of a stored activity record: the row itself plus
// its rendered description, flattened for log aggregators.
type LogEntry struct {
	LogID       int64           `json:"log_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Action      string          `json:"action"`
	UserID      *int64          `json:"user_id,omitempty"`
	EntityType  string          `json:"entity_type,omitempty"`
	EntityID    *int64          `json:"entity_id,omitempty"`
	IPAddress   string          `json:"ip_address"`
	UserAgent   string          `json:"user_agent,omitempty"`
	Description string          `json:"description"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
}

// NewLogEntry builds a LogEntry from a stored record
func NewLogEntry(rec *models.AuditLog, description string) *LogEntry {
	e := &LogEntry{
		LogID:       rec.ID,
		Timestamp:   rec.CreatedAt,
		Action:      string(rec.Action),
		UserID:      rec.UserID,
		EntityID:    rec.EntityID,
		IPAddress:   rec.IPAddress,
		Description: description,
	}
	if rec.EntityType != nil {
		e.EntityType = *rec.EntityType
	}
	if rec.UserAgent != nil {
		e.UserAgent = *rec.UserAgent
	}
	if len(rec.Metadata) > 0 && json.Valid(rec.Metadata) {
		e.Metadata = json.RawMessage(rec.Metadata)
	}
	return e
}

// Shipper defines the interface for audit log shipping
type Shipper interface {
	// Ship sends an audit log entry to the destination
	Ship(ctx context.Context, entry *LogEntry) error
	// Close flushes and releases any resources
	Close() error
}

// MultiShipper ships to multiple destinations
type MultiShipper struct {
	shippers []namedShipper
	mu       sync.RWMutex
}

type namedShipper struct {
	kind string
	Shipper
}

// NewMultiShipper creates a multi-shipper from the enabled shipper configs
func NewMultiShipper(configs []config.AuditShipperConfig) (*MultiShipper, error) {
	ms := &MultiShipper{}

	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		var shipper Shipper
		var err error

		switch cfg.Type {
		case "webhook":
			if cfg.Webhook == nil {
				return nil, fmt.Errorf("webhook config is required for webhook shipper")
			}
			shipper, err = NewWebhookShipper(cfg.Webhook)
		case "file":
			if cfg.File == nil {
				return nil, fmt.Errorf("file config is required for file shipper")
			}
			shipper, err = NewFileShipper(cfg.File)
		default:
			return nil, fmt.Errorf("unknown shipper type: %s", cfg.Type)
		}

		if err != nil {
			ms.Close()
			return nil, fmt.Errorf("failed to create %s shipper: %w", cfg.Type, err)
		}

		ms.shippers = append(ms.shippers, namedShipper{kind: cfg.Type, Shipper: shipper})
	}

	return ms, nil
}

// Len reports the number of active shippers
func (ms *MultiShipper) Len() int {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.shippers)
}

// Ship sends an entry to all configured shippers. A failing shipper does not
// stop delivery to the others; the last error is returned.
func (ms *MultiShipper) Ship(ctx context.Context, entry *LogEntry) error {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Ship(ctx, entry); err != nil {
			lastErr = err
			telemetry.AuditShipperErrorsTotal.WithLabelValues(s.kind).Inc()
			slog.Warn("audit shipper error", "shipper", s.kind, "log_id", entry.LogID, "error", err)
		}
	}
	return lastErr
}

// Close closes all shippers
func (ms *MultiShipper) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	var lastErr error
	for _, s := range ms.shippers {
		if err := s.Close(); err != nil {
			lastErr = err
		}
	}
	ms.shippers = nil
	return lastErr
}

// WebhookShipper posts audit entries to an HTTP endpoint, optionally in batches
type WebhookShipper struct {
	url           string
	headers       map[string]string
	timeout       time.Duration
	batchSize     int
	flushInterval time.Duration
	client        *http.Client

	batchCh   chan *LogEntry
	batch     []*LogEntry
	closeCh   chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

// NewWebhookShipper creates a new webhook shipper
func NewWebhookShipper(cfg *config.AuditWebhookConfig) (*WebhookShipper, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	flush := time.Duration(cfg.FlushInterval) * time.Second
	if flush <= 0 {
		flush = 5 * time.Second
	}

	ws := &WebhookShipper{
		url:           cfg.URL,
		headers:       cfg.Headers,
		timeout:       timeout,
		batchSize:     cfg.BatchSize,
		flushInterval: flush,
		client:        &http.Client{Timeout: timeout},
		batchCh:       make(chan *LogEntry, 1000),
		closeCh:       make(chan struct{}),
		doneCh:        make(chan struct{}),
	}

	if ws.batchSize > 0 {
		go ws.processBatches()
	} else {
		close(ws.doneCh)
	}

	return ws, nil
}

// processBatches owns ws.batch; it flushes on size, on the ticker, and on close.
func (ws *WebhookShipper) processBatches() {
	defer close(ws.doneCh)

	ticker := time.NewTicker(ws.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case entry := <-ws.batchCh:
			ws.batch = append(ws.batch, entry)
			if len(ws.batch) >= ws.batchSize {
				ws.flushBatch()
			}
		case <-ticker.C:
			ws.flushBatch()
		case <-ws.closeCh:
			for {
				select {
				case entry := <-ws.batchCh:
					ws.batch = append(ws.batch, entry)
				default:
					ws.flushBatch()
					return
				}
			}
		}
	}
}

func (ws *WebhookShipper) flushBatch() {
	if len(ws.batch) == 0 {
		return
	}
	defer func() { ws.batch = ws.batch[:0] }()

	data, err := json.Marshal(ws.batch)
	if err != nil {
		slog.Error("failed to marshal audit batch", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), ws.timeout)
	defer cancel()

	if err := ws.sendRequest(ctx, data); err != nil {
		telemetry.AuditShipperErrorsTotal.WithLabelValues("webhook").Inc()
		slog.Warn("failed to send audit batch", "entries", len(ws.batch), "error", err)
	}
}

// Ship sends an entry to the webhook, or queues it when batching is enabled
func (ws *WebhookShipper) Ship(ctx context.Context, entry *LogEntry) error {
	if ws.batchSize > 0 {
		select {
		case ws.batchCh <- entry:
			return nil
		default:
			// Channel full, send directly
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	return ws.sendRequest(ctx, data)
}

func (ws *WebhookShipper) sendRequest(ctx context.Context, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ws.url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range ws.headers {
		req.Header.Set(k, v)
	}

	resp, err := ws.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Close flushes any queued entries and stops the batch processor
func (ws *WebhookShipper) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closeCh)
	})
	<-ws.doneCh
	return nil
}

// FileShipper appends audit entries as JSON lines to a size-rotated file
type FileShipper struct {
	out *lumberjack.Logger
	mu  sync.Mutex
}

// NewFileShipper creates a new file shipper
func NewFileShipper(cfg *config.AuditFileConfig) (*FileShipper, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &FileShipper{
		out: &lumberjack.Logger{
			Filename:   cfg.Path,
			MaxSize:    maxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Ship writes an entry to the file
func (fs *FileShipper) Ship(_ context.Context, entry *LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if _, err := fs.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	return nil
}

// Close closes the file
func (fs *FileShipper) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.out.Close()
}
