package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"guildkeeper/internal/metrics"
	"guildkeeper/internal/storage"

	"go.uber.org/zap"
)

const (
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelCrit  = "CRIT"
	LevelError = "ERROR"
)

const defaultQueueSize = 64

type Store interface {
	AddAuditLog(ctx context.Context, log storage.AuditLog) error
}

// ErrorReport is one failure queued for the error log channel.
type ErrorReport struct {
	GuildID string
	Scope   string
	Err     error
	Fields  map[string]string
	At      time.Time
}

// Details renders the error and its fields in a stable order.
func (r ErrorReport) Details() string {
	var b strings.Builder
	if r.Err != nil {
		b.WriteString(r.Err.Error())
	}
	keys := make([]string, 0, len(r.Fields))
	for key := range r.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%s", key, r.Fields[key])
	}
	return strings.TrimSpace(b.String())
}

// Sink delivers an error report somewhere humans will see it.
type Sink func(ctx context.Context, report ErrorReport) error

type Logger struct {
	store   Store
	logger  *zap.Logger
	metrics *metrics.Metrics
	notify  func(context.Context, storage.AuditLog)
	sink    Sink

	mu     sync.RWMutex
	queue  chan ErrorReport
	done   chan struct{}
	closed bool
}

func NewLogger(store Store, logger *zap.Logger, m *metrics.Metrics) *Logger {
	l := &Logger{
		store:   store,
		logger:  logger,
		metrics: m,
		queue:   make(chan ErrorReport, defaultQueueSize),
		done:    make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Logger) SetNotifier(notify func(context.Context, storage.AuditLog)) {
	l.notify = notify
}

func (l *Logger) SetSink(sink Sink) {
	l.mu.Lock()
	l.sink = sink
	l.mu.Unlock()
}

func (l *Logger) Log(ctx context.Context, level, guildID, userID, event, details string) {
	entry := storage.AuditLog{
		GuildID:   guildID,
		UserID:    userID,
		Level:     level,
		Event:     event,
		Details:   details,
		CreatedAt: time.Now(),
	}
	if l.store != nil {
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("audit persist failed", zap.String("event", event), zap.Error(err))
		}
	}
	if l.notify != nil {
		l.notify(ctx, entry)
	}
	l.logger.Info("audit", zap.String("level", level), zap.String("guild_id", guildID), zap.String("user_id", userID), zap.String("event", event), zap.String("details", details))
}

// Error queues err for the error log channel and never blocks the caller.
// When the queue is full or closed the report is written to the process log only.
func (l *Logger) Error(_ context.Context, guildID, scope string, err error, fields map[string]string) {
	report := ErrorReport{GuildID: guildID, Scope: scope, Err: err, Fields: fields, At: time.Now()}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		l.lastResort(report, "closed")
		return
	}
	select {
	case l.queue <- report:
	default:
		l.lastResort(report, "dropped")
	}
}

// Close stops accepting reports and waits for queued ones to be delivered.
func (l *Logger) Close(ctx context.Context) {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.queue)
	}
	l.mu.Unlock()

	select {
	case <-l.done:
	case <-ctx.Done():
		l.logger.Warn("error log drain interrupted", zap.Error(ctx.Err()))
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for report := range l.queue {
		l.deliver(report)
	}
}

func (l *Logger) deliver(report ErrorReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	l.logger.Error(report.Scope, zap.String("guild_id", report.GuildID), zap.Error(report.Err), zap.Any("fields", report.Fields))

	if l.store != nil && report.GuildID != "" {
		entry := storage.AuditLog{
			GuildID:   report.GuildID,
			Level:     LevelError,
			Event:     report.Scope,
			Details:   report.Details(),
			CreatedAt: report.At,
		}
		if err := l.store.AddAuditLog(ctx, entry); err != nil {
			l.logger.Warn("error log persist failed", zap.Error(err))
		}
	}

	l.mu.RLock()
	sink := l.sink
	l.mu.RUnlock()
	if sink == nil {
		l.metrics.RecordError("logged")
		return
	}
	if err := sink(ctx, report); err != nil {
		l.logger.Warn("error log delivery failed", zap.String("scope", report.Scope), zap.Error(err))
		l.metrics.RecordError("fallback")
		return
	}
	l.metrics.RecordError("delivered")
}

func (l *Logger) lastResort(report ErrorReport, outcome string) {
	l.logger.Error(report.Scope, zap.String("guild_id", report.GuildID), zap.Error(report.Err), zap.Any("fields", report.Fields), zap.String("delivery", outcome))
	l.metrics.RecordError(outcome)
}
