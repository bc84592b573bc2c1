package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"guildkeeper/internal/metrics"
	"guildkeeper/internal/storage"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type memoryStore struct {
	mu      sync.Mutex
	entries []storage.AuditLog
}

func (m *memoryStore) AddAuditLog(_ context.Context, log storage.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, log)
	return nil
}

func (m *memoryStore) all() []storage.AuditLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]storage.AuditLog(nil), m.entries...)
}

func TestLogPersistsAndNotifies(t *testing.T) {
	store := &memoryStore{}
	l := NewLogger(store, zap.NewNop(), nil)
	defer l.Close(context.Background())

	var notified storage.AuditLog
	l.SetNotifier(func(_ context.Context, entry storage.AuditLog) { notified = entry })
	l.Log(context.Background(), LevelWarn, "g1", "u1", "ban", "reason=spam")

	entries := store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, "ban", entries[0].Event)
	assert.Equal(t, "g1", notified.GuildID)
}

func TestErrorDeliveredToSink(t *testing.T) {
	store := &memoryStore{}
	m := metrics.New()
	l := NewLogger(store, zap.NewNop(), m)

	delivered := make(chan ErrorReport, 1)
	l.SetSink(func(_ context.Context, report ErrorReport) error {
		delivered <- report
		return nil
	})
	l.Error(context.Background(), "g1", "send_alert", errors.New("forbidden"), map[string]string{"channel": "c1"})

	select {
	case report := <-delivered:
		assert.Equal(t, "send_alert", report.Scope)
		assert.Equal(t, "forbidden channel=c1", report.Details())
	case <-time.After(2 * time.Second):
		t.Fatalf("report not delivered")
	}
	l.Close(context.Background())

	entries := store.all()
	require.Len(t, entries, 1)
	assert.Equal(t, LevelError, entries[0].Level)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsLogged.WithLabelValues("delivered")))
}

func TestSinkFailureFallsBackToProcessLog(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()
	l := NewLogger(nil, zap.New(core), m)
	l.SetSink(func(context.Context, ErrorReport) error { return errors.New("missing access") })

	l.Error(context.Background(), "", "welcome", errors.New("boom"), nil)
	l.Close(context.Background())

	assert.Equal(t, 1, logs.FilterMessage("error log delivery failed").Len())
	assert.Equal(t, 1, logs.FilterMessage("welcome").Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsLogged.WithLabelValues("fallback")))
}

func TestErrorAfterCloseIsLoggedOnly(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	l := NewLogger(nil, zap.New(core), nil)
	l.Close(context.Background())

	l.Error(context.Background(), "g1", "late", errors.New("x"), nil)
	entries := logs.FilterMessage("late").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "closed", entries[0].ContextMap()["delivery"])
}

func TestErrorNeverBlocksWhenQueueFull(t *testing.T) {
	l := NewLogger(nil, zap.NewNop(), nil)
	release := make(chan struct{})
	l.SetSink(func(context.Context, ErrorReport) error {
		<-release
		return nil
	})

	finished := make(chan struct{})
	go func() {
		for i := 0; i < defaultQueueSize*2; i++ {
			l.Error(context.Background(), "g1", "flood", errors.New("x"), nil)
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("Error blocked on a full queue")
	}
	close(release)
	l.Close(context.Background())
}
