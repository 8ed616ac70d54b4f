package log

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/crabitat/crabitat/internal/pubsub"
)

// swapLogger installs a fresh in-memory logger for one test and
// restores the previous global on cleanup.
func swapLogger(t *testing.T) *Logger {
	t.Helper()
	prev := defaultLogger
	l := &Logger{
		writer:   io.Discard,
		enabled:  true,
		minLevel: LevelDebug,
		format:   FormatText,
		broker:   pubsub.NewBroker[string](),
	}
	defaultLogger = l
	t.Cleanup(func() { defaultLogger = prev })
	return l
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "DEBUG", LevelDebug.String())
	require.Equal(t, "INFO", LevelInfo.String())
	require.Equal(t, "WARN", LevelWarn.String())
	require.Equal(t, "ERROR", LevelError.String())
	require.Equal(t, "UNKNOWN", Level(42).String())
}

func TestTextEntry(t *testing.T) {
	entry := textEntry("2026-01-02T10:45:00", LevelError, CatSched, "Assignment failed",
		[]any{"crab_id", "c1", "task_id", "t1"})
	require.Equal(t,
		"2026-01-02T10:45:00 [ERROR] [sched] Assignment failed crab_id=c1 task_id=t1",
		entry)
}

func TestTextEntry_OddFieldCount(t *testing.T) {
	entry := textEntry("2026-01-02T10:45:00", LevelInfo, CatDB, "Opened store", []any{"path"})
	require.Equal(t, "2026-01-02T10:45:00 [INFO] [db] Opened store path=<missing>", entry)
}

func TestJSONEntry(t *testing.T) {
	entry := jsonEntry("2026-01-02T10:45:00", LevelWarn, CatPoller, "PR check failed",
		[]any{"pr", 42, "attempt", 3})

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(entry), &record))
	require.Equal(t, "2026-01-02T10:45:00", record["ts"])
	require.Equal(t, "WARN", record["level"])
	require.Equal(t, "poller", record["cat"])
	require.Equal(t, "PR check failed", record["msg"])
	require.Equal(t, "42", record["pr"])
	require.Equal(t, "3", record["attempt"])
}

func TestMinLevelFiltersEntries(t *testing.T) {
	swapLogger(t)
	SetMinLevel(LevelWarn)

	Info(CatSched, "filtered out")
	Warn(CatSched, "kept")

	recent := Recent(10)
	require.Len(t, recent, 1)
	require.Contains(t, recent[0], "kept")
}

func TestRecent_CapsTail(t *testing.T) {
	swapLogger(t)

	for i := 0; i < recentCap+25; i++ {
		Debug(CatUI, fmt.Sprintf("entry %d", i))
	}

	recent := Recent(recentCap + 100)
	require.Len(t, recent, recentCap)
	// Oldest first, with the earliest entries evicted.
	require.Contains(t, recent[0], "entry 25")
	require.Contains(t, recent[len(recent)-1], fmt.Sprintf("entry %d", recentCap+24))
}

func TestRecent_NilLogger(t *testing.T) {
	prev := defaultLogger
	defaultLogger = nil
	t.Cleanup(func() { defaultLogger = prev })

	require.Nil(t, Recent(10))
}

func TestSetFormatJSON(t *testing.T) {
	swapLogger(t)
	SetFormat(FormatJSON)

	ErrorErr(CatWS, "Session dropped", io.ErrUnexpectedEOF, "crab_id", "c1")

	recent := Recent(1)
	require.Len(t, recent, 1)

	var record map[string]any
	require.NoError(t, json.Unmarshal([]byte(recent[0]), &record))
	require.Equal(t, "ERROR", record["level"])
	require.Equal(t, "Session dropped", record["msg"])
	require.Equal(t, io.ErrUnexpectedEOF.Error(), record["error"])
}

func TestLogPublishesToSubscribers(t *testing.T) {
	l := swapLogger(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := l.broker.Subscribe(ctx)

	Info(CatSched, "Assigning task", "task_id", "t1")

	select {
	case event := <-ch:
		require.Contains(t, event.Payload, "Assigning task")
		require.Contains(t, event.Payload, "task_id=t1")
	case <-time.After(time.Second):
		t.Fatal("no log event published")
	}
}

func TestDisabledLoggerRecordsNothing(t *testing.T) {
	swapLogger(t)
	SetEnabled(false)

	Error(CatHTTP, "should vanish")

	require.Empty(t, Recent(10))
}
