package trace

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var out []map[string]any
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		out = append(out, m)
	}
	require.NoError(t, sc.Err())
	return out
}

func TestFileSink_WritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(filepath.Join(dir, "reasoning"))
	require.NoError(t, err)

	ts := time.Date(2030, 5, 6, 10, 15, 0, 0, time.UTC)
	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, Event{Timestamp: ts, TraceID: "t-1", Kind: KindUserInput, Data: map[string]any{"text": "book 304"}}))
	require.NoError(t, sink.Record(ctx, Event{Timestamp: ts, TraceID: "t-1", Kind: KindToolExecution, Data: map[string]any{"tool": "getAvailableRooms"}}))
	require.NoError(t, sink.Close())

	lines := readLines(t, filepath.Join(dir, "reasoning", "2030-05-06.log"))
	require.Len(t, lines, 2)
	assert.Equal(t, "2030-05-06T10:15:00.000Z", lines[0]["timestamp"])
	assert.Equal(t, "t-1", lines[0]["traceId"])
	assert.Equal(t, "USER_INPUT", lines[0]["event"])
	assert.Equal(t, map[string]any{"text": "book 304"}, lines[0]["data"])
	assert.NotContains(t, lines[0], "level")
	assert.Equal(t, "TOOL_EXECUTION", lines[1]["event"])
}

func TestFileSink_RollsOverByDay(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)
	defer sink.Close()

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, Event{Timestamp: time.Date(2030, 5, 6, 23, 59, 0, 0, time.UTC), TraceID: "a", Kind: KindUserInput}))
	require.NoError(t, sink.Record(ctx, Event{Timestamp: time.Date(2030, 5, 7, 0, 1, 0, 0, time.UTC), TraceID: "b", Kind: KindUserInput}))

	assert.Len(t, readLines(t, filepath.Join(dir, "2030-05-06.log")), 1)
	assert.Len(t, readLines(t, filepath.Join(dir, "2030-05-07.log")), 1)
}

func TestFileSink_Concurrent(t *testing.T) {
	dir := t.TempDir()
	sink, err := NewFileSink(dir)
	require.NoError(t, err)

	ts := time.Date(2030, 5, 6, 12, 0, 0, 0, time.UTC)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = sink.Record(context.Background(), Event{Timestamp: ts, TraceID: "c", Kind: KindToolResult, Data: "ok"})
		}()
	}
	wg.Wait()
	require.NoError(t, sink.Close())

	assert.Len(t, readLines(t, filepath.Join(dir, "2030-05-06.log")), 20)
}

func TestMemorySink(t *testing.T) {
	m := NewMemorySink()
	ctx := context.Background()
	_ = m.Record(ctx, Event{TraceID: "x", Kind: KindUserInput})
	_ = m.Record(ctx, Event{TraceID: "y", Kind: KindUserInput})
	_ = m.Record(ctx, Event{TraceID: "x", Kind: KindSecurityBlock})

	assert.Len(t, m.Events(), 3)
	assert.Equal(t, []Kind{KindUserInput, KindSecurityBlock}, m.Kinds("x"))
	assert.False(t, m.Closed())
	require.NoError(t, m.Close())
	assert.True(t, m.Closed())
}

func TestDiscard(t *testing.T) {
	assert.NoError(t, Discard.Record(context.Background(), Event{}))
	assert.NoError(t, Discard.Close())
}
