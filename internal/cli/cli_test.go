package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roombot/internal/booking"
	"github.com/soyeahso/roombot/internal/guardrail"
	"github.com/soyeahso/roombot/internal/logging"
	"github.com/soyeahso/roombot/internal/store"
)

// isolate points roombot at a fresh home directory and clears variables
// that would otherwise leak into the loaded config.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("ROOMBOT_HOME", home)
	t.Setenv("ROOMBOT_TIMEZONE", "UTC")
	for _, k := range []string{
		"ROOMBOT_STORE_DRIVER", "DATABASE_URL", "ROOMBOT_GATEWAY_PORT", "ROOMBOT_GATEWAY_BIND", "ROOMBOT_LLM_PRIMARY",
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "SLACK_BOT_TOKEN", "SLACK_APP_TOKEN",
	} {
		t.Setenv(k, "")
	}
	return home
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--log-level", "silent"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestParseValue(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"19000", 19000},
		{"-3", -3},
		{"0.5", 0.5},
		{"10:00", "10:00"},
		{"Europe/Berlin", "Europe/Berlin"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseValue(tt.in))
		})
	}
}

func TestPrintValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printValue(&buf, map[string]any{"port": 18790}))
	assert.Equal(t, "port: 18790\n", buf.String())

	buf.Reset()
	require.NoError(t, printValue(&buf, "loopback"))
	assert.Equal(t, "loopback\n", buf.String())
}

func TestVersionCmd(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "roombot")
}

func TestConfigCmd(t *testing.T) {
	home := isolate(t)

	out, err := run(t, "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	_, err = run(t, "config", "set", "gateway.port", "19000")
	require.NoError(t, err)
	out, err = run(t, "config", "get", "gateway.port")
	require.NoError(t, err)
	assert.Equal(t, "19000\n", out)

	out, err = run(t, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Config OK")

	_, err = run(t, "config", "set", "gateway.auth.mode", "oauth")
	require.NoError(t, err)
	out, err = run(t, "config", "validate")
	require.Error(t, err)
	assert.Contains(t, out, "gateway.auth.mode")

	_, err = run(t, "config", "unset", "gateway.auth")
	require.NoError(t, err)
	_, err = run(t, "config", "get", "gateway.auth.mode")
	assert.Error(t, err)
}

func TestSeedCmd(t *testing.T) {
	isolate(t)

	out, err := run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "Seeded 4 rooms")

	out, err = run(t, "seed")
	require.NoError(t, err)
	assert.Contains(t, out, "already present")
}

func TestRoomsCmd(t *testing.T) {
	isolate(t)

	out, err := run(t, "rooms")
	require.NoError(t, err)
	for _, name := range []string{"Mate Center 304", "Mate Center 305", "Soul Cup Lounge", "Focus Room A"} {
		assert.Contains(t, out, name)
	}

	out, err = run(t, "rooms", "--date", "2030-05-06", "--start", "10:00", "--end", "11:00",
		"--min-capacity", "5", "--characteristic", "quiet")
	require.NoError(t, err)
	assert.Contains(t, out, "Mate Center 304")
	assert.NotContains(t, out, "Soul Cup Lounge")
	assert.NotContains(t, out, "Focus Room A")

	_, err = run(t, "rooms", "--date", "2030-05-06")
	assert.ErrorContains(t, err, "must be given together")

	_, err = run(t, "rooms", "--date", "2030-05-06", "--start", "11:00", "--end", "10:00")
	assert.Error(t, err)
}

func TestReservationsCmd(t *testing.T) {
	home := isolate(t)
	_, err := run(t, "seed")
	require.NoError(t, err)

	db, err := store.Open(filepath.Join(home, "data", "roombot.db"), logging.Nop())
	require.NoError(t, err)
	start := time.Date(2030, 5, 6, 10, 0, 0, 0, time.UTC)
	r, err := booking.NewEngine(db, logging.Nop()).CreateReservation(context.Background(), booking.NewReservation{
		RoomID:      1,
		RequesterID: "alice",
		Start:       start,
		End:         start.Add(time.Hour),
		Topic:       "Sprint planning",
	})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "reservations", "list", "--user", "alice", "--from", "2030-05-06", "--to", "2030-05-06")
	require.NoError(t, err)
	assert.Contains(t, out, "Sprint planning")
	assert.Contains(t, out, "2030-05-06 10:00-11:00")
	assert.Contains(t, out, "Mate Center 304")

	out, err = run(t, "reservations", "list", "--user", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "No reservations")

	_, err = run(t, "reservations", "list", "--status", "pending")
	assert.ErrorContains(t, err, "unknown status")

	out, err = run(t, "reservations", "cancel", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Canceled reservation 1")
	assert.Equal(t, int64(1), r.ID)

	_, err = run(t, "reservations", "cancel", "1")
	assert.ErrorContains(t, err, "already canceled")
	_, err = run(t, "reservations", "cancel", "99")
	assert.ErrorContains(t, err, "not found")
	_, err = run(t, "reservations", "cancel", "abc")
	assert.ErrorContains(t, err, "invalid reservation id")

	out, err = run(t, "reservations", "list", "--status", "canceled")
	require.NoError(t, err)
	assert.Contains(t, out, "CANCELED")
}

func TestAskCmd_NoProviders(t *testing.T) {
	isolate(t)
	_, err := run(t, "ask", "book", "a", "room")
	assert.ErrorIs(t, err, errNoProviders)
}

func TestStatusCmd(t *testing.T) {
	home := isolate(t)
	out, err := run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "not found (using defaults)")
	assert.Contains(t, out, "Gateway:  port=18790 bind=loopback auth=token")
	assert.Contains(t, out, "Timezone: UTC")
	assert.Contains(t, out, "LLM:      (none detected)")
	assert.Contains(t, out, fmt.Sprintf("Guard:    %d deny-list patterns", len(guardrail.DefaultPatterns)))

	cfgYAML := "guardrail:\n  extraPatterns:\n    - jailbreak\n"
	require.NoError(t, os.WriteFile(filepath.Join(home, "config.yaml"), []byte(cfgYAML), 0o600))
	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, fmt.Sprintf("Guard:    %d deny-list patterns", len(guardrail.DefaultPatterns)+1))
}
