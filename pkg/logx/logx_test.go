package logx

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	kit "mediabot/internal/transport"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	assert.True(t, l.IsZero())
	l.Info("dropped", String("k", "v"))
	assert.False(t, Nop().IsZero())
}

func TestWithAppendsFixedFields(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := FromZerolog(zerolog.New(&buf)).With(String("component", "fanout"))
	l.Info("delivered", Int("recipients", 3), Err(nil))

	var m map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &m))
	assert.Equal(t, "fanout", m["component"])
	assert.Equal(t, float64(3), m["recipients"])
	assert.Equal(t, "delivered", m["message"])
	assert.Contains(t, m["caller"], "logx_test.go:")
	assert.NotContains(t, m, "err")
}

func TestServiceJSONConsoleFollowsApply(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	svc, log := newService(Config{Level: "warn", Console: true, JSON: true}, &buf)
	defer svc.Close()

	log.Info("hidden")
	assert.Zero(t, buf.Len())

	svc.Apply(Config{Level: "debug", Console: true, JSON: true})
	log.Debug("shown")
	assert.Contains(t, buf.String(), `"message":"shown"`)
}

func TestFormatChatLine(t *testing.T) {
	t.Parallel()

	got := formatChatLine([]byte(`{"level":"error","time":"x","message":"send failed","chat_id":42,"err":"boom"}` + "\n"))
	assert.Equal(t, "[ERROR] send failed\n- chat_id=42\n- err=boom", got)
	assert.Equal(t, "plain", formatChatLine([]byte(" plain \n")))
}

type recordingSink struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingSink) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	r.mu.Lock()
	r.sent = append(r.sent, text)
	r.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func TestChatMirrorRespectsMinLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	svc, log := newService(Config{
		Level: "info", Console: true, JSON: true,
		Chat: ChatConfig{Enabled: true, ChatID: -100, MinLevel: "warn", RatePerSec: 100},
	}, &buf)
	defer svc.Close()
	sink := &recordingSink{}
	svc.SetChatSink(sink)

	log.Info("not mirrored")
	log.Warn("mirrored")

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
	sink.mu.Lock()
	assert.Contains(t, sink.sent[0], "[WARN] mirrored")
	sink.mu.Unlock()
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warning ", zerolog.InfoLevel))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("loud", zerolog.InfoLevel))
}
