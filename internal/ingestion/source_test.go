package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsserver "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moxie-indexer/internal/config"
	"moxie-indexer/internal/event"
	"moxie-indexer/internal/watch"
)

func runJetStream(t *testing.T) *server.Server {
	t.Helper()

	opts := natsserver.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	s := natsserver.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s
}

func connect(t *testing.T, s *server.Server) jetstream.JetStream {
	t.Helper()

	nc, js, err := ConnectNATS(s.ClientURL(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return js
}

func natsConfig() config.NATSConfig {
	cfg := config.Default().NATS
	cfg.AckWait = time.Second
	return cfg
}

func transferJSON(logIndex uint64) []byte {
	return []byte(fmt.Sprintf(`{"kind":"Transfer","tx_hash":"0x%s","log_index":%d,"block":{"number":1,"timestamp":1700000000},`+
		`"address":"0x0000000000000000000000000000000000000070","params":{"from":"0x00000000000000000000000000000000000000a1","to":"0x00000000000000000000000000000000000000c0","value":"5"}}`,
		strings.Repeat("1", 64), logIndex))
}

// recordingHandler records events and cancels once it has seen want of them.
type recordingHandler struct {
	mu     sync.Mutex
	events []event.Event
	want   int
	fail   error
	cancel context.CancelFunc
}

func (h *recordingHandler) OnEvent(_ context.Context, ev event.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail != nil {
		return h.fail
	}
	h.events = append(h.events, ev)
	if len(h.events) == h.want {
		h.cancel()
	}
	return nil
}

func (h *recordingHandler) positions() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]uint64, 0, len(h.events))
	for _, ev := range h.events {
		out = append(out, ev.Header().LogIndex)
	}
	return out
}

func publish(t *testing.T, js jetstream.JetStream, data ...[]byte) {
	t.Helper()
	for _, d := range data {
		_, err := js.Publish(context.Background(), "moxie.events.transfer", d)
		require.NoError(t, err)
	}
}

func TestSource_DeliversInOrder(t *testing.T) {
	s := runJetStream(t)
	js := connect(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := &recordingHandler{want: 3, cancel: cancel}
	src, err := NewSource(ctx, js, natsConfig(), h, zerolog.Nop())
	require.NoError(t, err)

	publish(t, js, transferJSON(1), transferJSON(2), transferJSON(3))

	require.NoError(t, src.Run(ctx))
	assert.Equal(t, []uint64{1, 2, 3}, h.positions())
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "run ended by the handler, not the timeout")
}

func TestSource_DecodeErrorStops(t *testing.T) {
	s := runJetStream(t)
	js := connect(t, s)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	h := &recordingHandler{want: -1, cancel: cancel}
	src, err := NewSource(ctx, js, natsConfig(), h, zerolog.Nop())
	require.NoError(t, err)

	publish(t, js, []byte(`{"kind":"Transfer"`), transferJSON(2))

	err = src.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode message")
	assert.Empty(t, h.positions())
}

func TestSource_HandlerErrorStopsAndRedelivers(t *testing.T) {
	s := runJetStream(t)
	js := connect(t, s)
	cfg := natsConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	failing := &recordingHandler{fail: errors.New("store down"), cancel: cancel}
	src, err := NewSource(ctx, js, cfg, failing, zerolog.Nop())
	require.NoError(t, err)

	publish(t, js, transferJSON(1))
	err = src.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")

	// The same durable picks the nacked message up again.
	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()

	h := &recordingHandler{want: 1, cancel: cancel2}
	src, err = NewSource(ctx2, js, cfg, h, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, src.Run(ctx2))
	assert.Equal(t, []uint64{1}, h.positions())
}

// goroutinesIn counts live goroutines whose stack passes through fn.
func goroutinesIn(fn string) int {
	buf := make([]byte, 1<<20)
	buf = buf[:runtime.Stack(buf, true)]
	n := 0
	for _, g := range strings.Split(string(buf), "\n\n") {
		if strings.Contains(g, fn) {
			n++
		}
	}
	return n
}

func TestSource_HandlerErrorLeavesNothingRunning(t *testing.T) {
	s := runJetStream(t)
	js := connect(t, s)

	// ctx stays live after Run returns.
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	failing := &recordingHandler{fail: errors.New("store down"), cancel: func() {}}
	src, err := NewSource(ctx, js, natsConfig(), failing, zerolog.Nop())
	require.NoError(t, err)

	publish(t, js, transferJSON(1))
	require.Error(t, src.Run(ctx))
	assert.Zero(t, goroutinesIn("ingestion.(*Source).Run"))
}

func TestWatchPublisher_Dedupes(t *testing.T) {
	s := runJetStream(t)
	js := connect(t, s)
	ctx := context.Background()
	cfg := natsConfig()

	pub, err := NewWatchPublisher(ctx, js, cfg.WatchStream, cfg.WatchSubject)
	require.NoError(t, err)

	req := watch.Request{Template: watch.TemplateSubjectToken, Address: "0x00000000000000000000000000000000000000aa", Block: 7}
	require.NoError(t, pub.Register(ctx, req))
	require.NoError(t, pub.Register(ctx, req))
	require.NoError(t, pub.Register(ctx, watch.Request{Template: watch.TemplateTokenLockWallet, Address: req.Address, Block: 9}))

	stream, err := js.Stream(ctx, cfg.WatchStream)
	require.NoError(t, err)
	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)

	msg, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	var got watch.Request
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, req, got)
}
