package tracking

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nabekah/farmkonnect-tracking/internal/domain"
)

func TestClientWriter_EnqueueAfterStopIsDropped(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, clockwork.NewRealClock())
	assert.True(t, cw.enqueue([]byte(`{}`)))

	cw.stop()
	assert.False(t, cw.enqueue([]byte(`{}`)), "stopped writer must drop payloads")
}

func TestClientWriter_EnqueueFullBufferIsDropped(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, clockwork.NewRealClock())
	t.Cleanup(func() { cw.stop() })

	// The client never reads and the buffer is bounded; eventually the
	// enqueue fails instead of blocking the caller.
	dropped := false
	for i := 0; i < messageBufferSize*100; i++ {
		if !cw.enqueue(make([]byte, 64*1024)) {
			dropped = true
			break
		}
	}
	assert.True(t, dropped, "a saturated writer must report drops, not block")
}

func TestClientWriter_IdleTimeout(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, fakeClock)
	t.Cleanup(func() { cw.stop() })

	// Initially not idle
	assert.False(t, cw.checkIdleTimeout())

	// Advance clock to the warning threshold
	fakeClock.Advance(idleWarningTime)
	assert.False(t, cw.checkIdleTimeout(), "should not disconnect at warning threshold")

	cw.activityMutex.Lock()
	warningSent := cw.warningSent
	cw.activityMutex.Unlock()
	assert.True(t, warningSent, "warning should be sent")

	// Advance beyond the idle timeout
	fakeClock.Advance(1*time.Minute + 10*time.Second)
	assert.True(t, cw.checkIdleTimeout(), "connection should be marked for disconnect")
}

func TestClientWriter_IdleWarningOnTheWire(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, fakeClock)
	t.Cleanup(func() { cw.stop() })

	// The ping ticker fires after Advance and the run loop sends the warning
	fakeClock.BlockUntil(1)
	fakeClock.Advance(idleWarningTime)

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)

	var warning domain.WarningMessage
	require.NoError(t, json.Unmarshal(data, &warning))
	assert.Equal(t, "warning", warning.Type)
	assert.Contains(t, warning.Message, "idle")
}

func TestClientWriter_ActivityResetsIdleTimer(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, fakeClock)
	t.Cleanup(func() { cw.stop() })

	fakeClock.Advance(3 * time.Minute)
	cw.recordActivity()

	// 6 minutes from start, but only 3 from the recorded activity
	fakeClock.Advance(3 * time.Minute)
	assert.False(t, cw.checkIdleTimeout(), "activity should reset the idle timer")

	fakeClock.Advance(3 * time.Minute)
	assert.True(t, cw.checkIdleTimeout(), "should time out relative to last activity")
}

func TestClientWriter_StopIdempotent(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, clockwork.NewRealClock())

	cw.stop()
	cw.stop()
	cw.stop()
}

func TestClientWriter_ConcurrentStop(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, clockwork.NewRealClock())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cw.stop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("concurrent stop calls deadlocked")
	}
}

func TestClientWriter_DeliversMessages(t *testing.T) {
	server, client := newTestConnPair(t)
	t.Cleanup(func() { client.Close() })

	cw := newClientWriter(server, clockwork.NewRealClock())
	t.Cleanup(func() { cw.stop() })

	require.True(t, cw.enqueue([]byte(`{"type":"pong"}`)))

	client.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))
}
