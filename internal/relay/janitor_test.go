package relay

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testJanitor(t *testing.T, clk clock.Clock, reg *Registry) *Janitor {
	t.Helper()
	return NewJanitor(reg, zap.NewNop(), clk, DefaultTimeouts())
}

func TestJanitorReapsTerminalAfterGrace(t *testing.T) {
	clk := clock.NewMock()
	reg := testRegistry(t, clk)
	j := testJanitor(t, clk, reg)

	rec := claimedRecord(t, reg)
	rec.Cancel(KindPeerDisconnected)

	// Внутри льготного окна запись ещё находима
	clk.Add(time.Second)
	j.Sweep()
	_, ok := reg.Get(rec.ID)
	assert.True(t, ok)

	clk.Add(5 * time.Second)
	j.Sweep()
	_, ok = reg.Get(rec.ID)
	assert.False(t, ok)
}

func TestJanitorCancelsIdleSenderReady(t *testing.T) {
	clk := clock.NewMock()
	reg := testRegistry(t, clk)
	j := testJanitor(t, clk, reg)

	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
	require.NoError(t, err)
	require.NoError(t, rec.MarkSenderReady())

	// 10 минут никто не захватывает передачу
	clk.Add(9 * time.Minute)
	j.Sweep()
	assert.Equal(t, PhaseSenderReady, rec.Phase())

	clk.Add(2 * time.Minute)
	j.Sweep()
	assert.Equal(t, PhaseCancelled, rec.Phase())
	assert.Equal(t, KindTimeout, rec.CancelKind())
	_, ok := reg.Get(rec.ID)
	assert.False(t, ok)

	// Живые сессии видят остановку через done
	select {
	case <-rec.Done():
	default:
		t.Fatal("done channel must be closed after janitor cancellation")
	}
}

func TestJanitorCancelsStalledClaim(t *testing.T) {
	clk := clock.NewMock()
	reg := testRegistry(t, clk)
	j := testJanitor(t, clk, reg)

	rec := claimedRecord(t, reg)

	// claimed без перехода в streaming живет не дольше 30 секунд
	clk.Add(31 * time.Second)
	j.Sweep()
	assert.Equal(t, PhaseCancelled, rec.Phase())
}

func TestJanitorKeepsActiveStream(t *testing.T) {
	clk := clock.NewMock()
	reg := testRegistry(t, clk)
	j := testJanitor(t, clk, reg)

	rec := claimedRecord(t, reg)
	require.NoError(t, rec.PushChunk(context.Background(), []byte("x")))

	// Активность продлевает жизнь: толкаем чанк каждые 4 минуты
	for i := 0; i < 3; i++ {
		clk.Add(4 * time.Minute)
		j.Sweep()
		require.Equal(t, PhaseStreaming, rec.Phase())
		<-rec.Chunks()
		require.NoError(t, rec.PushChunk(context.Background(), []byte("x")))
	}

	// Пять минут тишины - отмена
	clk.Add(6 * time.Minute)
	j.Sweep()
	assert.Equal(t, PhaseCancelled, rec.Phase())
}

func TestJanitorRunStopsOnContextCancel(t *testing.T) {
	clk := clock.NewMock()
	reg := testRegistry(t, clk)
	j := testJanitor(t, clk, reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		j.Run(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("janitor must stop when context is cancelled")
	}
}
