package relay

import (
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryCreateAndGet(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())

	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 42})
	require.NoError(t, err)
	assert.True(t, ValidTransferID(rec.ID))

	got, ok := reg.Get(rec.ID)
	require.True(t, ok)
	assert.Same(t, rec, got)
	assert.Equal(t, "a.bin", got.Metadata().Filename)
	assert.Equal(t, uint64(42), got.Metadata().Size)

	_, ok = reg.Get("nonexistent-transfer-0000")
	assert.False(t, ok)
}

func TestRegistryClaimUnknown(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())
	_, err := reg.Claim("nonexistent-transfer-0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryClaimNotReady(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())
	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
	require.NoError(t, err)

	// Отправитель ещё не прислал hello
	waiting, err := reg.Claim(rec.ID)
	assert.ErrorIs(t, err, ErrNotReady)
	// Запись возвращается, чтобы было на чём ждать Ready()
	require.Same(t, rec, waiting)

	require.NoError(t, rec.MarkSenderReady())
	select {
	case <-rec.Ready():
	default:
		t.Fatal("ready channel must be closed after sender hello")
	}

	claimed, err := reg.Claim(rec.ID)
	require.NoError(t, err)
	assert.Same(t, rec, claimed)
}

func TestRegistryClaimTerminal(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())
	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
	require.NoError(t, err)
	require.NoError(t, rec.MarkSenderReady())
	rec.Cancel(KindTimeout)

	_, err = reg.Claim(rec.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

// Захват атомарен: из N конкурирующих получателей выигрывает ровно один
func TestRegistrySingleClaim(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())
	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
	require.NoError(t, err)
	require.NoError(t, rec.MarkSenderReady())

	const claimers = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, conflicts int

	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Claim(rec.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == ErrAlreadyClaimed:
				conflicts++
			default:
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, claimers-1, conflicts)
}

func TestRegistryRemove(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())
	rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
	require.NoError(t, err)
	require.Equal(t, 1, reg.Len())

	reg.Remove(rec.ID)
	_, ok := reg.Get(rec.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	// Повторное удаление безопасно
	reg.Remove(rec.ID)
}

// Идентификаторы разных передач не совпадают (см. также id_test)
func TestRegistryConcurrentCreate(t *testing.T) {
	reg := testRegistry(t, clock.NewMock())

	const creators = 16
	var wg sync.WaitGroup
	ids := make(chan string, creators)

	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec, err := reg.Create(Metadata{Filename: "a.bin", Size: 1})
			if err != nil {
				t.Error(err)
				return
			}
			ids <- rec.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
	assert.Equal(t, creators, reg.Len())
}
