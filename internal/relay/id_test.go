package relay

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransferIDFormat(t *testing.T) {
	id, err := NewTransferID()
	require.NoError(t, err)
	assert.Len(t, id, 24)
	assert.True(t, ValidTransferID(id))
}

func TestNewTransferIDUniqueness(t *testing.T) {
	const workers = 16
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id, err := NewTransferID()
				if err != nil {
					t.Error(err)
					return
				}
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate transfer id: %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*perWorker)
}

func TestValidTransferID(t *testing.T) {
	cases := []struct {
		id    string
		valid bool
	}{
		{"", false},
		{"short", false},
		{"abcdefghijklmnopqrstuv", true},           // 22 символа - нижняя граница
		{"abcdefghijklmnopqrstuvwxyz012345", true}, // 32 символа - верхняя граница
		{"abcdefghijklmnopqrstuvwxyz0123456", false},
		{"abcdefghijklmnopqrst-_", true},
		{"abcdefghijklmnopqrstu/", false},
		{"abcdefghijklmnopqrstu=", false},
		{"../../../../etc/passwd", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.valid, ValidTransferID(tc.id), "id %q", tc.id)
	}
}
