package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast"
	"github.com/ardanlabs/powchain/foundation/blockchain/broadcast/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ broadcast.Publisher = (*memory.Bus)(nil)
var _ broadcast.Subscriber = (*memory.Bus)(nil)

func TestBus_FanOutInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := memory.New()

	var (
		mu       sync.Mutex
		received = map[int][]string{}
		wg       sync.WaitGroup
	)

	for i := 0; i < 2; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Subscribe(ctx, func(ctx context.Context, data []byte) {
				mu.Lock()
				received[i] = append(received[i], string(data))
				mu.Unlock()
			})
		}()
	}

	require.Eventually(t, func() bool { return bus.Subscribers() == 2 }, time.Second, time.Millisecond)

	for _, msg := range []string{"a", "b", "c"} {
		require.NoError(t, bus.Publish(ctx, []byte(msg)))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received[0]) == 3 && len(received[1]) == 3
	}, time.Second, time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, received[0])
	assert.Equal(t, []string{"a", "b", "c"}, received[1])
	mu.Unlock()

	cancel()
	wg.Wait()
	assert.Zero(t, bus.Subscribers())
}
