package pool

import (
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/relaypool-hq/relaypool/pkg/models"
)

func makeIntent(seq uint64, amount int64) models.Intent {
	return models.Intent{
		Sender:     common.HexToAddress(fmt.Sprintf("0x%040x", seq+1)),
		Receiver:   common.HexToAddress(fmt.Sprintf("0x%040x", seq+1000)),
		Amount:     big.NewInt(amount),
		Sequence:   seq,
		ReceivedAt: time.Now(),
	}
}

func TestEnqueueReturnsSize(t *testing.T) {
	p := New()

	assert.Equal(t, 1, p.Enqueue(makeIntent(0, 100)))
	assert.Equal(t, 2, p.Enqueue(makeIntent(1, 200)))
	assert.Equal(t, 2, p.Size())
}

func TestDrainAllPreservesOrder(t *testing.T) {
	p := New()
	for i := uint64(0); i < 5; i++ {
		p.Enqueue(makeIntent(i, int64(i)*10))
	}

	drained := p.DrainAll()
	assert.Len(t, drained, 5)
	assert.Equal(t, 0, p.Size())
	for i, intent := range drained {
		assert.Equal(t, uint64(i), intent.Sequence, "drain must preserve enqueue order")
	}

	// Draining an empty pool returns an empty slice, not nil panic
	assert.Empty(t, p.DrainAll())
}

func TestRestoreToFrontGoesAheadOfNewerIntents(t *testing.T) {
	p := New()
	p.Enqueue(makeIntent(0, 10))
	p.Enqueue(makeIntent(1, 20))

	batch := p.DrainAll()
	assert.Len(t, batch, 2)

	// New intents arrive while the failed batch is in flight
	p.Enqueue(makeIntent(2, 30))

	size := p.RestoreToFront(batch)
	assert.Equal(t, 3, size)

	items := p.Items()
	assert.Equal(t, uint64(0), items[0].Sequence)
	assert.Equal(t, uint64(1), items[1].Sequence)
	assert.Equal(t, uint64(2), items[2].Sequence)
}

func TestRestoreEmptyBatchIsNoop(t *testing.T) {
	p := New()
	p.Enqueue(makeIntent(0, 10))

	assert.Equal(t, 1, p.RestoreToFront(nil))
	assert.Equal(t, 1, p.RestoreToFront([]models.Intent{}))
}

func TestItemsIsACopy(t *testing.T) {
	p := New()
	p.Enqueue(makeIntent(0, 100))

	items := p.Items()
	items[0].Amount.SetInt64(999999)
	items[0].Sequence = 42

	fresh := p.Items()
	assert.Equal(t, int64(100), fresh[0].Amount.Int64(), "mutating a snapshot must not affect the pool")
	assert.Equal(t, uint64(0), fresh[0].Sequence)
}

// TestConcurrentDrainExactlyOnce verifies that two racing drains never both
// observe the same intent.
func TestConcurrentDrainExactlyOnce(t *testing.T) {
	const producers = 8
	const perProducer = 200

	p := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]int)

	// Drain continuously while producers enqueue
	done := make(chan struct{})
	drainers := 4
	for d := 0; d < drainers; d++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				batch := p.DrainAll()
				if len(batch) > 0 {
					mu.Lock()
					for _, intent := range batch {
						seen[intent.Sequence]++
					}
					mu.Unlock()
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	var producerWg sync.WaitGroup
	for i := 0; i < producers; i++ {
		producerWg.Add(1)
		go func(worker int) {
			defer producerWg.Done()
			for j := 0; j < perProducer; j++ {
				seq := uint64(worker*perProducer + j)
				p.Enqueue(makeIntent(seq, 1))
			}
		}(i)
	}

	producerWg.Wait()
	close(done)
	wg.Wait()

	// Final sweep for anything left behind
	for _, intent := range p.DrainAll() {
		seen[intent.Sequence]++
	}

	assert.Len(t, seen, producers*perProducer, "no intent may be lost")
	for seq, count := range seen {
		assert.Equal(t, 1, count, "intent %d drained %d times", seq, count)
	}
}
