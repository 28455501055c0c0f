package relayer_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"

	"github.com/relaypool-hq/relaypool/pkg/config"
	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/models"
	"github.com/relaypool-hq/relaypool/pkg/relayer"
	"github.com/relaypool-hq/relaypool/pkg/relayer/mocks"
)

const (
	eventuallyTimeout = 2 * time.Second
	eventuallyTick    = 10 * time.Millisecond
)

func testConfig() *config.Config {
	return &config.Config{
		BatchThreshold:   5,
		ConfidenceCutoff: config.ConfidenceCutoff,
		FeeWindow:        config.FeeWindowCapacity,
		GasMarginPercent: 20,
		Cooldown: config.CooldownConfig{
			Enabled:      true,
			Threshold:    1,
			Window:       time.Minute,
			ResetTimeout: time.Minute,
		},
	}
}

func startTestRelayer(t *testing.T, cfg *config.Config) (*relayer.Relayer, *mocks.MockVault) {
	t.Helper()

	v := mocks.NewMockVault()
	r := relayer.New(cfg, v, &logger.EmptyLogger{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	err := r.Start(ctx)
	assert.NoError(t, err)
	t.Cleanup(r.Stop)

	return r, v
}

func makeIntent(sequence uint64, amount int64) models.Intent {
	return models.Intent{
		Sender:     common.BigToAddress(big.NewInt(int64(sequence) + 1)),
		Receiver:   common.BigToAddress(big.NewInt(int64(sequence) + 100)),
		Amount:     big.NewInt(amount),
		Sequence:   sequence,
		ReceivedAt: time.Now(),
	}
}

func TestIntentsPoolBelowThreshold(t *testing.T) {
	r, v := startTestRelayer(t, testConfig())

	for i := uint64(0); i < 4; i++ {
		v.EmitIntent(makeIntent(i, 10))
	}

	assert.Eventually(t, func() bool {
		return len(r.Snapshot().PooledIntents) == 4
	}, eventuallyTimeout, eventuallyTick)

	snap := r.Snapshot()
	assert.Equal(t, models.StatusPooling, snap.Status)
	assert.Equal(t, 0, v.SubmitCount())
	assert.Equal(t, uint64(0), snap.TotalBatchesExecuted)
}

func TestSizeThresholdTriggersBatch(t *testing.T) {
	r, v := startTestRelayer(t, testConfig())

	for i := uint64(0); i < 5; i++ {
		v.EmitIntent(makeIntent(i, 10))
	}

	assert.Eventually(t, func() bool {
		return v.SubmitCount() == 1
	}, eventuallyTimeout, eventuallyTick)

	assert.Len(t, v.SubmittedReceivers[0], 5)
	assert.Len(t, v.SubmittedAmounts[0], 5)

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.Status == models.StatusIdle && snap.TotalBatchesExecuted == 1
	}, eventuallyTimeout, eventuallyTick)

	snap := r.Snapshot()
	assert.Empty(t, snap.PooledIntents)
	assert.Equal(t, uint64(5), snap.TotalIntentsProcessed)
	assert.NotNil(t, snap.LastBatch)
	assert.Equal(t, 5, snap.LastBatch.Size)
	assert.Equal(t, int64(50), snap.LastBatch.TotalAmount.Int64())
	assert.Len(t, v.ConfirmedTxs, 1)
}

func TestFailedBatchRestoresPoolAndRetriesAfterCooldown(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 2
	cfg.Cooldown.ResetTimeout = 100 * time.Millisecond
	r, v := startTestRelayer(t, cfg)

	v.SetSubmitErr(assert.AnError)

	v.EmitIntent(makeIntent(0, 10))
	v.EmitIntent(makeIntent(1, 20))

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.Status == models.StatusError && len(snap.PooledIntents) == 2
	}, eventuallyTimeout, eventuallyTick)
	assert.NotEmpty(t, r.Snapshot().LastError)

	// Once the cooldown elapses the engine retries on its own, no further
	// feed events needed
	v.SetSubmitErr(nil)

	assert.Eventually(t, func() bool {
		return v.SubmitCount() == 1
	}, eventuallyTimeout, eventuallyTick)

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.Status == models.StatusIdle && snap.TotalIntentsProcessed == 2
	}, eventuallyTimeout, eventuallyTick)
	assert.Empty(t, r.Snapshot().LastError)
}

func TestIntentsEnqueuedMidExecutionRetryBehindRestoredBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 3
	r, v := startTestRelayer(t, cfg)

	gate := make(chan struct{})
	v.SubmitGate = gate
	v.SetSubmitErr(assert.AnError)

	for i := uint64(0); i < 3; i++ {
		v.EmitIntent(makeIntent(i, 10))
	}

	assert.Eventually(t, func() bool {
		return r.Snapshot().Status == models.StatusExecuting
	}, eventuallyTimeout, eventuallyTick)

	// Arrives while the drained batch is mid-flight
	v.EmitIntent(makeIntent(3, 40))
	assert.Eventually(t, func() bool {
		return len(r.Snapshot().PooledIntents) == 1
	}, eventuallyTimeout, eventuallyTick)

	close(gate)

	assert.Eventually(t, func() bool {
		return len(r.Snapshot().PooledIntents) == 4
	}, eventuallyTimeout, eventuallyTick)

	// The restored intents sit ahead of the one that arrived mid-execution
	pooled := r.Snapshot().PooledIntents
	sequences := make([]uint64, len(pooled))
	for i, intent := range pooled {
		sequences[i] = intent.Sequence
	}
	assert.Equal(t, []uint64{0, 1, 2, 3}, sequences)
}

func TestFeeConfidenceTriggersBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 100
	cfg.ConfidenceCutoff = 0.5
	r, v := startTestRelayer(t, cfg)

	v.EmitIntent(makeIntent(0, 10))
	assert.Eventually(t, func() bool {
		return len(r.Snapshot().PooledIntents) == 1
	}, eventuallyTimeout, eventuallyTick)

	// A steadily falling fee regime pushes confidence past the cutoff
	for i := 0; i < 30; i++ {
		v.EmitFee(big.NewInt(int64(100_000 - i*2_000)))
	}

	assert.Eventually(t, func() bool {
		return v.SubmitCount() == 1
	}, eventuallyTimeout, eventuallyTick)

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.Status == models.StatusIdle && snap.TotalIntentsProcessed == 1
	}, eventuallyTimeout, eventuallyTick)
}

func TestInsufficientFundsFailsBatch(t *testing.T) {
	cfg := testConfig()
	cfg.BatchThreshold = 2
	r, v := startTestRelayer(t, cfg)

	v.Funds = big.NewInt(5)

	v.EmitIntent(makeIntent(0, 10))
	v.EmitIntent(makeIntent(1, 20))

	assert.Eventually(t, func() bool {
		snap := r.Snapshot()
		return snap.Status == models.StatusError && len(snap.PooledIntents) == 2
	}, eventuallyTimeout, eventuallyTick)

	assert.Equal(t, 0, v.SubmitCount())
	assert.Contains(t, r.Snapshot().LastError, "below batch total")
}
