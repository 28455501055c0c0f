package relayer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/models"
)

// Snapshot returns an immutable point-in-time copy of the relayer state.
// Status is recomputed from the current pool size unless the engine is
// EXECUTING or in ERROR, which stay sticky until the executor transitions
// out. The returned value shares nothing with live engine state.
func (r *Relayer) Snapshot() models.Snapshot {
	pooled := r.pool.Items()

	r.mu.Lock()
	defer r.mu.Unlock()

	status := r.status
	if status != models.StatusExecuting && status != models.StatusError {
		if len(pooled) > 0 {
			status = models.StatusPooling
		} else {
			status = models.StatusIdle
		}
	}

	var lastBatch *models.BatchSummary
	if r.lastBatch != nil {
		copied := *r.lastBatch
		copied.TotalAmount = new(big.Int).Set(r.lastBatch.TotalAmount)
		lastBatch = &copied
	}

	_, confidence := r.predictor.Score()

	return models.Snapshot{
		Status:        status,
		PooledIntents: pooled,
		LastBatch:     lastBatch,
		Predictor: models.PredictorSnapshot{
			Ready:      r.predictor.Ready(),
			LatestFee:  big.NewFloat(r.predictor.LatestFee()).Text('f', 0),
			Confidence: confidence,
			Cutoff:     r.predictor.Cutoff(),
		},
		TotalBatchesExecuted:  r.totalBatches,
		TotalIntentsProcessed: r.totalIntents,
		LastError:             r.lastError,
		StartedAt:             r.startedAt,
	}
}

// InjectIntent enqueues a synthetic intent, bypassing the vault feed. Demo
// and test harness only: the production enqueue path is the intent feed in
// Start. The sequence index is synthesized as totalIntentsProcessed plus the
// current pool size since the vault never saw this intent.
func (r *Relayer) InjectIntent(sender, receiver common.Address, amount *big.Int) models.Intent {
	r.mu.Lock()
	sequence := r.totalIntents + uint64(r.pool.Size())
	r.mu.Unlock()

	intent := models.Intent{
		Sender:     sender,
		Receiver:   receiver,
		Amount:     new(big.Int).Set(amount),
		Sequence:   sequence,
		ReceivedAt: time.Now(),
	}

	r.logger.NoticeWithScope(logger.Pool, "Injecting demo intent with synthesized sequence %d", sequence)
	r.addIntent(intent)
	return intent
}

// AbsorbFeeSample feeds one fee sample into the predictor outside the vault
// feed. Demo and test harness only.
func (r *Relayer) AbsorbFeeSample(fee *big.Int) {
	r.absorbFee(fee)
}
