package relayer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/metrics"
	"github.com/relaypool-hq/relaypool/pkg/models"
)

// TriggerExecution requests a batch execution. Idempotent: a trigger that
// finds the cooldown open, the pool empty, or an execution already in flight
// simply drops. Concurrent triggers collapse into at most one execution.
func (r *Relayer) TriggerExecution(reason string) {
	if r.cooldown.IsOpen() {
		r.logger.DebugWithScope(logger.Executor, "Dropping trigger (%s): cooling down after failure", reason)
		metrics.TriggersDropped.WithLabelValues("cooldown").Inc()
		return
	}

	r.mu.Lock()
	if r.executing {
		r.mu.Unlock()
		r.logger.DebugWithScope(logger.Executor, "Dropping trigger (%s): execution already in progress", reason)
		metrics.TriggersDropped.WithLabelValues("already_executing").Inc()
		return
	}
	if r.pool.Size() == 0 {
		r.mu.Unlock()
		return
	}
	r.executing = true
	r.status = models.StatusExecuting
	ctx := r.ctx
	r.mu.Unlock()

	r.logger.NoticeWithScope(logger.Executor, "Batch execution triggered: %s", reason)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.executeBatch(ctx)
	}()
}

// executeBatch drains the pool and submits one settlement call. Only the
// drain is atomic with respect to the pool, the vault interaction happens
// outside any lock. Runs to success-or-failure completion, there is no
// mid-execution cancellation.
func (r *Relayer) executeBatch(ctx context.Context) {
	startTime := time.Now()

	batch := r.pool.DrainAll()
	if len(batch) == 0 {
		r.finishIdle()
		return
	}
	metrics.PooledIntents.Set(float64(r.pool.Size()))

	// Wide accumulator: the sum can exceed any fixed-width integer domain
	total := new(big.Int)
	receivers := make([]common.Address, len(batch))
	amounts := make([]*big.Int, len(batch))
	for i, intent := range batch {
		receivers[i] = intent.Receiver
		amounts[i] = intent.Amount
		total.Add(total, intent.Amount)
	}

	r.logger.InfoWithScope(logger.Executor, "Executing batch of %d intents totaling %s units", len(batch), total.String())

	funds, err := r.vault.AvailableFunds(ctx)
	if err != nil {
		r.failBatch(batch, "funds_query", fmt.Errorf("failed to query vault funds: %v", err))
		return
	}
	if funds.Cmp(total) < 0 {
		r.failBatch(batch, "insufficient_funds",
			fmt.Errorf("vault funds %s below batch total %s", funds.String(), total.String()))
		return
	}

	txHash, err := r.vault.SubmitSettlement(ctx, receivers, amounts)
	if err != nil {
		r.failBatch(batch, "submission", fmt.Errorf("settlement submission failed: %v", err))
		return
	}

	if err := r.vault.WaitConfirmed(ctx, txHash); err != nil {
		r.failBatch(batch, "confirmation", fmt.Errorf("settlement %s not confirmed: %v", txHash.Hex(), err))
		return
	}

	r.completeBatch(txHash, batch, total, startTime)
}

// completeBatch records a successful settlement and leaves EXECUTING.
func (r *Relayer) completeBatch(txHash common.Hash, batch []models.Intent, total *big.Int, startTime time.Time) {
	summary := &models.BatchSummary{
		SettlementTx: txHash,
		Size:         len(batch),
		TotalAmount:  new(big.Int).Set(total),
		CompletedAt:  time.Now(),
	}

	r.mu.Lock()
	r.lastBatch = summary
	r.lastError = ""
	r.totalBatches++
	r.totalIntents += uint64(len(batch))
	r.executing = false
	if r.pool.Size() > 0 {
		r.status = models.StatusPooling
	} else {
		r.status = models.StatusIdle
	}
	r.mu.Unlock()

	metrics.BatchesExecuted.Inc()
	metrics.IntentsSettled.Add(float64(len(batch)))
	metrics.BatchSize.Observe(float64(len(batch)))
	metrics.ExecutionDuration.Observe(time.Since(startTime).Seconds())
	metrics.PooledIntents.Set(float64(r.pool.Size()))

	r.logger.NoticeWithScope(logger.Executor, "Batch settled: tx %s, %d intents, %s units in %v",
		txHash.Hex(), len(batch), total.String(), time.Since(startTime).Round(time.Millisecond))
}

// failBatch restores the drained intents at the pool head, records the error
// and opens the cooldown gate. The restored intents sit ahead of anything
// enqueued during the attempt so the oldest-waiting intents retry first.
func (r *Relayer) failBatch(batch []models.Intent, reason string, err error) {
	size := r.pool.RestoreToFront(batch)
	metrics.PooledIntents.Set(float64(size))
	metrics.ExecutionFailures.WithLabelValues(reason).Inc()

	r.mu.Lock()
	r.executing = false
	r.status = models.StatusError
	r.lastError = err.Error()
	r.mu.Unlock()

	r.cooldown.RecordFailure()

	r.logger.ErrorWithScope(logger.Executor, "Batch execution failed (%s), %d intents restored for retry: %v",
		reason, len(batch), err)
}

// finishIdle leaves EXECUTING after a drain found nothing to do.
func (r *Relayer) finishIdle() {
	r.mu.Lock()
	r.executing = false
	if r.pool.Size() > 0 {
		r.status = models.StatusPooling
	} else {
		r.status = models.StatusIdle
	}
	r.mu.Unlock()
}
