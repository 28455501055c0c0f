// Package relayer implements the intent pooling and batch execution engine.
// Two independent producers feed it: confirmed intent registrations and
// per-block fee samples. Each feed event re-evaluates the dual trigger
// (pool size threshold, predictor confidence) and at most one batch
// execution runs at any time.
package relayer

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/circuitbreaker"
	"github.com/relaypool-hq/relaypool/pkg/config"
	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/metrics"
	"github.com/relaypool-hq/relaypool/pkg/models"
	"github.com/relaypool-hq/relaypool/pkg/pool"
	"github.com/relaypool-hq/relaypool/pkg/predictor"
	"github.com/relaypool-hq/relaypool/pkg/vault"
)

// feedBuffer sizes the intent and fee channels between the vault
// subscriptions and the engine
const feedBuffer = 100

// Relayer owns all mutable engine state: the pool, the predictor, the
// executing flag and the cumulative counters. All mutation goes through the
// documented operations, there are no package-level globals.
type Relayer struct {
	cfg       *config.Config
	vault     vault.Vault
	pool      *pool.IntentPool
	predictor *predictor.Predictor
	cooldown  *circuitbreaker.CircuitBreaker
	logger    logger.Logger

	// mu guards status, executing, lastBatch, lastError and the counters.
	// It is never held across vault calls.
	mu           sync.Mutex
	executing    bool
	status       models.Status
	lastBatch    *models.BatchSummary
	lastError    string
	totalBatches uint64
	totalIntents uint64
	startedAt    time.Time

	ctx      context.Context
	stopOnce sync.Once
	stopCh   chan struct{}
	subs     []vault.Subscription
	wg       sync.WaitGroup
}

// New creates the relayer engine around the given vault collaborator.
func New(cfg *config.Config, v vault.Vault, log logger.Logger) *Relayer {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	r := &Relayer{
		cfg:       cfg,
		vault:     v,
		pool:      pool.New(),
		predictor: predictor.New(cfg.FeeWindow, cfg.ConfidenceCutoff, log),
		cooldown: circuitbreaker.New(
			cfg.Cooldown.Enabled,
			cfg.Cooldown.Threshold,
			cfg.Cooldown.Window,
			cfg.Cooldown.ResetTimeout,
			log,
		),
		logger: log,
		status: models.StatusIdle,
		ctx:    context.Background(),
		stopCh: make(chan struct{}),
	}

	// Proactive retry: when the cooldown elapses the engine re-evaluates its
	// triggers instead of waiting for the next external event
	r.cooldown.SetResetCallback(r.onCooldownExpired)

	return r
}

// Cooldown exposes the execution cooldown gate for the admin surface.
func (r *Relayer) Cooldown() *circuitbreaker.CircuitBreaker {
	return r.cooldown
}

// Start performs the advisory identity check and begins consuming both feeds.
func (r *Relayer) Start(ctx context.Context) error {
	r.mu.Lock()
	r.ctx = ctx
	r.startedAt = time.Now()
	r.mu.Unlock()

	r.checkRelayerIdentity(ctx)

	intentCh := make(chan models.Intent, feedBuffer)
	intentSub, err := r.vault.WatchIntents(ctx, intentCh)
	if err != nil {
		return err
	}
	r.subs = append(r.subs, intentSub)

	feeCh := make(chan *big.Int, feedBuffer)
	feeSub, err := r.vault.WatchFees(ctx, feeCh)
	if err != nil {
		intentSub.Unsubscribe()
		return err
	}
	r.subs = append(r.subs, feeSub)

	r.wg.Add(2)
	go r.consumeIntents(ctx, intentCh, intentSub)
	go r.consumeFees(ctx, feeCh, feeSub)

	r.logger.Notice("Relayer started (batch threshold %d, confidence cutoff %.2f)",
		r.cfg.BatchThreshold, r.cfg.ConfidenceCutoff)
	return nil
}

// Stop ceases consuming both feeds. Idempotent. Pooled intents are not
// flushed, the vault retains the authoritative record of the deposits.
func (r *Relayer) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		for _, sub := range r.subs {
			sub.Unsubscribe()
		}
		r.wg.Wait()
		r.logger.Notice("Relayer stopped, %d intents left pooled", r.pool.Size())
	})
}

// checkRelayerIdentity compares the configured relayer identity against the
// vault's authorized executor. Advisory only: a mismatch is expected in local
// environments, real submissions would fail at the vault and follow the
// normal failure path.
func (r *Relayer) checkRelayerIdentity(ctx context.Context) {
	authorized, err := r.vault.AuthorizedRelayer(ctx)
	if err != nil {
		r.logger.Error("Could not verify authorized relayer: %v", err)
		return
	}

	if r.cfg.RelayerAddress != (common.Address{}) && r.cfg.RelayerAddress != authorized {
		r.logger.Notice("Relayer identity %s does not match vault's authorized relayer %s, settlements may be rejected",
			r.cfg.RelayerAddress.Hex(), authorized.Hex())
	}
}

// consumeIntents feeds confirmed intent registrations into the pool.
func (r *Relayer) consumeIntents(ctx context.Context, intents <-chan models.Intent, sub vault.Subscription) {
	defer r.wg.Done()
	for {
		select {
		case intent := <-intents:
			r.addIntent(intent)
		case err := <-sub.Err():
			if err != nil {
				r.logger.Error("Intent feed terminated: %v", err)
			}
			return
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// consumeFees feeds fee samples into the predictor.
func (r *Relayer) consumeFees(ctx context.Context, fees <-chan *big.Int, sub vault.Subscription) {
	defer r.wg.Done()
	for {
		select {
		case fee := <-fees:
			r.absorbFee(fee)
		case err := <-sub.Err():
			if err != nil {
				r.logger.Error("Fee feed terminated: %v", err)
			}
			return
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// addIntent enqueues an intent and evaluates the size trigger. Never blocks
// on an in-flight execution.
func (r *Relayer) addIntent(intent models.Intent) {
	size := r.pool.Enqueue(intent)
	metrics.PooledIntents.Set(float64(size))

	r.mu.Lock()
	if r.status == models.StatusIdle {
		r.status = models.StatusPooling
	}
	r.mu.Unlock()

	r.logger.InfoWithScope(logger.Pool, "Pooled intent %d from %s (%s units), pool size %d",
		intent.Sequence, intent.Sender.Hex(), intent.Amount.String(), size)

	// Hard ceiling: threshold overrides the predictor so latency stays
	// bounded regardless of fee conditions
	if size >= r.cfg.BatchThreshold {
		r.TriggerExecution("size threshold")
	}
}

// absorbFee feeds one sample to the predictor and evaluates the adaptive
// trigger.
func (r *Relayer) absorbFee(fee *big.Int) {
	if fee == nil {
		r.logger.ErrorWithScope(logger.Predictor, "Dropping nil fee sample")
		return
	}

	feeFloat, _ := new(big.Float).SetInt(fee).Float64()
	metrics.LatestFeeSample.Set(feeFloat)

	r.predictor.AbsorbBigSample(fee)

	favorable, confidence := r.predictor.Score()
	metrics.PredictorConfidence.Set(confidence)

	if favorable && r.pool.Size() > 0 {
		r.logger.InfoWithScope(logger.Predictor, "Favorable fee regime (confidence %.3f > %.2f)",
			confidence, r.cfg.ConfidenceCutoff)
		r.TriggerExecution("fee confidence")
	}
}

// onCooldownExpired runs when the post-failure cooldown elapses. It clears
// the sticky ERROR status and re-evaluates both triggers so a stalled pool is
// retried even if no further external events arrive.
func (r *Relayer) onCooldownExpired() {
	r.mu.Lock()
	if r.status == models.StatusError && !r.executing {
		if r.pool.Size() > 0 {
			r.status = models.StatusPooling
		} else {
			r.status = models.StatusIdle
		}
	}
	r.mu.Unlock()

	size := r.pool.Size()
	if size == 0 {
		return
	}

	if size >= r.cfg.BatchThreshold {
		r.TriggerExecution("size threshold after cooldown")
		return
	}
	if favorable, _ := r.predictor.Score(); favorable {
		r.TriggerExecution("fee confidence after cooldown")
	}
}
