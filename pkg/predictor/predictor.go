// Package predictor maintains a sliding window of recent network fee samples
// and trains a small regressor online to score how favorable current
// conditions are for settlement. The score is directional, not an absolute
// fee forecast: lower fees relative to the recent trend push it toward 1.
package predictor

import (
	"math/big"
	"math/rand"
	"sync"
	"time"

	"github.com/relaypool-hq/relaypool/pkg/logger"
)

const (
	// DefaultWindowCapacity is the number of fee samples the predictor trains on
	DefaultWindowCapacity = 10

	// DefaultCutoff is the confidence score above which conditions count as favorable
	DefaultCutoff = 0.7

	// targetFloor and targetCeil clamp the training label
	targetFloor = 0.01
	targetCeil  = 0.99

	// targetGain scales the relative deviation of the latest sample from the
	// window mean into the training label
	targetGain = 2.5
)

// Predictor scores fee favorability from a fixed-capacity sample window.
// It starts COLD and becomes READY once the window first reaches capacity and
// a training pass has completed. Safe for concurrent use.
type Predictor struct {
	mu       sync.Mutex
	capacity int
	cutoff   float64
	window   []float64
	model    *feeModel
	ready    bool
	logger   logger.Logger
}

// New creates a predictor with the given window capacity and confidence cutoff.
func New(capacity int, cutoff float64, log logger.Logger) *Predictor {
	return newWithRand(capacity, cutoff, log, rand.New(rand.NewSource(time.Now().UnixNano())))
}

func newWithRand(capacity int, cutoff float64, log logger.Logger, rng *rand.Rand) *Predictor {
	if capacity <= 0 {
		capacity = DefaultWindowCapacity
	}
	if cutoff <= 0 || cutoff >= 1 {
		cutoff = DefaultCutoff
	}
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Predictor{
		capacity: capacity,
		cutoff:   cutoff,
		window:   make([]float64, 0, capacity),
		model:    newFeeModel(capacity, rng),
		logger:   log,
	}
}

// Cutoff returns the configured confidence cutoff.
func (p *Predictor) Cutoff() float64 {
	return p.cutoff
}

// Ready reports whether the predictor has collected a full window and trained.
func (p *Predictor) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ready
}

// LatestFee returns the most recently absorbed fee sample, or 0 if none.
func (p *Predictor) LatestFee() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.window) == 0 {
		return 0
	}
	return p.window[len(p.window)-1]
}

// AbsorbSample appends a fee sample, evicting the oldest when the window is at
// capacity, and runs one training pass once the window is full. Samples that
// are not finite positive numbers are dropped with a warning.
func (p *Predictor) AbsorbSample(fee float64) {
	if fee < 0 || fee != fee { // negative or NaN
		p.logger.ErrorWithScope(logger.Predictor, "Dropping malformed fee sample: %v", fee)
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.window) == p.capacity {
		p.window = append(p.window[1:], fee)
	} else {
		p.window = append(p.window, fee)
	}

	if len(p.window) < p.capacity {
		p.logger.DebugWithScope(logger.Predictor, "Collecting fee samples: %d/%d", len(p.window), p.capacity)
		return
	}

	p.train()
	if !p.ready {
		p.ready = true
		p.logger.NoticeWithScope(logger.Predictor, "Fee window full, predictor is ready")
	}
}

// AbsorbBigSample converts a wei-denominated fee to float64 and absorbs it.
func (p *Predictor) AbsorbBigSample(fee *big.Int) {
	if fee == nil {
		p.logger.ErrorWithScope(logger.Predictor, "Dropping nil fee sample")
		return
	}
	f, _ := new(big.Float).SetInt(fee).Float64()
	p.AbsorbSample(f)
}

// Score runs a forward pass over the normalized window and returns whether
// the confidence exceeds the cutoff along with the raw confidence. Before the
// predictor is READY it always returns (false, 0).
func (p *Predictor) Score() (bool, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ready {
		return false, 0.0
	}

	confidence := p.model.Predict(normalize(p.window))
	return confidence > p.cutoff, confidence
}

// train derives a single target label from the window and fits the model to
// it. The label is pulled toward targetCeil the further the latest sample
// sits below the window mean (cheap, execute) and toward targetFloor the
// further above (expensive, wait). Caller holds p.mu.
func (p *Predictor) train() {
	mean := 0.0
	for _, v := range p.window {
		mean += v
	}
	mean /= float64(len(p.window))

	latest := p.window[len(p.window)-1]

	deviation := 0.0
	if mean > 0 {
		deviation = (mean - latest) / mean
	}

	target := 0.5 + deviation*targetGain
	if target < targetFloor {
		target = targetFloor
	}
	if target > targetCeil {
		target = targetCeil
	}

	p.model.Train(normalize(p.window), target)
	p.logger.DebugWithScope(logger.Predictor, "Training pass complete (mean=%.2f latest=%.2f target=%.3f)", mean, latest, target)
}

// normalize maps the window into [0, 1] by min/max. A flat window (max==min)
// uses range 1 so every sample maps to 0.
func normalize(window []float64) []float64 {
	min, max := window[0], window[0]
	for _, v := range window[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	span := max - min
	if span == 0 {
		span = 1
	}

	out := make([]float64, len(window))
	for i, v := range window {
		out[i] = (v - min) / span
	}
	return out
}
