package predictor

import (
	"math"
	"math/rand"
)

// Tuning knobs for the online regressor. These are arbitrary starting points,
// not protocol values; the contract callers rely on is only that the score
// rises when recent fees sit below the window trend.
const (
	// HiddenSize is the width of the single hidden layer
	HiddenSize = 8

	// LearningRate is the gradient descent step size
	LearningRate = 0.35

	// TrainIterations is the number of forward+backward passes per training call
	TrainIterations = 24

	// initWeightSpan bounds the random initial weights to keep the untrained
	// output near 0.5
	initWeightSpan = 0.5
)

// feeModel is a minimal two-layer feed-forward regressor with logistic
// squashing at each layer. It maps a normalized fee window to a scalar in
// (0, 1). Parameters live only in memory, the model retrains from scratch on
// every process start.
type feeModel struct {
	inputs int

	hiddenWeights [][]float64 // [HiddenSize][inputs]
	hiddenBias    []float64
	outWeights    []float64 // [HiddenSize]
	outBias       float64
}

func newFeeModel(inputs int, rng *rand.Rand) *feeModel {
	m := &feeModel{
		inputs:        inputs,
		hiddenWeights: make([][]float64, HiddenSize),
		hiddenBias:    make([]float64, HiddenSize),
		outWeights:    make([]float64, HiddenSize),
	}
	for j := 0; j < HiddenSize; j++ {
		m.hiddenWeights[j] = make([]float64, inputs)
		for i := 0; i < inputs; i++ {
			m.hiddenWeights[j][i] = randWeight(rng)
		}
		m.hiddenBias[j] = randWeight(rng)
		m.outWeights[j] = randWeight(rng)
	}
	m.outBias = randWeight(rng)
	return m
}

func randWeight(rng *rand.Rand) float64 {
	return (rng.Float64()*2 - 1) * initWeightSpan
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// forward runs one forward pass and returns the hidden activations and output.
func (m *feeModel) forward(input []float64) ([]float64, float64) {
	hidden := make([]float64, HiddenSize)
	for j := 0; j < HiddenSize; j++ {
		sum := m.hiddenBias[j]
		for i := 0; i < m.inputs; i++ {
			sum += m.hiddenWeights[j][i] * input[i]
		}
		hidden[j] = sigmoid(sum)
	}

	out := m.outBias
	for j := 0; j < HiddenSize; j++ {
		out += m.outWeights[j] * hidden[j]
	}
	return hidden, sigmoid(out)
}

// Predict returns the model output for a normalized window.
func (m *feeModel) Predict(input []float64) float64 {
	_, out := m.forward(input)
	return out
}

// Train runs TrainIterations gradient descent updates pulling the model output
// toward target for the given input. Squared error loss, full backprop through
// both layers. This is deliberately cheap online learning, not a batch fit.
func (m *feeModel) Train(input []float64, target float64) {
	for iter := 0; iter < TrainIterations; iter++ {
		hidden, out := m.forward(input)

		deltaOut := 2 * (out - target) * out * (1 - out)

		// Hidden deltas use the pre-update output weights
		deltaHidden := make([]float64, HiddenSize)
		for j := 0; j < HiddenSize; j++ {
			deltaHidden[j] = deltaOut * m.outWeights[j] * hidden[j] * (1 - hidden[j])
		}

		for j := 0; j < HiddenSize; j++ {
			m.outWeights[j] -= LearningRate * deltaOut * hidden[j]
		}
		m.outBias -= LearningRate * deltaOut

		for j := 0; j < HiddenSize; j++ {
			for i := 0; i < m.inputs; i++ {
				m.hiddenWeights[j][i] -= LearningRate * deltaHidden[j] * input[i]
			}
			m.hiddenBias[j] -= LearningRate * deltaHidden[j]
		}
	}
}
