package models

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status represents the overall relayer status
type Status string

const (
	// StatusIdle means the pool is empty and no execution is running
	StatusIdle Status = "IDLE"
	// StatusPooling means intents are waiting for a trigger
	StatusPooling Status = "POOLING"
	// StatusExecuting means a batch is being drained and submitted
	StatusExecuting Status = "EXECUTING"
	// StatusError means the last execution failed and the cooldown is active
	StatusError Status = "ERROR"
)

// Intent represents a confirmed value-transfer request awaiting batched settlement
type Intent struct {
	Sender      common.Address `json:"sender"`
	Receiver    common.Address `json:"receiver"`
	Amount      *big.Int       `json:"amount"`
	Sequence    uint64         `json:"sequence"`
	ReceivedAt  time.Time      `json:"received_at"`
	TxHash      common.Hash    `json:"tx_hash"`
	BlockHeight uint64         `json:"block_height"`
}

// Copy returns a value copy of the intent with its own Amount instance
func (i Intent) Copy() Intent {
	out := i
	if i.Amount != nil {
		out.Amount = new(big.Int).Set(i.Amount)
	}
	return out
}

// BatchSummary describes the most recently completed settlement batch
type BatchSummary struct {
	SettlementTx common.Hash `json:"settlement_tx"`
	Size         int         `json:"size"`
	TotalAmount  *big.Int    `json:"total_amount"`
	CompletedAt  time.Time   `json:"completed_at"`
}

// PredictorSnapshot describes the current state of the fee predictor
type PredictorSnapshot struct {
	Ready      bool    `json:"ready"`
	LatestFee  string  `json:"latest_fee"`
	Confidence float64 `json:"confidence"`
	Cutoff     float64 `json:"cutoff"`
}

// Snapshot is a point-in-time copy of the relayer state
type Snapshot struct {
	Status                Status            `json:"status"`
	PooledIntents         []Intent          `json:"pooled_intents"`
	LastBatch             *BatchSummary     `json:"last_batch,omitempty"`
	Predictor             PredictorSnapshot `json:"predictor"`
	TotalBatchesExecuted  uint64            `json:"total_batches_executed"`
	TotalIntentsProcessed uint64            `json:"total_intents_processed"`
	LastError             string            `json:"last_error,omitempty"`
	StartedAt             time.Time         `json:"started_at"`
}
