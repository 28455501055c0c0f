// Package mocks provides test doubles for the vault collaborator.
package mocks

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/models"
	"github.com/relaypool-hq/relaypool/pkg/vault"
)

// MockSubscription is a no-op vault.Subscription.
type MockSubscription struct {
	errCh chan error
	once  sync.Once
}

func NewMockSubscription() *MockSubscription {
	return &MockSubscription{errCh: make(chan error)}
}

func (s *MockSubscription) Unsubscribe() {
	s.once.Do(func() { close(s.errCh) })
}

func (s *MockSubscription) Err() <-chan error {
	return s.errCh
}

// MockVault is a configurable in-memory Vault for engine tests. Emit methods
// push events into the sinks registered by the watch calls.
type MockVault struct {
	mu sync.Mutex

	// Configurable behavior
	Funds          *big.Int
	FundsErr       error
	SubmitErr      error
	ConfirmErr     error
	AuthorizedAddr common.Address

	// SubmitGate, when non-nil, blocks SubmitSettlement until the gate is
	// closed. Lets tests enqueue intents mid-execution.
	SubmitGate chan struct{}

	// Recorded calls
	SubmittedReceivers [][]common.Address
	SubmittedAmounts   [][]*big.Int
	ConfirmedTxs       []common.Hash

	intentSink chan<- models.Intent
	feeSink    chan<- *big.Int
	submitSeq  uint64
}

var _ vault.Vault = (*MockVault)(nil)

func NewMockVault() *MockVault {
	return &MockVault{
		Funds: big.NewInt(1_000_000),
	}
}

func (m *MockVault) AvailableFunds(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FundsErr != nil {
		return nil, m.FundsErr
	}
	return new(big.Int).Set(m.Funds), nil
}

func (m *MockVault) AuthorizedRelayer(ctx context.Context) (common.Address, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AuthorizedAddr, nil
}

func (m *MockVault) SubmitSettlement(ctx context.Context, receivers []common.Address, amounts []*big.Int) (common.Hash, error) {
	m.mu.Lock()
	gate := m.SubmitGate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SubmitErr != nil {
		return common.Hash{}, m.SubmitErr
	}

	m.SubmittedReceivers = append(m.SubmittedReceivers, append([]common.Address(nil), receivers...))
	copied := make([]*big.Int, len(amounts))
	for i, a := range amounts {
		copied[i] = new(big.Int).Set(a)
	}
	m.SubmittedAmounts = append(m.SubmittedAmounts, copied)

	m.submitSeq++
	return common.BigToHash(new(big.Int).SetUint64(m.submitSeq)), nil
}

func (m *MockVault) WaitConfirmed(ctx context.Context, tx common.Hash) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ConfirmErr != nil {
		return m.ConfirmErr
	}
	m.ConfirmedTxs = append(m.ConfirmedTxs, tx)
	return nil
}

func (m *MockVault) WatchIntents(ctx context.Context, sink chan<- models.Intent) (vault.Subscription, error) {
	m.mu.Lock()
	m.intentSink = sink
	m.mu.Unlock()
	return NewMockSubscription(), nil
}

func (m *MockVault) WatchFees(ctx context.Context, sink chan<- *big.Int) (vault.Subscription, error) {
	m.mu.Lock()
	m.feeSink = sink
	m.mu.Unlock()
	return NewMockSubscription(), nil
}

// EmitIntent delivers one intent through the watch feed.
func (m *MockVault) EmitIntent(intent models.Intent) {
	m.mu.Lock()
	sink := m.intentSink
	m.mu.Unlock()
	sink <- intent
}

// EmitFee delivers one fee sample through the watch feed.
func (m *MockVault) EmitFee(fee *big.Int) {
	m.mu.Lock()
	sink := m.feeSink
	m.mu.Unlock()
	sink <- fee
}

// SubmitCount returns how many settlement calls the vault accepted.
func (m *MockVault) SubmitCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.SubmittedReceivers)
}

// SetSubmitErr swaps the submission failure injected on the next call.
func (m *MockVault) SetSubmitErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SubmitErr = err
}
