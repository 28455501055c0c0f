// Package vault talks to the on-chain settlement vault. The relayer engine
// consumes it through the Vault interface so tests can substitute a mock.
package vault

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/relaypool-hq/relaypool/pkg/models"
)

// Subscription is the lifetime of an event feed. Satisfied by
// go-ethereum's ethereum.Subscription.
type Subscription interface {
	// Unsubscribe cancels the feed
	Unsubscribe()
	// Err returns the subscription error channel
	Err() <-chan error
}

// Vault is the external ledger collaborator: funds custody, settlement
// submission and the two event feeds the relayer consumes.
type Vault interface {
	// AvailableFunds returns the amount currently available for settlement
	AvailableFunds(ctx context.Context) (*big.Int, error)

	// SubmitSettlement submits one batched settlement call with parallel
	// receiver and amount sequences and returns the transaction hash
	SubmitSettlement(ctx context.Context, receivers []common.Address, amounts []*big.Int) (common.Hash, error)

	// WaitConfirmed blocks until the settlement transaction is mined and
	// returns an error if it reverted or confirmation timed out
	WaitConfirmed(ctx context.Context, tx common.Hash) error

	// AuthorizedRelayer returns the relayer identity the vault accepts
	// settlement calls from
	AuthorizedRelayer(ctx context.Context) (common.Address, error)

	// WatchIntents streams confirmed intent registrations into sink
	WatchIntents(ctx context.Context, sink chan<- models.Intent) (Subscription, error)

	// WatchFees streams one fee sample per new block into sink
	WatchFees(ctx context.Context, sink chan<- *big.Int) (Subscription, error)
}
