package vault

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/event"

	"github.com/relaypool-hq/relaypool/pkg/logger"
	"github.com/relaypool-hq/relaypool/pkg/models"
)

const (
	// receiptPollInterval is how often WaitConfirmed checks for a receipt
	receiptPollInterval = 3 * time.Second

	// confirmTimeout bounds how long WaitConfirmed polls before giving up
	confirmTimeout = 5 * time.Minute
)

// ErrSettlementReverted is returned when the settlement transaction was mined
// but reverted on-chain.
var ErrSettlementReverted = errors.New("vault: settlement transaction reverted")

// EthVault is the go-ethereum backed Vault implementation.
type EthVault struct {
	client      *ethclient.Client
	contractABI abi.ABI
	contract    *bind.BoundContract
	auth        *bind.TransactOpts
	address     common.Address
	gasMargin   int
	logger      logger.Logger
}

var _ Vault = (*EthVault)(nil)

// New connects to the node and binds the vault contract.
func New(ctx context.Context, rpcURL string, vaultAddress common.Address, privateKeyHex string, gasMarginPercent int, log logger.Logger) (*EthVault, error) {
	if log == nil {
		log = &logger.EmptyLogger{}
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %v", err)
	}

	contractABI, err := getVaultABI()
	if err != nil {
		return nil, fmt.Errorf("failed to parse vault ABI: %v", err)
	}

	auth, err := createAuthenticator(ctx, client, privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to create authenticator: %v", err)
	}

	contract := bind.NewBoundContract(vaultAddress, contractABI, client, client, client)

	return &EthVault{
		client:      client,
		contractABI: contractABI,
		contract:    contract,
		auth:        auth,
		address:     vaultAddress,
		gasMargin:   gasMarginPercent,
		logger:      log,
	}, nil
}

// RelayerIdentity returns the address derived from the configured signing key.
func (v *EthVault) RelayerIdentity() common.Address {
	return v.auth.From
}

// AvailableFunds queries the vault for the amount available for settlement.
func (v *EthVault) AvailableFunds(ctx context.Context) (*big.Int, error) {
	var out []interface{}
	err := v.contract.Call(&bind.CallOpts{Context: ctx}, &out, "availableFunds")
	if err != nil {
		return nil, fmt.Errorf("failed to query available funds: %v", err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty result from availableFunds call")
	}

	funds, ok := out[0].(*big.Int)
	if !ok || funds == nil {
		return nil, fmt.Errorf("invalid availableFunds result type")
	}
	return funds, nil
}

// AuthorizedRelayer returns the relayer identity the vault accepts settlement
// calls from.
func (v *EthVault) AuthorizedRelayer(ctx context.Context) (common.Address, error) {
	var out []interface{}
	err := v.contract.Call(&bind.CallOpts{Context: ctx}, &out, "relayer")
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to query authorized relayer: %v", err)
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("empty result from relayer call")
	}

	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("invalid relayer result type")
	}
	return addr, nil
}

// SubmitSettlement submits one batched settlement call. The gas price is the
// node's suggestion with the configured safety margin on top.
func (v *EthVault) SubmitSettlement(ctx context.Context, receivers []common.Address, amounts []*big.Int) (common.Hash, error) {
	if len(receivers) != len(amounts) {
		return common.Hash{}, fmt.Errorf("receiver/amount length mismatch: %d != %d", len(receivers), len(amounts))
	}

	gasPrice, err := v.client.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %v", err)
	}
	gasPrice, err = ApplyGasMargin(gasPrice, v.gasMargin)
	if err != nil {
		return common.Hash{}, err
	}

	opts := *v.auth
	opts.Context = ctx
	opts.GasPrice = gasPrice

	tx, err := v.contract.Transact(&opts, "settleBatch", receivers, amounts)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to submit settlement: %v", err)
	}

	v.logger.InfoWithScope(logger.Vault, "Submitted settlement %s (%d receivers, gas price %s)",
		tx.Hash().Hex(), len(receivers), gasPrice.String())
	return tx.Hash(), nil
}

// WaitConfirmed polls for the settlement receipt until it is mined, the
// confirmation timeout elapses, or the caller's context is cancelled.
func (v *EthVault) WaitConfirmed(ctx context.Context, tx common.Hash) error {
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	ticker := time.NewTicker(receiptPollInterval)
	defer ticker.Stop()

	for {
		receipt, err := v.client.TransactionReceipt(ctx, tx)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return ErrSettlementReverted
			}
			v.logger.InfoWithScope(logger.Vault, "Settlement %s confirmed in block %d", tx.Hex(), receipt.BlockNumber.Uint64())
			return nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return fmt.Errorf("failed to fetch settlement receipt: %v", err)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("settlement confirmation timed out: %v", ctx.Err())
		case <-ticker.C:
		}
	}
}

// WatchIntents subscribes to the vault's IntentRegistered logs and streams
// parsed intents into sink. Malformed logs are dropped with a warning.
func (v *EthVault) WatchIntents(ctx context.Context, sink chan<- models.Intent) (Subscription, error) {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{v.address},
		Topics:    [][]common.Hash{{v.contractABI.Events["IntentRegistered"].ID}},
	}

	logs := make(chan types.Log)
	sub, err := v.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to intent logs: %v", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				intent, err := v.parseIntentLog(l)
				if err != nil {
					v.logger.ErrorWithScope(logger.Vault, "Dropping malformed intent log %s: %v", l.TxHash.Hex(), err)
					continue
				}
				select {
				case sink <- intent:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// WatchFees subscribes to new heads and streams one base fee sample per block
// into sink. Heads without a base fee are dropped with a warning.
func (v *EthVault) WatchFees(ctx context.Context, sink chan<- *big.Int) (Subscription, error) {
	heads := make(chan *types.Header)
	sub, err := v.client.SubscribeNewHead(ctx, heads)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to new heads: %v", err)
	}

	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case head := <-heads:
				if head.BaseFee == nil {
					v.logger.ErrorWithScope(logger.Vault, "Dropping block %d without base fee", head.Number.Uint64())
					continue
				}
				select {
				case sink <- new(big.Int).Set(head.BaseFee):
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}

// parseIntentLog decodes one IntentRegistered log into an Intent.
func (v *EthVault) parseIntentLog(l types.Log) (models.Intent, error) {
	if len(l.Topics) != 3 {
		return models.Intent{}, fmt.Errorf("unexpected topic count: %d", len(l.Topics))
	}

	unpacked, err := v.contractABI.Unpack("IntentRegistered", l.Data)
	if err != nil {
		return models.Intent{}, err
	}
	if len(unpacked) != 2 {
		return models.Intent{}, fmt.Errorf("unexpected data field count: %d", len(unpacked))
	}

	amount, ok := unpacked[0].(*big.Int)
	if !ok || amount == nil {
		return models.Intent{}, fmt.Errorf("invalid amount field")
	}
	sequence, ok := unpacked[1].(*big.Int)
	if !ok || sequence == nil {
		return models.Intent{}, fmt.Errorf("invalid sequence field")
	}

	return models.Intent{
		Sender:      common.BytesToAddress(l.Topics[1].Bytes()),
		Receiver:    common.BytesToAddress(l.Topics[2].Bytes()),
		Amount:      amount,
		Sequence:    sequence.Uint64(),
		ReceivedAt:  time.Now(),
		TxHash:      l.TxHash,
		BlockHeight: l.BlockNumber,
	}, nil
}

// createAuthenticator builds the transaction signer from the relayer key.
func createAuthenticator(ctx context.Context, client *ethclient.Client, privateKeyHex string) (*bind.TransactOpts, error) {
	privateKey, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %v", err)
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %v", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(privateKey, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %v", err)
	}

	return auth, nil
}

// getVaultABI returns the subset of the vault contract ABI the relayer uses.
func getVaultABI() (abi.ABI, error) {
	return abi.JSON(strings.NewReader(`[
		{
			"constant": true,
			"inputs": [],
			"name": "availableFunds",
			"outputs": [
				{
					"name": "",
					"type": "uint256"
				}
			],
			"payable": false,
			"stateMutability": "view",
			"type": "function"
		},
		{
			"constant": true,
			"inputs": [],
			"name": "relayer",
			"outputs": [
				{
					"name": "",
					"type": "address"
				}
			],
			"payable": false,
			"stateMutability": "view",
			"type": "function"
		},
		{
			"constant": false,
			"inputs": [
				{
					"name": "receivers",
					"type": "address[]"
				},
				{
					"name": "amounts",
					"type": "uint256[]"
				}
			],
			"name": "settleBatch",
			"outputs": [],
			"payable": false,
			"stateMutability": "nonpayable",
			"type": "function"
		},
		{
			"anonymous": false,
			"inputs": [
				{
					"indexed": true,
					"name": "sender",
					"type": "address"
				},
				{
					"indexed": true,
					"name": "receiver",
					"type": "address"
				},
				{
					"indexed": false,
					"name": "amount",
					"type": "uint256"
				},
				{
					"indexed": false,
					"name": "sequence",
					"type": "uint256"
				}
			],
			"name": "IntentRegistered",
			"type": "event"
		}
	]`))
}
