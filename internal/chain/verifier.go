// Package chain verifies token transfers against an EVM JSON-RPC node.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

var (
	ErrMalformedTx     = errors.New("chain: malformed transaction hash")
	ErrTxNotFound      = errors.New("chain: transaction not found")
	ErrTxFailed        = errors.New("chain: transaction reverted")
	ErrNotConfirmed    = errors.New("chain: not enough confirmations")
	ErrTransferMissing = errors.New("chain: no matching transfer log")
)

// transferTopic is keccak256("Transfer(address,address,uint256)").
var transferTopic = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))

// ReceiptReader is the part of *ethclient.Client the verifier uses.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Transfer is the token movement a settlement expects.
type Transfer struct {
	From  common.Address
	To    common.Address
	Value *big.Int
}

// ERC20Verifier checks that a transaction emitted an exact Transfer event
// from one token contract.
type ERC20Verifier struct {
	reader           ReceiptReader
	token            common.Address
	minConfirmations uint64
}

// NewERC20Verifier creates a verifier. minConfirmations below 1 is treated
// as 1: the receipt's own block counts as the first confirmation.
func NewERC20Verifier(reader ReceiptReader, token common.Address, minConfirmations uint64) *ERC20Verifier {
	if minConfirmations < 1 {
		minConfirmations = 1
	}
	return &ERC20Verifier{reader: reader, token: token, minConfirmations: minConfirmations}
}

// Verify returns nil only if txHash is mined, succeeded, has enough
// confirmations, and contains a Transfer log matching want exactly.
func (v *ERC20Verifier) Verify(ctx context.Context, txHash string, want Transfer) error {
	b, err := decodeHash(txHash)
	if err != nil {
		return err
	}
	receipt, err := v.reader.TransactionReceipt(ctx, b)
	if errors.Is(err, ethereum.NotFound) {
		return ErrTxNotFound
	}
	if err != nil {
		return fmt.Errorf("fetch receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return ErrTxFailed
	}

	head, err := v.reader.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("fetch head: %w", err)
	}
	if got := confirmations(head, receipt.BlockNumber); got < v.minConfirmations {
		return fmt.Errorf("%w: have %d, need %d", ErrNotConfirmed, got, v.minConfirmations)
	}

	for _, l := range receipt.Logs {
		if matches(l, v.token, want) {
			return nil
		}
	}
	return ErrTransferMissing
}

func decodeHash(s string) (common.Hash, error) {
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, ErrMalformedTx
	}
	return common.BytesToHash(b), nil
}

func confirmations(head uint64, block *big.Int) uint64 {
	if block == nil || !block.IsUint64() || block.Uint64() > head {
		return 0
	}
	return head - block.Uint64() + 1
}

func matches(l *types.Log, token common.Address, want Transfer) bool {
	if l.Address != token || len(l.Topics) != 3 || l.Topics[0] != transferTopic || len(l.Data) != 32 {
		return false
	}
	from := common.BytesToAddress(l.Topics[1].Bytes())
	to := common.BytesToAddress(l.Topics[2].Bytes())
	value := new(big.Int).SetBytes(l.Data)
	return from == want.From && to == want.To && want.Value != nil && value.Cmp(want.Value) == 0
}

// Dial connects to a JSON-RPC node and reports its chain id.
func Dial(ctx context.Context, url string) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", url, err)
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	return client, id, nil
}
