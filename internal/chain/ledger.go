package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"docuchain/pkg/logger"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/patrickmn/go-cache"
)

// ErrNotFound is returned by a Ledger when the chain has no such transaction.
var ErrNotFound = errors.New("transaction not found")

type Log struct {
	Address string
	Topics  []string
	Data    []byte
}

// LedgerTransaction is what the ledger collaborator reports about one transaction.
// A pending transaction has BlockNumber and Confirmations of zero.
type LedgerTransaction struct {
	Hash          string
	From          string
	To            string
	BlockNumber   uint64
	Confirmations uint64
	CallData      []byte
	Logs          []Log
	Succeeded     bool
	Pending       bool
}

type Ledger interface {
	GetTransaction(ctx context.Context, txHash string) (*LedgerTransaction, error)
}

// ethBackend is the subset of *ethclient.Client the ledger needs.
type ethBackend interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

// EthLedger answers ledger queries over JSON-RPC. Facts about mined
// transactions are cached; confirmation depth is recomputed from the chain
// head on every call.
type EthLedger struct {
	backend ethBackend
	signer  types.Signer
	mined   *cache.Cache
}

func DialEthLedger(ctx context.Context, rpcURL string, chainID int64, cacheTTL time.Duration) (*EthLedger, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial ledger: %w", err)
	}
	remote, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if remote.Int64() != chainID {
		client.Close()
		return nil, fmt.Errorf("ledger reports chain id %s, expected %d", remote, chainID)
	}
	return newEthLedger(client, chainID, cacheTTL), nil
}

func newEthLedger(backend ethBackend, chainID int64, cacheTTL time.Duration) *EthLedger {
	return &EthLedger{
		backend: backend,
		signer:  types.LatestSignerForChainID(big.NewInt(chainID)),
		mined:   cache.New(cacheTTL, 2*cacheTTL),
	}
}

// Close drops cached facts and closes the RPC connection.
func (l *EthLedger) Close() {
	l.mined.Flush()
	l.backend.Close()
}

func (l *EthLedger) GetTransaction(ctx context.Context, txHash string) (*LedgerTransaction, error) {
	key := Normalize(txHash)
	if cached, ok := l.mined.Get(key); ok {
		facts := *cached.(*LedgerTransaction)
		return l.withConfirmations(ctx, &facts)
	}

	hash := common.HexToHash(key)
	tx, pending, err := l.backend.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("transaction by hash: %w", err)
	}

	from, err := types.Sender(l.signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	facts := &LedgerTransaction{
		Hash:     key,
		From:     strings.ToLower(from.Hex()),
		CallData: tx.Data(),
		Pending:  pending,
	}
	if to := tx.To(); to != nil {
		facts.To = strings.ToLower(to.Hex())
	}
	if pending {
		return facts, nil
	}

	receipt, err := l.backend.TransactionReceipt(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		facts.Pending = true
		return facts, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction receipt: %w", err)
	}
	facts.BlockNumber = receipt.BlockNumber.Uint64()
	facts.Succeeded = receipt.Status == types.ReceiptStatusSuccessful
	for _, lg := range receipt.Logs {
		entry := Log{Address: strings.ToLower(lg.Address.Hex()), Data: lg.Data}
		for _, topic := range lg.Topics {
			entry.Topics = append(entry.Topics, topic.Hex())
		}
		facts.Logs = append(facts.Logs, entry)
	}

	cached := *facts
	l.mined.SetDefault(key, &cached)
	logger.Sugar.Debugf("Cached mined transaction %s at block %d", key, facts.BlockNumber)
	return l.withConfirmations(ctx, facts)
}

func (l *EthLedger) withConfirmations(ctx context.Context, facts *LedgerTransaction) (*LedgerTransaction, error) {
	head, err := l.backend.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}
	facts.Confirmations = 0
	if head >= facts.BlockNumber {
		facts.Confirmations = head - facts.BlockNumber + 1
	}
	return facts, nil
}
