package token

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

// erc20ABI is the subset of the betting token interface the engine calls.
// mintTo is the faucet entry point of the betting token and is absent from
// plain ERC20 contracts.
const erc20ABI = `[
	{"name":"allowance","type":"function","stateMutability":"view","inputs":[
		{"name":"owner","type":"address"},
		{"name":"spender","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"balanceOf","type":"function","stateMutability":"view","inputs":[
		{"name":"account","type":"address"}
	],"outputs":[{"name":"","type":"uint256"}]},
	{"name":"transfer","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"name":"transferFrom","type":"function","inputs":[
		{"name":"from","type":"address"},
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[{"name":"","type":"bool"}]},
	{"name":"mintTo","type":"function","inputs":[
		{"name":"to","type":"address"},
		{"name":"amount","type":"uint256"}
	],"outputs":[]}
]`

// ErrReverted is returned when a transaction was mined but failed.
var ErrReverted = errors.New("token: transaction reverted")

// ERC20Config configures an ERC20 ledger.
type ERC20Config struct {
	RPCURL   string
	Contract domain.Address
	// Key signs transactions for the custody account.
	Key          *ecdsa.PrivateKey
	GasLimit     uint64
	ReceiptPolls int
	PollInterval time.Duration
}

// ERC20 implements domain.TokenLedger and domain.TokenAdmin against a
// deployed token contract. Writes are sent as signed legacy transactions
// from the custody key and block until the receipt is available or the poll
// budget runs out, in which case they report domain.ErrTransferPending.
type ERC20 struct {
	client   *ethclient.Client
	abi      abi.ABI
	contract common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	gasLimit uint64
	polls    int
	interval time.Duration
	logger   *slog.Logger

	// txMu serializes nonce allocation for the custody account.
	txMu sync.Mutex
}

// DialERC20 connects to the RPC endpoint and parses the token ABI.
func DialERC20(ctx context.Context, cfg ERC20Config, logger *slog.Logger) (*ERC20, error) {
	if cfg.RPCURL == "" {
		return nil, errors.New("token/erc20: rpc url is required")
	}
	if cfg.Key == nil {
		return nil, errors.New("token/erc20: custody key is required")
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("token/erc20: parse abi: %w", err)
	}
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("token/erc20: dial rpc: %w", err)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = 150_000
	}
	if cfg.ReceiptPolls <= 0 {
		cfg.ReceiptPolls = 30
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &ERC20{
		client:   client,
		abi:      parsed,
		contract: cfg.Contract,
		key:      cfg.Key,
		from:     ethcrypto.PubkeyToAddress(cfg.Key.PublicKey),
		gasLimit: cfg.GasLimit,
		polls:    cfg.ReceiptPolls,
		interval: cfg.PollInterval,
		logger:   logger.With(slog.String("component", "erc20")),
	}, nil
}

// Close releases the RPC connection.
func (t *ERC20) Close() {
	t.client.Close()
}

// Custody returns the account that signs transactions.
func (t *ERC20) Custody() domain.Address {
	return t.from
}

// Contract returns the token contract the ledger calls.
func (t *ERC20) Contract() domain.Address {
	return t.contract
}

// Allowance implements domain.TokenLedger.
func (t *ERC20) Allowance(ctx context.Context, owner, spender domain.Address) (*uint256.Int, error) {
	return t.callUint(ctx, "allowance", owner, spender)
}

// BalanceOf implements domain.TokenAdmin.
func (t *ERC20) BalanceOf(ctx context.Context, owner domain.Address) (*uint256.Int, error) {
	return t.callUint(ctx, "balanceOf", owner)
}

// TransferFrom implements domain.TokenLedger.
func (t *ERC20) TransferFrom(ctx context.Context, owner, recipient domain.Address, amount *uint256.Int) error {
	_, err := t.send(ctx, "transferFrom", owner, recipient, amount.ToBig())
	return err
}

// Transfer implements domain.TokenLedger.
func (t *ERC20) Transfer(ctx context.Context, recipient domain.Address, amount *uint256.Int) error {
	_, err := t.send(ctx, "transfer", recipient, amount.ToBig())
	return err
}

// MintTo implements domain.TokenAdmin.
func (t *ERC20) MintTo(ctx context.Context, to domain.Address, amount *uint256.Int) error {
	_, err := t.send(ctx, "mintTo", to, amount.ToBig())
	return err
}

func (t *ERC20) callUint(ctx context.Context, method string, args ...any) (*uint256.Int, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("token/erc20: pack %s: %w", method, err)
	}
	out, err := t.client.CallContract(ctx, ethereum.CallMsg{To: &t.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("token/erc20: call %s: %w", method, err)
	}
	vals, err := t.abi.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("token/erc20: unpack %s: %w", method, err)
	}
	if len(vals) != 1 {
		return nil, fmt.Errorf("token/erc20: %s returned %d values", method, len(vals))
	}
	raw, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("token/erc20: %s returned %T", method, vals[0])
	}
	v, overflow := uint256.FromBig(raw)
	if overflow {
		return nil, fmt.Errorf("token/erc20: %s result overflows uint256", method)
	}
	return v, nil
}

// send signs and submits a contract call, then waits for its receipt.
func (t *ERC20) send(ctx context.Context, method string, args ...any) (common.Hash, error) {
	data, err := t.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("token/erc20: pack %s: %w", method, err)
	}

	t.txMu.Lock()
	signed, err := t.signAndSend(ctx, data)
	t.txMu.Unlock()
	if err != nil {
		return common.Hash{}, fmt.Errorf("token/erc20: %s: %w", method, err)
	}

	hash := signed.Hash()
	t.logger.DebugContext(ctx, "transaction sent",
		slog.String("method", method),
		slog.String("tx", hash.Hex()),
	)
	// The transaction is out; wait for it whether or not the caller is.
	if err := t.waitReceipt(context.WithoutCancel(ctx), hash); err != nil {
		return hash, fmt.Errorf("token/erc20: %s: %w", method, err)
	}
	return hash, nil
}

func (t *ERC20) signAndSend(ctx context.Context, data []byte) (*types.Transaction, error) {
	chainID, err := t.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	gasPrice, err := t.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	nonce, err := t.client.PendingNonceAt(ctx, t.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      t.gasLimit,
		To:       &t.contract,
		Value:    big.NewInt(0),
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), t.key)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := t.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}

// waitReceipt polls for the receipt of a broadcast transaction. Running out of
// polls or a done ctx reports domain.ErrTransferPending, since the
// transaction may still be mined.
func (t *ERC20) waitReceipt(ctx context.Context, hash common.Hash) error {
	for i := 0; i < t.polls; i++ {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			if receipt.Status != types.ReceiptStatusSuccessful {
				return fmt.Errorf("%w: %s", ErrReverted, hash.Hex())
			}
			return nil
		}
		if i == t.polls-1 {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w: %w", hash.Hex(), domain.ErrTransferPending, ctx.Err())
		case <-time.After(t.interval):
		}
	}
	return fmt.Errorf("receipt for %s not seen after %d polls: %w", hash.Hex(), t.polls, domain.ErrTransferPending)
}

// MaxWait is the longest a single write waits for its receipt.
func (t *ERC20) MaxWait() time.Duration {
	return time.Duration(t.polls) * t.interval
}
