// Package wallet operates an Ethereum account on behalf of the voice
// assistant: connect, balance, and plain or ENS-aware sends.
//
// A Wallet is shared by every tool invocation and survives across voice
// sessions. State changes go through a single writer lock.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/teslashibe/go-speaky/pkg/metrics"
)

// DefaultRecipient receives sends that name no recipient.
const DefaultRecipient = "0x742d35Cc6634C0532925a3b844Bc9e7595f0bEb0"

// gasBufferPercent pads the node's gas estimate.
const gasBufferPercent = 110

// Backend is the subset of ethclient.Client the wallet needs.
type Backend interface {
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	ChainID(ctx context.Context) (*big.Int, error)
}

// Proposal describes a transaction awaiting approval.
type Proposal struct {
	From     common.Address
	To       common.Address
	Value    *big.Int
	GasLimit uint64
	MaxFee   *big.Int
	MaxCost  *big.Int
}

// Approver is asked before every broadcast. A non-nil error rejects the send.
type Approver func(ctx context.Context, p Proposal) error

// State is a snapshot of the connection.
type State struct {
	Connected  bool   `json:"isConnected"`
	Connecting bool   `json:"isConnecting"`
	Address    string `json:"address,omitempty"`
}

// Balance is an account balance in several renderings.
type Balance struct {
	Wei       *big.Int `json:"wei"`
	ETH       string   `json:"eth"`
	Formatted string   `json:"formatted"`
}

func newBalance(wei *big.Int) *Balance {
	return &Balance{
		Wei:       new(big.Int).Set(wei),
		ETH:       FormatEther(wei),
		Formatted: FormatBalance(wei),
	}
}

// TxResult describes a confirmed send.
type TxResult struct {
	Hash            string `json:"hash"`
	ResolvedAddress string `json:"resolvedAddress"`
	OriginalInput   string `json:"originalInput"`
}

// Config holds wallet configuration.
type Config struct {
	// RPCURL is dialed on Connect unless a Backend was injected.
	RPCURL string

	// DefaultRecipient is used by Send.
	DefaultRecipient string

	// ConfirmTimeout bounds the wait for one confirmation.
	ConfirmTimeout time.Duration
}

// Option configures a Wallet.
type Option func(*Wallet)

// WithBackend injects a chain backend instead of dialing RPCURL.
func WithBackend(b Backend) Option {
	return func(w *Wallet) {
		w.backend = b
	}
}

// WithSigner sets the account.
func WithSigner(s Signer) Option {
	return func(w *Wallet) {
		w.signer = s
	}
}

// WithResolver sets the name resolver. Without one, Connect installs an
// ENSResolver when it dials the RPC itself.
func WithResolver(r Resolver) Option {
	return func(w *Wallet) {
		w.resolver = r
	}
}

// WithApprover sets the approval hook.
func WithApprover(a Approver) Option {
	return func(w *Wallet) {
		w.approver = a
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Wallet) {
		w.logger = l
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Wallet) {
		w.metrics = m
	}
}

// Wallet is the shared wallet context.
type Wallet struct {
	cfg      Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	approver Approver

	mu         sync.RWMutex
	backend    Backend
	client     *ethclient.Client // non-nil when we dialed it and must close it
	signer     Signer
	resolver   Resolver
	chainID    *big.Int
	connected  bool
	connecting bool
	balance    *Balance
}

// New creates a disconnected wallet.
func New(cfg Config, opts ...Option) *Wallet {
	if cfg.DefaultRecipient == "" {
		cfg.DefaultRecipient = DefaultRecipient
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 2 * time.Minute
	}

	w := &Wallet{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "wallet")
	return w
}

// State returns a snapshot of the connection state.
func (w *Wallet) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()

	s := State{Connected: w.connected, Connecting: w.connecting}
	if w.connected && w.signer != nil {
		s.Address = w.signer.Address().Hex()
	}
	return s
}

// LastBalance returns the most recently loaded balance, or nil.
func (w *Wallet) LastBalance() *Balance {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.balance == nil {
		return nil
	}
	b := *w.balance
	b.Wei = new(big.Int).Set(w.balance.Wei)
	return &b
}

// Connect attaches the signer to the chain and loads the initial balance.
// Connecting an already connected wallet is a no-op.
func (w *Wallet) Connect(ctx context.Context) error {
	w.mu.Lock()
	switch {
	case w.connected:
		w.mu.Unlock()
		return nil
	case w.connecting:
		w.mu.Unlock()
		return ErrConnecting
	case w.signer == nil:
		w.mu.Unlock()
		return ErrNoWallet
	}
	w.connecting = true
	backend := w.backend
	w.mu.Unlock()

	var client *ethclient.Client
	if backend == nil {
		c, err := ethclient.DialContext(ctx, w.cfg.RPCURL)
		if err != nil {
			w.setConnecting(false)
			return fmt.Errorf("wallet: dial %s: %w", w.cfg.RPCURL, err)
		}
		client, backend = c, c
	}

	chainID, err := backend.ChainID(ctx)
	if err != nil {
		if client != nil {
			client.Close()
		}
		w.setConnecting(false)
		return fmt.Errorf("wallet: chain id: %w", err)
	}

	w.mu.Lock()
	w.backend = backend
	w.client = client
	if client != nil && w.resolver == nil {
		w.resolver = NewENSResolver(client)
	}
	w.chainID = chainID
	w.connected = true
	w.connecting = false
	address := w.signer.Address().Hex()
	w.mu.Unlock()

	w.logger.Info("wallet connected", "address", address, "chain_id", chainID.String())

	if _, err := w.Balance(ctx); err != nil {
		w.logger.Warn("initial balance load failed", "error", err)
	}
	return nil
}

func (w *Wallet) setConnecting(v bool) {
	w.mu.Lock()
	w.connecting = v
	w.mu.Unlock()
}

// Disconnect drops the chain connection and the cached balance. The signer
// is kept so the wallet can reconnect.
func (w *Wallet) Disconnect() {
	w.mu.Lock()
	client := w.client
	wasConnected := w.connected
	if client != nil {
		w.backend = nil
		if _, ok := w.resolver.(*ENSResolver); ok {
			w.resolver = nil
		}
	}
	w.client = nil
	w.connected = false
	w.connecting = false
	w.balance = nil
	w.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if wasConnected {
		w.logger.Info("wallet disconnected")
	}
}

// Balance loads the current balance.
func (w *Wallet) Balance(ctx context.Context) (*Balance, error) {
	w.mu.RLock()
	connected, backend, signer := w.connected, w.backend, w.signer
	w.mu.RUnlock()

	if !connected || backend == nil {
		return nil, ErrNotConnected
	}

	wei, err := backend.BalanceAt(ctx, signer.Address(), nil)
	if err != nil {
		return nil, fmt.Errorf("wallet: load balance: %w", err)
	}

	b := newBalance(wei)
	w.mu.Lock()
	w.balance = b
	w.mu.Unlock()
	return newBalance(wei), nil
}

// ResolveRecipient turns a hex address or ENS name into an address. Hex
// addresses never touch the resolver.
func (w *Wallet) ResolveRecipient(ctx context.Context, input string) (common.Address, error) {
	input = strings.TrimSpace(input)
	if IsHexAddress(input) {
		return common.HexToAddress(input), nil
	}
	if !IsValidENSName(input) {
		return common.Address{}, fmt.Errorf("%w: %s. Must be a valid address or ENS name", ErrInvalidRecipient, input)
	}

	w.mu.RLock()
	resolver := w.resolver
	w.mu.RUnlock()
	if resolver == nil {
		return common.Address{}, fmt.Errorf("%w: %s. No name resolver available", ErrInvalidRecipient, input)
	}

	addr, err := resolver.Resolve(ctx, input)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %s: %v", ErrInvalidRecipient, input, err)
	}
	if addr == (common.Address{}) {
		return common.Address{}, fmt.Errorf("%w: %s has no address", ErrInvalidRecipient, input)
	}
	return addr, nil
}

// Send transfers amount ETH to the configured default recipient.
func (w *Wallet) Send(ctx context.Context, amount string) (*TxResult, error) {
	return w.SendTo(ctx, amount, w.cfg.DefaultRecipient)
}

// SendTo transfers amount ETH to recipient (hex address or ENS name) and
// waits for one confirmation.
func (w *Wallet) SendTo(ctx context.Context, amount, recipient string) (*TxResult, error) {
	w.mu.RLock()
	connected, backend, signer, chainID := w.connected, w.backend, w.signer, w.chainID
	w.mu.RUnlock()

	if !connected || backend == nil {
		return nil, ErrNotConnected
	}
	if !IsValidAmount(amount) {
		return nil, ErrInvalidAmount
	}

	to, err := w.ResolveRecipient(ctx, recipient)
	if err != nil {
		return nil, err
	}
	value, err := ParseEther(amount)
	if err != nil {
		return nil, err
	}

	from := signer.Address()
	balance, err := backend.BalanceAt(ctx, from, nil)
	if err != nil {
		return nil, txError("load balance", err)
	}
	if balance.Cmp(value) < 0 {
		return nil, ErrInsufficientBalance
	}

	tip, maxFee, err := w.feeData(ctx, backend)
	if err != nil {
		return nil, txError("fee data", err)
	}

	estimated, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value})
	if err != nil {
		return nil, txError("estimate gas", err)
	}
	gasLimit := estimated * gasBufferPercent / 100

	maxCost := new(big.Int).Mul(new(big.Int).SetUint64(gasLimit), maxFee)
	maxCost.Add(maxCost, value)
	if balance.Cmp(maxCost) < 0 {
		return nil, fmt.Errorf("%w for transaction including gas", ErrInsufficientBalance)
	}

	if w.approver != nil {
		proposal := Proposal{From: from, To: to, Value: value, GasLimit: gasLimit, MaxFee: maxFee, MaxCost: maxCost}
		if err := w.approver(ctx, proposal); err != nil {
			w.metrics.ObserveTransaction("rejected")
			return nil, fmt.Errorf("%w: %v", ErrUserRejected, err)
		}
	}

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, txError("nonce", err)
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: maxFee,
		Gas:       gasLimit,
		To:        &to,
		Value:     value,
	})
	signed, err := signer.SignTx(tx, chainID)
	if err != nil {
		return nil, txError("sign", err)
	}

	if err := backend.SendTransaction(ctx, signed); err != nil {
		w.metrics.ObserveTransaction("failed")
		return nil, txError("broadcast", err)
	}
	w.metrics.ObserveTransaction("sent")
	w.logger.Info("transaction sent", "hash", signed.Hash().Hex(), "to", to.Hex(), "value", FormatEther(value))

	waitCtx, cancel := context.WithTimeout(ctx, w.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := bind.WaitMined(waitCtx, backend, signed)
	if err != nil {
		w.metrics.ObserveTransaction("failed")
		return nil, txError("wait for confirmation", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		w.metrics.ObserveTransaction("reverted")
		return nil, txError("confirmation", ErrTransactionReverted)
	}
	w.metrics.ObserveTransaction("confirmed")

	if _, err := w.Balance(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
		w.logger.Warn("balance reload failed", "error", err)
	}

	return &TxResult{
		Hash:            signed.Hash().Hex(),
		ResolvedAddress: to.Hex(),
		OriginalInput:   recipient,
	}, nil
}

// feeData returns the EIP-1559 tip and fee cap. Chains without a base fee get
// the legacy gas price for both.
func (w *Wallet) feeData(ctx context.Context, backend Backend) (tip, maxFee *big.Int, err error) {
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	if head.BaseFee == nil {
		price, err := backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, nil, err
		}
		return price, price, nil
	}

	tip, err = backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, nil, err
	}
	maxFee = new(big.Int).Mul(head.BaseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return tip, maxFee, nil
}
