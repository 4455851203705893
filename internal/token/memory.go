// Package token provides the fungible balance ledgers the engine settles
// through: an in-process ledger for standalone runs and tests, and an ERC20
// contract ledger reached over JSON-RPC.
package token

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"github.com/npanium/zkLeaderboard/internal/domain"
)

var (
	ErrInsufficientBalance   = errors.New("token: insufficient balance")
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Memory is an in-process ERC20-style ledger. Balances and allowances live
// in maps guarded by a mutex. Calls that spend on behalf of an account go
// through the Account view returned by As.
type Memory struct {
	mu         sync.Mutex
	balances   map[domain.Address]*uint256.Int
	allowances map[domain.Address]map[domain.Address]*uint256.Int
	failTo     map[domain.Address]error
}

// NewMemory returns an empty ledger.
func NewMemory() *Memory {
	return &Memory{
		balances:   make(map[domain.Address]*uint256.Int),
		allowances: make(map[domain.Address]map[domain.Address]*uint256.Int),
		failTo:     make(map[domain.Address]error),
	}
}

// Mint credits amount to to.
func (m *Memory) Mint(to domain.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(to, amount)
}

// MintTo implements domain.TokenAdmin.
func (m *Memory) MintTo(_ context.Context, to domain.Address, amount *uint256.Int) error {
	m.Mint(to, amount)
	return nil
}

// Approve sets the allowance owner grants to spender.
func (m *Memory) Approve(owner, spender domain.Address, amount *uint256.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setAllowance(owner, spender, new(uint256.Int).Set(amount))
}

// BalanceOf implements domain.TokenAdmin.
func (m *Memory) BalanceOf(_ context.Context, owner domain.Address) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(owner), nil
}

// Balance is BalanceOf without a context, for tests.
func (m *Memory) Balance(owner domain.Address) *uint256.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balance(owner)
}

// FailTransfersTo makes every subsequent transfer credited to recipient fail
// with err. A nil err clears the fault.
func (m *Memory) FailTransfersTo(recipient domain.Address, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failTo, recipient)
		return
	}
	m.failTo[recipient] = err
}

// As returns a view of the ledger that acts on behalf of account.
func (m *Memory) As(account domain.Address) *Account {
	return &Account{ledger: m, self: account}
}

// Account implements domain.TokenLedger for one custody account.
type Account struct {
	ledger *Memory
	self   domain.Address
}

// Address returns the account the view spends from.
func (a *Account) Address() domain.Address { return a.self }

// Allowance returns how much owner has approved spender to move.
func (a *Account) Allowance(_ context.Context, owner, spender domain.Address) (*uint256.Int, error) {
	m := a.ledger
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allowance(owner, spender), nil
}

// TransferFrom moves amount from owner to recipient using the allowance
// owner granted to this account.
func (a *Account) TransferFrom(_ context.Context, owner, recipient domain.Address, amount *uint256.Int) error {
	m := a.ledger
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failTo[recipient]; err != nil {
		return err
	}
	allowed := m.allowance(owner, a.self)
	if allowed.Lt(amount) {
		return fmt.Errorf("%w: %s approved, %s requested", ErrInsufficientAllowance, allowed.Dec(), amount.Dec())
	}
	if err := m.debit(owner, amount); err != nil {
		return err
	}
	m.setAllowance(owner, a.self, allowed.Sub(allowed, amount))
	m.credit(recipient, amount)
	return nil
}

// Transfer moves amount from this account to recipient.
func (a *Account) Transfer(_ context.Context, recipient domain.Address, amount *uint256.Int) error {
	m := a.ledger
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failTo[recipient]; err != nil {
		return err
	}
	if err := m.debit(a.self, amount); err != nil {
		return err
	}
	m.credit(recipient, amount)
	return nil
}

func (m *Memory) balance(owner domain.Address) *uint256.Int {
	if b, ok := m.balances[owner]; ok {
		return new(uint256.Int).Set(b)
	}
	return new(uint256.Int)
}

func (m *Memory) allowance(owner, spender domain.Address) *uint256.Int {
	if inner, ok := m.allowances[owner]; ok {
		if v, ok := inner[spender]; ok {
			return new(uint256.Int).Set(v)
		}
	}
	return new(uint256.Int)
}

func (m *Memory) setAllowance(owner, spender domain.Address, amount *uint256.Int) {
	inner, ok := m.allowances[owner]
	if !ok {
		inner = make(map[domain.Address]*uint256.Int)
		m.allowances[owner] = inner
	}
	inner[spender] = amount
}

func (m *Memory) debit(owner domain.Address, amount *uint256.Int) error {
	bal := m.balance(owner)
	if bal.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s, %s requested", ErrInsufficientBalance, owner.Hex(), bal.Dec(), amount.Dec())
	}
	m.balances[owner] = bal.Sub(bal, amount)
	return nil
}

func (m *Memory) credit(owner domain.Address, amount *uint256.Int) {
	bal := m.balance(owner)
	m.balances[owner] = bal.Add(bal, amount)
}
