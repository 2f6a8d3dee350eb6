package ledger

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"gitlab.com/TitanInd/fundvault/internal/lib"
)

var (
	ErrInvalidAmount     = errors.New("transfer amount must not be negative")
	ErrInsufficientFunds = errors.New("account balance is lower than the transfer amount")
)

// Ledger is the in-process value rail: a plain account book. Vault escrow
// accounts are credited on deposit and debited when value moves out to a
// beneficiary or a refunded contributor.
type Ledger struct {
	mutex    sync.Mutex
	balances map[common.Address]*big.Int
	log      interfaces.ILogger
}

func NewLedger(log interfaces.ILogger) *Ledger {
	return &Ledger{
		balances: make(map[common.Address]*big.Int),
		log:      log,
	}
}

// Mint credits an account out of thin air. Used for incoming contributions,
// which are already backed by value held outside this process.
func (l *Ledger) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.credit(to, amount)
	l.log.Debugf("minted %s to %s", amount, to.Hex())
	return nil
}

// Transfer moves value between two accounts, failing without effect when the
// source account cannot cover the amount.
func (l *Ledger) Transfer(from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance, ok := l.balances[from]
	if !ok || balance.Cmp(amount) < 0 {
		return lib.WrapError(ErrInsufficientFunds, errors.New(from.Hex()))
	}

	l.balances[from] = new(big.Int).Sub(balance, amount)
	l.credit(to, amount)
	l.log.Debugf("transferred %s from %s to %s", amount, from.Hex(), to.Hex())
	return nil
}

func (l *Ledger) credit(to common.Address, amount *big.Int) {
	balance, ok := l.balances[to]
	if !ok {
		balance = new(big.Int)
	}
	l.balances[to] = new(big.Int).Add(balance, amount)
}

func (l *Ledger) GetBalance(account common.Address) *big.Int {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance, ok := l.balances[account]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(balance)
}

// EscrowGateway binds the ledger to a single escrow account, giving a vault
// its payment rail.
type EscrowGateway struct {
	ledger *Ledger
	escrow common.Address
}

func (l *Ledger) Escrow(escrow common.Address) *EscrowGateway {
	return &EscrowGateway{ledger: l, escrow: escrow}
}

func (g *EscrowGateway) Fund(amount *big.Int) error {
	return g.ledger.Mint(g.escrow, amount)
}

func (g *EscrowGateway) Send(to common.Address, amount *big.Int) error {
	return g.ledger.Transfer(g.escrow, to, amount)
}
