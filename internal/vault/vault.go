package vault

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"gitlab.com/TitanInd/fundvault/internal/lib"
)

type State uint8

const (
	StateFundraising State = iota // deposits are accepted from the funding source
	StateClosed                   // fundraising done, next milestone not yet requested
	StateVoting                   // a payout request is open for contributor veto
	StateWithdrawalRejected       // contributors vetoed the request, admin may retry after cooldown
	StateProjectCancelled         // terminal, refunds only
)

func (s State) String() string {
	switch s {
	case StateFundraising:
		return "fundraising"
	case StateClosed:
		return "closed"
	case StateVoting:
		return "voting"
	case StateWithdrawalRejected:
		return "withdrawal-rejected"
	case StateProjectCancelled:
		return "project-cancelled"
	}
	return "unknown"
}

// PaymentGateway is the external value-movement capability. Fund reflects an
// incoming contribution landing in escrow, Send moves escrowed value out to a
// recipient. Either call may fail, in which case the vault unwinds the whole
// operation that triggered it.
type PaymentGateway interface {
	Fund(amount *big.Int) error
	Send(to common.Address, amount *big.Int) error
}

// EventSink receives notifications emitted by the vault, in call order.
type EventSink func(e Event)

type Params struct {
	FundingSource common.Address
	Admin         common.Address
	Beneficiary   common.Address

	// Milestones are percentage slices of totalFunds, fixed at creation.
	// Each entry is 0..100 and all entries sum to exactly 100.
	Milestones []uint8

	VotingTime       time.Duration
	RetryCooldown    time.Duration
	MaxRetryAttempts int
}

type voteKey struct {
	contributor common.Address
	milestone   int
	retry       int
}

// Vault is the fund-escrow state machine. Every operation is serialized under
// the vault mutex and is all-or-nothing: guards run before any mutation and a
// failed outgoing transfer restores the pre-call state.
type Vault struct {
	mutex sync.Mutex

	id     string
	params Params

	state          State
	milestoneIdx   int
	retryCount     int
	deposited      map[common.Address]*big.Int
	totalFunds     *big.Int // lifetime total, never reduced by refunds
	fundsWithdrawn *big.Int
	balance        *big.Int // value currently held in escrow

	votingStart  time.Time
	votingEnd    time.Time
	votesAgainst *big.Int
	voteCast     map[voteKey]struct{}

	gateway PaymentGateway
	sink    EventSink
	pending []Event

	log interfaces.ILogger
}

var big100 = big.NewInt(100)

func NewVault(id string, params Params, gateway PaymentGateway, sink EventSink, log interfaces.ILogger) (*Vault, error) {
	if err := validateParams(params); err != nil {
		return nil, err
	}

	return &Vault{
		id:             id,
		params:         params,
		state:          StateFundraising,
		deposited:      make(map[common.Address]*big.Int),
		totalFunds:     new(big.Int),
		fundsWithdrawn: new(big.Int),
		balance:        new(big.Int),
		votesAgainst:   new(big.Int),
		voteCast:       make(map[voteKey]struct{}),
		gateway:        gateway,
		sink:           sink,
		log:            log,
	}, nil
}

func validateParams(params Params) error {
	zero := common.Address{}
	if params.FundingSource == zero || params.Admin == zero || params.Beneficiary == zero {
		return ErrInvalidParams
	}
	if params.VotingTime <= 0 || params.RetryCooldown < 0 || params.MaxRetryAttempts < 1 {
		return ErrInvalidParams
	}
	if len(params.Milestones) < 1 {
		return ErrInvalidMilestones
	}
	sum := 0
	for _, pct := range params.Milestones {
		if pct > 100 {
			return ErrInvalidMilestones
		}
		sum += int(pct)
	}
	if sum != 100 {
		return ErrInvalidMilestones
	}
	return nil
}

// Deposit records a contribution during fundraising. Only the funding source
// may call it; the contributor is whoever the value is attributed to.
func (v *Vault) Deposit(caller, contributor common.Address, amount *big.Int) error {
	v.mutex.Lock()
	defer v.mutex.Unlock()

	if caller != v.params.FundingSource {
		return ErrUnauthorized
	}
	if v.state != StateFundraising {
		return ErrWrongState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}

	prevDeposit := v.deposited[contributor]
	prevTotal := v.totalFunds
	prevBalance := v.balance

	deposit := prevDeposit
	if deposit == nil {
		deposit = new(big.Int)
	}
	v.deposited[contributor] = new(big.Int).Add(deposit, amount)
	v.totalFunds = new(big.Int).Add(v.totalFunds, amount)
	v.balance = new(big.Int).Add(v.balance, amount)

	if err := v.gateway.Fund(amount); err != nil {
		if prevDeposit == nil {
			delete(v.deposited, contributor)
		} else {
			v.deposited[contributor] = prevDeposit
		}
		v.totalFunds = prevTotal
		v.balance = prevBalance
		return lib.WrapError(ErrTransferFailed, err)
	}

	v.log.Debugf("deposit of %s recorded for %s, total %s", amount, contributor.Hex(), v.totalFunds)
	return nil
}

// Close ends fundraising. Requires at least one deposit.
func (v *Vault) Close(caller common.Address) error {
	v.mutex.Lock()
	err := v.close(caller)
	events := v.takePending()
	v.mutex.Unlock()

	if err != nil {
		return err
	}
	v.notify(events)
	return nil
}

func (v *Vault) close(caller common.Address) error {
	if caller != v.params.FundingSource {
		return ErrUnauthorized
	}
	if v.state != StateFundraising {
		return ErrWrongState
	}
	if v.totalFunds.Sign() == 0 {
		return ErrNoFundsRaised
	}

	v.state = StateClosed
	v.emit(EventClosed{VaultID: v.id})

	v.log.Infof("fundraising closed with total %s", v.totalFunds)
	return nil
}

// RequestFunds opens a voting window for the next milestone payout. Allowed
// from Closed, or from WithdrawalRejected once the retry cooldown elapsed.
func (v *Vault) RequestFunds(caller common.Address, now time.Time) error {
	v.mutex.Lock()
	err := v.requestFunds(caller, now)
	events := v.takePending()
	v.mutex.Unlock()

	if err != nil {
		return err
	}
	v.notify(events)
	return nil
}

func (v *Vault) requestFunds(caller common.Address, now time.Time) error {
	if caller != v.params.Admin {
		return ErrUnauthorized
	}

	switch v.state {
	case StateClosed:
		if v.milestoneIdx >= len(v.params.Milestones) {
			return ErrMilestonesExhausted
		}
	case StateWithdrawalRejected:
		if v.milestoneIdx >= len(v.params.Milestones) {
			return ErrMilestonesExhausted
		}
		if !now.After(v.votingEnd.Add(v.params.RetryCooldown)) {
			return ErrCooldownActive
		}
	default:
		return ErrWrongState
	}

	v.votesAgainst = new(big.Int)
	v.votingStart = now
	v.votingEnd = now.Add(v.params.VotingTime)
	v.state = StateVoting

	amount := v.milestoneShare(v.milestoneIdx)
	v.emit(EventFundsRequested{
		VaultID:        v.id,
		MilestoneIndex: v.milestoneIdx,
		Amount:         amount,
		WindowStart:    v.votingStart,
		WindowEnd:      v.votingEnd,
	})

	v.log.Infof("funds requested for milestone %d, amount %s, window ends %s", v.milestoneIdx, amount, v.votingEnd)
	return nil
}

// VoteAgainstWithdrawal casts a veto weighted by the caller's recorded
// deposit. Crossing the majority threshold rejects the request within the
// same call; hitting the retry limit cancels the project atomically.
func (v *Vault) VoteAgainstWithdrawal(caller common.Address, now time.Time) error {
	v.mutex.Lock()
	err := v.voteAgainstWithdrawal(caller, now)
	events := v.takePending()
	v.mutex.Unlock()

	if err != nil {
		return err
	}
	v.notify(events)
	return nil
}

func (v *Vault) voteAgainstWithdrawal(caller common.Address, now time.Time) error {
	if v.state != StateVoting {
		return ErrWrongState
	}
	if !now.Before(v.votingEnd) {
		return ErrVotingClosed
	}

	deposit, ok := v.deposited[caller]
	if !ok || deposit.Sign() == 0 {
		return ErrNoDeposit
	}

	key := voteKey{contributor: caller, milestone: v.milestoneIdx, retry: v.retryCount}
	if _, voted := v.voteCast[key]; voted {
		return ErrAlreadyVoted
	}

	v.voteCast[key] = struct{}{}
	v.votesAgainst = new(big.Int).Add(v.votesAgainst, deposit)

	// strictly more than half of the lifetime total, truncating division
	half := new(big.Int).Quo(v.totalFunds, big.NewInt(2))
	if v.votesAgainst.Cmp(half) <= 0 {
		v.log.Debugf("vote of %s against milestone %d retry %d, total against %s", deposit, v.milestoneIdx, v.retryCount, v.votesAgainst)
		return nil
	}

	v.state = StateWithdrawalRejected
	v.votingEnd = now
	v.retryCount++
	v.emit(EventRejectedWithdrawal{
		VaultID:      v.id,
		VotesAgainst: new(big.Int).Set(v.votesAgainst),
		TotalFunds:   new(big.Int).Set(v.totalFunds),
	})
	v.log.Infof("withdrawal rejected for milestone %d, votes against %s of %s, retry %d", v.milestoneIdx, v.votesAgainst, v.totalFunds, v.retryCount)

	if v.retryCount >= v.params.MaxRetryAttempts {
		v.state = StateProjectCancelled
		v.emit(EventProjectCancelled{
			VaultID:        v.id,
			Time:           now,
			RetryCount:     v.retryCount,
			MilestoneIndex: v.milestoneIdx,
		})
		v.log.Warnf("project cancelled after %d rejections of milestone %d", v.retryCount, v.milestoneIdx)
	}

	return nil
}

// WithdrawFunds pays the current milestone share to the beneficiary once the
// voting window elapsed without a majority rejection.
func (v *Vault) WithdrawFunds(caller common.Address, now time.Time) error {
	v.mutex.Lock()
	err := v.withdrawFunds(caller, now)
	events := v.takePending()
	v.mutex.Unlock()

	if err != nil {
		return err
	}
	v.notify(events)
	return nil
}

func (v *Vault) withdrawFunds(caller common.Address, now time.Time) error {
	if caller != v.params.Admin {
		return ErrUnauthorized
	}
	if v.state != StateVoting {
		return ErrWrongState
	}
	if !now.After(v.votingEnd) {
		return ErrVotingNotEnded
	}
	if v.milestoneIdx >= len(v.params.Milestones) {
		return ErrMilestonesExhausted
	}

	share := v.milestoneShare(v.milestoneIdx)
	if share.Cmp(v.balance) > 0 {
		return ErrInsufficientBalance
	}

	prevWithdrawn := v.fundsWithdrawn
	prevBalance := v.balance
	prevRetry := v.retryCount
	completed := v.milestoneIdx

	v.fundsWithdrawn = new(big.Int).Add(v.fundsWithdrawn, share)
	v.balance = new(big.Int).Sub(v.balance, share)
	v.retryCount = 0
	v.milestoneIdx++
	v.state = StateClosed

	if err := v.gateway.Send(v.params.Beneficiary, share); err != nil {
		v.fundsWithdrawn = prevWithdrawn
		v.balance = prevBalance
		v.retryCount = prevRetry
		v.milestoneIdx = completed
		v.state = StateVoting
		return lib.WrapError(ErrTransferFailed, err)
	}

	v.emit(EventFundsWithdrawn{
		VaultID:        v.id,
		MilestoneIndex: completed,
		Amount:         share,
	})
	v.log.Infof("milestone %d paid out, amount %s, withdrawn total %s", completed, share, v.fundsWithdrawn)
	return nil
}

// RefundContribution pays the caller their pro-rata share of the remaining
// funds after cancellation and zeroes their deposit record.
func (v *Vault) RefundContribution(caller common.Address, now time.Time) error {
	v.mutex.Lock()
	err := v.refundContribution(caller, now)
	events := v.takePending()
	v.mutex.Unlock()

	if err != nil {
		return err
	}
	v.notify(events)
	return nil
}

func (v *Vault) refundContribution(caller common.Address, now time.Time) error {
	if v.state != StateProjectCancelled {
		return ErrWrongState
	}

	deposit, ok := v.deposited[caller]
	if !ok || deposit.Sign() == 0 {
		return ErrNoDeposit
	}
	if v.totalFunds.Sign() == 0 {
		return ErrNoFundsRaised
	}

	// refund share is computed against the lifetime total, not the live
	// balance, so earlier refunds do not change anyone else's share
	remaining := new(big.Int).Sub(v.totalFunds, v.fundsWithdrawn)
	share := new(big.Int).Quo(new(big.Int).Mul(remaining, deposit), v.totalFunds)
	if share.Cmp(v.balance) > 0 {
		return ErrInsufficientBalance
	}

	prevBalance := v.balance

	// the deposit record is zeroed before value moves out
	v.deposited[caller] = new(big.Int)
	v.balance = new(big.Int).Sub(v.balance, share)

	if err := v.gateway.Send(caller, share); err != nil {
		v.deposited[caller] = deposit
		v.balance = prevBalance
		return lib.WrapError(ErrTransferFailed, err)
	}

	v.emit(EventRefundedContribution{
		VaultID:     v.id,
		Time:        now,
		Contributor: caller,
		Amount:      share,
	})
	v.log.Infof("refunded %s to %s", share, caller.Hex())
	return nil
}

func (v *Vault) milestoneShare(idx int) *big.Int {
	pct := big.NewInt(int64(v.params.Milestones[idx]))
	return new(big.Int).Quo(new(big.Int).Mul(v.totalFunds, pct), big100)
}

func (v *Vault) emit(e Event) {
	v.pending = append(v.pending, e)
}

func (v *Vault) takePending() []Event {
	events := v.pending
	v.pending = nil
	return events
}

// notify runs outside the vault mutex so sinks may read the vault back
func (v *Vault) notify(events []Event) {
	if v.sink == nil {
		return
	}
	for _, e := range events {
		v.sink(e)
	}
}

func (v *Vault) GetID() string {
	return v.id
}

func (v *Vault) GetState() State {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.state
}

func (v *Vault) GetMilestoneIndex() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.milestoneIdx
}

func (v *Vault) GetRetryCount() int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.retryCount
}

func (v *Vault) GetTotalFunds() *big.Int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return new(big.Int).Set(v.totalFunds)
}

func (v *Vault) GetFundsWithdrawn() *big.Int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return new(big.Int).Set(v.fundsWithdrawn)
}

func (v *Vault) GetBalance() *big.Int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return new(big.Int).Set(v.balance)
}

func (v *Vault) GetDeposited(contributor common.Address) *big.Int {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	deposit, ok := v.deposited[contributor]
	if !ok {
		return new(big.Int)
	}
	return new(big.Int).Set(deposit)
}

func (v *Vault) GetVotingWindow() (start, end time.Time) {
	v.mutex.Lock()
	defer v.mutex.Unlock()
	return v.votingStart, v.votingEnd
}

func (v *Vault) GetMilestones() []uint8 {
	milestones := make([]uint8, len(v.params.Milestones))
	copy(milestones, v.params.Milestones)
	return milestones
}

func (v *Vault) GetFundingSource() common.Address {
	return v.params.FundingSource
}

func (v *Vault) GetAdmin() common.Address {
	return v.params.Admin
}

func (v *Vault) GetBeneficiary() common.Address {
	return v.params.Beneficiary
}
