package vault

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"gitlab.com/TitanInd/fundvault/internal/lib"
)

var (
	source      = common.HexToAddress("0x1000000000000000000000000000000000000001")
	admin       = common.HexToAddress("0x1000000000000000000000000000000000000002")
	beneficiary = common.HexToAddress("0x1000000000000000000000000000000000000003")
	alice       = common.HexToAddress("0xaa00000000000000000000000000000000000001")
	bob         = common.HexToAddress("0xbb00000000000000000000000000000000000002")
	carol       = common.HexToAddress("0xcc00000000000000000000000000000000000003")
)

var t0 = time.Unix(1700000000, 0)

type transferRecord struct {
	to     common.Address
	amount *big.Int
}

type testGateway struct {
	funded    *big.Int
	transfers []transferRecord
	failFund  bool
	failSend  bool
}

func newTestGateway() *testGateway {
	return &testGateway{funded: new(big.Int)}
}

func (g *testGateway) Fund(amount *big.Int) error {
	if g.failFund {
		return errors.New("funding rail down")
	}
	g.funded = new(big.Int).Add(g.funded, amount)
	return nil
}

func (g *testGateway) Send(to common.Address, amount *big.Int) error {
	if g.failSend {
		return errors.New("payment rail down")
	}
	g.transfers = append(g.transfers, transferRecord{to: to, amount: new(big.Int).Set(amount)})
	return nil
}

func (g *testGateway) sentTo(to common.Address) *big.Int {
	total := new(big.Int)
	for _, tr := range g.transfers {
		if tr.to == to {
			total.Add(total, tr.amount)
		}
	}
	return total
}

func requireAmount(t *testing.T, want int64, got *big.Int) {
	t.Helper()
	require.NotNil(t, got)
	require.Zerof(t, got.Cmp(big.NewInt(want)), "want amount %d, got %s", want, got)
}

func defaultParams(milestones ...uint8) Params {
	return Params{
		FundingSource:    source,
		Admin:            admin,
		Beneficiary:      beneficiary,
		Milestones:       milestones,
		VotingTime:       time.Hour,
		RetryCooldown:    24 * time.Hour,
		MaxRetryAttempts: 3,
	}
}

func newTestVault(t *testing.T, params Params) (*Vault, *testGateway, *[]Event) {
	gateway := newTestGateway()
	events := &[]Event{}
	v, err := NewVault("vault-1", params, gateway, func(e Event) {
		*events = append(*events, e)
	}, lib.NewTestLogger())
	require.NoError(t, err)
	return v, gateway, events
}

func deposit(t *testing.T, v *Vault, contributor common.Address, amount int64) {
	require.NoError(t, v.Deposit(source, contributor, big.NewInt(amount)))
}

func TestNewVaultValidatesParams(t *testing.T) {
	gateway := newTestGateway()
	log := lib.NewTestLogger()

	_, err := NewVault("v", defaultParams(), gateway, nil, log)
	require.ErrorIs(t, err, ErrInvalidMilestones)

	_, err = NewVault("v", defaultParams(30, 40, 40), gateway, nil, log)
	require.ErrorIs(t, err, ErrInvalidMilestones)

	_, err = NewVault("v", defaultParams(30, 40, 29), gateway, nil, log)
	require.ErrorIs(t, err, ErrInvalidMilestones)

	params := defaultParams(100)
	params.Admin = common.Address{}
	_, err = NewVault("v", params, gateway, nil, log)
	require.ErrorIs(t, err, ErrInvalidParams)

	params = defaultParams(100)
	params.MaxRetryAttempts = 0
	_, err = NewVault("v", params, gateway, nil, log)
	require.ErrorIs(t, err, ErrInvalidParams)

	v, err := NewVault("v", defaultParams(30, 40, 30), gateway, nil, log)
	require.NoError(t, err)
	require.Equal(t, StateFundraising, v.GetState())
}

func TestDepositGuards(t *testing.T) {
	v, gateway, _ := newTestVault(t, defaultParams(100))

	require.ErrorIs(t, v.Deposit(alice, alice, big.NewInt(10)), ErrUnauthorized)
	require.ErrorIs(t, v.Deposit(source, alice, big.NewInt(0)), ErrInvalidAmount)
	require.ErrorIs(t, v.Deposit(source, alice, big.NewInt(-5)), ErrInvalidAmount)
	require.ErrorIs(t, v.Deposit(source, alice, nil), ErrInvalidAmount)

	deposit(t, v, alice, 60)
	deposit(t, v, alice, 15)
	deposit(t, v, bob, 25)

	requireAmount(t, 75, v.GetDeposited(alice))
	requireAmount(t, 25, v.GetDeposited(bob))
	requireAmount(t, 100, v.GetTotalFunds())
	requireAmount(t, 100, v.GetBalance())
	requireAmount(t, 100, gateway.funded)

	require.NoError(t, v.Close(source))
	require.ErrorIs(t, v.Deposit(source, alice, big.NewInt(1)), ErrWrongState)
}

func TestDepositRollsBackOnFundFailure(t *testing.T) {
	v, gateway, _ := newTestVault(t, defaultParams(100))
	gateway.failFund = true

	err := v.Deposit(source, alice, big.NewInt(10))
	require.ErrorIs(t, err, ErrTransferFailed)
	requireAmount(t, 0, v.GetDeposited(alice))
	requireAmount(t, 0, v.GetTotalFunds())
	requireAmount(t, 0, v.GetBalance())
}

func TestCloseGuards(t *testing.T) {
	v, _, events := newTestVault(t, defaultParams(100))

	require.ErrorIs(t, v.Close(admin), ErrUnauthorized)
	require.ErrorIs(t, v.Close(source), ErrNoFundsRaised)

	deposit(t, v, alice, 100)
	require.NoError(t, v.Close(source))
	require.Equal(t, StateClosed, v.GetState())
	require.ErrorIs(t, v.Close(source), ErrWrongState)

	require.Len(t, *events, 1)
	require.Equal(t, "Closed", (*events)[0].Name())
}

// Scenario: milestones [30,40,30], deposits 60+40, majority veto by the
// contributor holding 60 rejects the first request.
func TestMajorityRejection(t *testing.T) {
	v, _, events := newTestVault(t, defaultParams(30, 40, 30))
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	require.NoError(t, v.RequestFunds(admin, t0))
	require.Equal(t, StateVoting, v.GetState())

	requested := (*events)[1].(EventFundsRequested)
	requireAmount(t, 30, requested.Amount)
	require.Equal(t, 0, requested.MilestoneIndex)
	require.Equal(t, t0, requested.WindowStart)
	require.Equal(t, t0.Add(time.Hour), requested.WindowEnd)

	require.NoError(t, v.VoteAgainstWithdrawal(alice, t0.Add(time.Minute)))

	require.Equal(t, StateWithdrawalRejected, v.GetState())
	require.Equal(t, 1, v.GetRetryCount())

	rejected := (*events)[2].(EventRejectedWithdrawal)
	requireAmount(t, 60, rejected.VotesAgainst)
	requireAmount(t, 100, rejected.TotalFunds)

	// rejection closes the window immediately
	_, end := v.GetVotingWindow()
	require.Equal(t, t0.Add(time.Minute), end)
}

// Boundary: votes summing to exactly totalFunds/2 do not trigger rejection,
// one unit more does.
func TestRejectionThresholdBoundary(t *testing.T) {
	v, _, _ := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 50)
	deposit(t, v, bob, 1)
	deposit(t, v, carol, 49)
	require.NoError(t, v.Close(source))
	require.NoError(t, v.RequestFunds(admin, t0))

	require.NoError(t, v.VoteAgainstWithdrawal(alice, t0.Add(time.Minute)))
	require.Equal(t, StateVoting, v.GetState())

	require.NoError(t, v.VoteAgainstWithdrawal(bob, t0.Add(2*time.Minute)))
	require.Equal(t, StateWithdrawalRejected, v.GetState())
}

func TestVoteGuards(t *testing.T) {
	v, _, _ := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	require.ErrorIs(t, v.VoteAgainstWithdrawal(alice, t0), ErrWrongState)

	require.NoError(t, v.RequestFunds(admin, t0))

	require.ErrorIs(t, v.VoteAgainstWithdrawal(carol, t0.Add(time.Minute)), ErrNoDeposit)
	require.ErrorIs(t, v.VoteAgainstWithdrawal(bob, t0.Add(time.Hour)), ErrVotingClosed)

	require.NoError(t, v.VoteAgainstWithdrawal(bob, t0.Add(time.Minute)))
	require.ErrorIs(t, v.VoteAgainstWithdrawal(bob, t0.Add(2*time.Minute)), ErrAlreadyVoted)

	// 40 of 100 is not a majority
	require.Equal(t, StateVoting, v.GetState())
}

// A contributor who voted against a rejected request may vote again on the
// retry of the same milestone, and again once the next milestone begins.
func TestVoteScopePerMilestoneAndRetry(t *testing.T) {
	params := defaultParams(50, 50)
	params.RetryCooldown = time.Hour
	v, _, _ := newTestVault(t, params)
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	// milestone 0 retry 0, rejected by alice
	require.NoError(t, v.RequestFunds(admin, t0))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, t0.Add(time.Minute)))
	require.Equal(t, StateWithdrawalRejected, v.GetState())

	// milestone 0 retry 1, alice can vote again
	retryAt := t0.Add(time.Minute).Add(time.Hour).Add(time.Second)
	require.NoError(t, v.RequestFunds(admin, retryAt))
	require.NoError(t, v.VoteAgainstWithdrawal(bob, retryAt.Add(time.Minute)))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, retryAt.Add(2*time.Minute)))
	require.Equal(t, StateWithdrawalRejected, v.GetState())
	require.Equal(t, 2, v.GetRetryCount())

	// milestone 0 retry 2 passes unopposed
	retryAt = retryAt.Add(2 * time.Minute).Add(time.Hour).Add(time.Second)
	require.NoError(t, v.RequestFunds(admin, retryAt))
	require.NoError(t, v.WithdrawFunds(admin, retryAt.Add(time.Hour).Add(time.Second)))
	require.Equal(t, 1, v.GetMilestoneIndex())
	require.Equal(t, 0, v.GetRetryCount())

	// milestone 1 retry 0, alice votes independently of earlier rounds
	nextRequestAt := retryAt.Add(2 * time.Hour)
	require.NoError(t, v.RequestFunds(admin, nextRequestAt))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, nextRequestAt.Add(time.Minute)))
}

// Retries during cooldown fail; a third rejection cancels the project within
// the deciding vote call.
func TestRetryCooldownAndCancellation(t *testing.T) {
	v, _, events := newTestVault(t, defaultParams(30, 40, 30))
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	rejectOnce := func(requestAt time.Time) time.Time {
		require.NoError(t, v.RequestFunds(admin, requestAt))
		voteAt := requestAt.Add(time.Minute)
		require.NoError(t, v.VoteAgainstWithdrawal(alice, voteAt))
		return voteAt
	}

	rejectedAt := rejectOnce(t0)
	require.Equal(t, 1, v.GetRetryCount())

	// cooldown counts from the moment the window was force-closed
	require.ErrorIs(t, v.RequestFunds(admin, rejectedAt.Add(time.Hour)), ErrCooldownActive)
	require.ErrorIs(t, v.RequestFunds(admin, rejectedAt.Add(24*time.Hour)), ErrCooldownActive)

	rejectedAt = rejectOnce(rejectedAt.Add(24*time.Hour + time.Second))
	require.Equal(t, 2, v.GetRetryCount())

	rejectedAt = rejectOnce(rejectedAt.Add(24*time.Hour + time.Second))
	require.Equal(t, 3, v.GetRetryCount())
	require.Equal(t, StateProjectCancelled, v.GetState())

	last := (*events)[len(*events)-1].(EventProjectCancelled)
	require.Equal(t, 3, last.RetryCount)
	require.Equal(t, 0, last.MilestoneIndex)

	// terminal state rejects everything except refunds
	require.ErrorIs(t, v.RequestFunds(admin, rejectedAt.Add(100*time.Hour)), ErrWrongState)
	require.ErrorIs(t, v.WithdrawFunds(admin, rejectedAt.Add(100*time.Hour)), ErrWrongState)
}

// Pro-rata refund of the remaining funds after cancellation.
func TestRefundAfterCancellation(t *testing.T) {
	params := defaultParams(30, 40, 30)
	params.MaxRetryAttempts = 1
	v, gateway, events := newTestVault(t, params)
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	require.NoError(t, v.RequestFunds(admin, t0))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, t0.Add(time.Minute)))
	require.Equal(t, StateProjectCancelled, v.GetState())

	require.NoError(t, v.RefundContribution(bob, t0.Add(time.Hour)))
	requireAmount(t, 40, gateway.sentTo(bob))
	requireAmount(t, 0, v.GetDeposited(bob))

	// the lifetime total is untouched by the refund
	requireAmount(t, 100, v.GetTotalFunds())
	requireAmount(t, 60, v.GetBalance())

	require.ErrorIs(t, v.RefundContribution(bob, t0.Add(2*time.Hour)), ErrNoDeposit)
	require.ErrorIs(t, v.RefundContribution(carol, t0.Add(2*time.Hour)), ErrNoDeposit)

	require.NoError(t, v.RefundContribution(alice, t0.Add(2*time.Hour)))
	requireAmount(t, 60, gateway.sentTo(alice))
	requireAmount(t, 0, v.GetBalance())

	refunded := (*events)[len(*events)-1].(EventRefundedContribution)
	require.Equal(t, alice, refunded.Contributor)
	requireAmount(t, 60, refunded.Amount)
}

func TestRefundOutsideCancelledState(t *testing.T) {
	v, _, _ := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 100)
	require.ErrorIs(t, v.RefundContribution(alice, t0), ErrWrongState)
}

// Refund math after a partial payout: remaining = totalFunds - fundsWithdrawn,
// shares computed against the lifetime total.
func TestRefundAfterPartialWithdrawal(t *testing.T) {
	params := defaultParams(30, 40, 30)
	params.MaxRetryAttempts = 1
	v, gateway, _ := newTestVault(t, params)
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	// milestone 0 passes unopposed: 30 paid out
	require.NoError(t, v.RequestFunds(admin, t0))
	require.NoError(t, v.WithdrawFunds(admin, t0.Add(time.Hour).Add(time.Second)))
	requireAmount(t, 30, gateway.sentTo(beneficiary))

	// milestone 1 rejected, project cancelled
	requestAt := t0.Add(2 * time.Hour)
	require.NoError(t, v.RequestFunds(admin, requestAt))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, requestAt.Add(time.Minute)))
	require.Equal(t, StateProjectCancelled, v.GetState())

	// remaining 70, alice gets 70*60/100 = 42, bob 70*40/100 = 28
	require.NoError(t, v.RefundContribution(alice, requestAt.Add(time.Hour)))
	require.NoError(t, v.RefundContribution(bob, requestAt.Add(time.Hour)))
	requireAmount(t, 42, gateway.sentTo(alice))
	requireAmount(t, 28, gateway.sentTo(bob))
	requireAmount(t, 0, v.GetBalance())
}

// A single 100% milestone paid out in full, then the vault is drained and
// further requests fail.
func TestFullWithdrawal(t *testing.T) {
	v, gateway, events := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 100)
	require.NoError(t, v.Close(source))

	require.NoError(t, v.RequestFunds(admin, t0))

	require.ErrorIs(t, v.WithdrawFunds(admin, t0.Add(time.Minute)), ErrVotingNotEnded)
	require.ErrorIs(t, v.WithdrawFunds(admin, t0.Add(time.Hour)), ErrVotingNotEnded)
	require.ErrorIs(t, v.WithdrawFunds(source, t0.Add(2*time.Hour)), ErrUnauthorized)

	require.NoError(t, v.WithdrawFunds(admin, t0.Add(time.Hour).Add(time.Second)))
	requireAmount(t, 100, gateway.sentTo(beneficiary))
	require.Equal(t, StateClosed, v.GetState())
	require.Equal(t, 1, v.GetMilestoneIndex())
	requireAmount(t, 0, v.GetBalance())
	requireAmount(t, 100, v.GetFundsWithdrawn())

	withdrawn := (*events)[len(*events)-1].(EventFundsWithdrawn)
	require.Equal(t, 0, withdrawn.MilestoneIndex)
	requireAmount(t, 100, withdrawn.Amount)

	require.ErrorIs(t, v.RequestFunds(admin, t0.Add(2*time.Hour)), ErrMilestonesExhausted)
}

func TestAllMilestonesSequentially(t *testing.T) {
	v, gateway, _ := newTestVault(t, defaultParams(30, 40, 30))
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))

	at := t0
	for i, want := range []int64{30, 40, 30} {
		require.NoError(t, v.RequestFunds(admin, at))
		at = at.Add(time.Hour).Add(time.Second)
		require.NoError(t, v.WithdrawFunds(admin, at))
		require.Equal(t, i+1, v.GetMilestoneIndex())
		last := gateway.transfers[len(gateway.transfers)-1]
		requireAmount(t, want, last.amount)
		at = at.Add(time.Hour)
	}

	requireAmount(t, 100, gateway.sentTo(beneficiary))
	requireAmount(t, 0, v.GetBalance())
	require.Zero(t, v.GetFundsWithdrawn().Cmp(v.GetTotalFunds()))
}

// Truncating division leaves a remainder in escrow rather than overpaying.
func TestMilestoneShareTruncates(t *testing.T) {
	v, gateway, _ := newTestVault(t, defaultParams(33, 67))
	deposit(t, v, alice, 10)
	require.NoError(t, v.Close(source))

	require.NoError(t, v.RequestFunds(admin, t0))
	require.NoError(t, v.WithdrawFunds(admin, t0.Add(time.Hour).Add(time.Second)))

	// 10*33/100 = 3 (truncated)
	requireAmount(t, 3, gateway.sentTo(beneficiary))
	requireAmount(t, 7, v.GetBalance())
}

func TestWithdrawRollsBackOnTransferFailure(t *testing.T) {
	v, gateway, events := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 100)
	require.NoError(t, v.Close(source))
	require.NoError(t, v.RequestFunds(admin, t0))

	gateway.failSend = true
	withdrawAt := t0.Add(time.Hour).Add(time.Second)
	err := v.WithdrawFunds(admin, withdrawAt)
	require.ErrorIs(t, err, ErrTransferFailed)

	require.Equal(t, StateVoting, v.GetState())
	require.Equal(t, 0, v.GetMilestoneIndex())
	requireAmount(t, 0, v.GetFundsWithdrawn())
	requireAmount(t, 100, v.GetBalance())

	eventsBefore := len(*events)

	// a fresh call succeeds once the rail recovers
	gateway.failSend = false
	require.NoError(t, v.WithdrawFunds(admin, withdrawAt))
	requireAmount(t, 100, gateway.sentTo(beneficiary))
	require.Len(t, *events, eventsBefore+1)
}

func TestRefundRollsBackOnTransferFailure(t *testing.T) {
	params := defaultParams(100)
	params.MaxRetryAttempts = 1
	v, gateway, _ := newTestVault(t, params)
	deposit(t, v, alice, 60)
	deposit(t, v, bob, 40)
	require.NoError(t, v.Close(source))
	require.NoError(t, v.RequestFunds(admin, t0))
	require.NoError(t, v.VoteAgainstWithdrawal(alice, t0.Add(time.Minute)))
	require.Equal(t, StateProjectCancelled, v.GetState())

	gateway.failSend = true
	err := v.RefundContribution(alice, t0.Add(time.Hour))
	require.ErrorIs(t, err, ErrTransferFailed)

	// the zeroed deposit record is restored
	requireAmount(t, 60, v.GetDeposited(alice))
	requireAmount(t, 100, v.GetBalance())

	gateway.failSend = false
	require.NoError(t, v.RefundContribution(alice, t0.Add(time.Hour)))
	requireAmount(t, 60, gateway.sentTo(alice))
}

func TestRequestFundsGuards(t *testing.T) {
	v, _, _ := newTestVault(t, defaultParams(100))
	deposit(t, v, alice, 100)

	require.ErrorIs(t, v.RequestFunds(admin, t0), ErrWrongState)

	require.NoError(t, v.Close(source))
	require.ErrorIs(t, v.RequestFunds(source, t0), ErrUnauthorized)
	require.NoError(t, v.RequestFunds(admin, t0))

	// a second request while voting is open
	require.ErrorIs(t, v.RequestFunds(admin, t0.Add(time.Minute)), ErrWrongState)
}

func TestFundsWithdrawnNeverExceedsTotal(t *testing.T) {
	v, _, _ := newTestVault(t, defaultParams(50, 50))
	deposit(t, v, alice, 99)
	require.NoError(t, v.Close(source))

	at := t0
	for v.GetMilestoneIndex() < 2 {
		require.NoError(t, v.RequestFunds(admin, at))
		at = at.Add(time.Hour).Add(time.Second)
		require.NoError(t, v.WithdrawFunds(admin, at))
		require.LessOrEqual(t, v.GetFundsWithdrawn().Cmp(v.GetTotalFunds()), 0)
		at = at.Add(time.Hour)
	}
}
