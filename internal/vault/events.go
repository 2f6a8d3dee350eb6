package vault

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	closedSig               = "closed()"
	fundsRequestedSig       = "fundsRequested(uint256,uint256,uint256)"
	rejectedWithdrawalSig   = "rejectedWithdrawal(uint256,uint256)"
	fundsWithdrawnSig       = "fundsWithdrawn(uint256,uint256)"
	projectCancelledSig     = "projectCancelled(uint256,uint256,uint256)"
	refundedContributionSig = "refundedContribution(uint256,uint256)"
)

var (
	ClosedHash               = crypto.Keccak256Hash([]byte(closedSig))
	FundsRequestedHash       = crypto.Keccak256Hash([]byte(fundsRequestedSig))
	RejectedWithdrawalHash   = crypto.Keccak256Hash([]byte(rejectedWithdrawalSig))
	FundsWithdrawnHash       = crypto.Keccak256Hash([]byte(fundsWithdrawnSig))
	ProjectCancelledHash     = crypto.Keccak256Hash([]byte(projectCancelledSig))
	RefundedContributionHash = crypto.Keccak256Hash([]byte(refundedContributionSig))

	ClosedHex               = ClosedHash.Hex()
	FundsRequestedHex       = FundsRequestedHash.Hex()
	RejectedWithdrawalHex   = RejectedWithdrawalHash.Hex()
	FundsWithdrawnHex       = FundsWithdrawnHash.Hex()
	ProjectCancelledHex     = ProjectCancelledHash.Hex()
	RefundedContributionHex = RefundedContributionHash.Hex()
)

// Event is a notification emitted after a successful state transition.
// Events are fired in call order and are never replayed.
type Event interface {
	TopicHex() string
	Name() string
}

type EventClosed struct {
	VaultID string
}

type EventFundsRequested struct {
	VaultID        string
	MilestoneIndex int
	Amount         *big.Int
	WindowStart    time.Time
	WindowEnd      time.Time
}

type EventRejectedWithdrawal struct {
	VaultID      string
	VotesAgainst *big.Int
	TotalFunds   *big.Int
}

type EventFundsWithdrawn struct {
	VaultID        string
	MilestoneIndex int
	Amount         *big.Int
}

type EventProjectCancelled struct {
	VaultID        string
	Time           time.Time
	RetryCount     int
	MilestoneIndex int
}

type EventRefundedContribution struct {
	VaultID     string
	Time        time.Time
	Contributor common.Address
	Amount      *big.Int
}

func (EventClosed) TopicHex() string               { return ClosedHex }
func (EventFundsRequested) TopicHex() string       { return FundsRequestedHex }
func (EventRejectedWithdrawal) TopicHex() string   { return RejectedWithdrawalHex }
func (EventFundsWithdrawn) TopicHex() string       { return FundsWithdrawnHex }
func (EventProjectCancelled) TopicHex() string     { return ProjectCancelledHex }
func (EventRefundedContribution) TopicHex() string { return RefundedContributionHex }

func (EventClosed) Name() string               { return "Closed" }
func (EventFundsRequested) Name() string       { return "FundsRequested" }
func (EventRejectedWithdrawal) Name() string   { return "RejectedWithdrawal" }
func (EventFundsWithdrawn) Name() string       { return "FundsWithdrawn" }
func (EventProjectCancelled) Name() string     { return "ProjectCancelled" }
func (EventRefundedContribution) Name() string { return "RefundedContribution" }
