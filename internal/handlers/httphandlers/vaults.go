package httphandlers

import (
	"errors"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"gitlab.com/TitanInd/fundvault/internal/vault"
)

type CreateVaultRequest struct {
	FundingSource        string  `json:"fundingSource"`
	Admin                string  `json:"admin"`
	Beneficiary          string  `json:"beneficiary"`
	Milestones           []uint8 `json:"milestones"`
	VotingTimeSeconds    int     `json:"votingTimeSeconds"`
	RetryCooldownSeconds int     `json:"retryCooldownSeconds"`
	MaxRetryAttempts     int     `json:"maxRetryAttempts"`
}

type VaultResponse struct {
	ID             string  `json:"id"`
	State          string  `json:"state"`
	EscrowAccount  string  `json:"escrowAccount"`
	FundingSource  string  `json:"fundingSource"`
	Admin          string  `json:"admin"`
	Beneficiary    string  `json:"beneficiary"`
	Milestones     []uint8 `json:"milestones"`
	MilestoneIndex int     `json:"milestoneIndex"`
	RetryCount     int     `json:"retryCount"`
	TotalFunds     string  `json:"totalFunds"`
	FundsWithdrawn string  `json:"fundsWithdrawn"`
	Balance        string  `json:"balance"`
	WindowStart    *string `json:"votingWindowStart,omitempty"`
	WindowEnd      *string `json:"votingWindowEnd,omitempty"`
}

type EventResponse struct {
	Name      string      `json:"name"`
	Topic     string      `json:"topic"`
	Timestamp string      `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

func (h *HTTPHandler) CreateVault(ctx *gin.Context) {
	var req CreateVaultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(400, gin.H{"error": err.Error()})
		return
	}

	fundingSource, ok := parseAddress(req.FundingSource)
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid fundingSource address"})
		return
	}
	adminAddr, ok := parseAddress(req.Admin)
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid admin address"})
		return
	}
	beneficiary, ok := parseAddress(req.Beneficiary)
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid beneficiary address"})
		return
	}

	v, err := h.vaultManager.CreateVault(vault.Params{
		FundingSource:    fundingSource,
		Admin:            adminAddr,
		Beneficiary:      beneficiary,
		Milestones:       req.Milestones,
		VotingTime:       time.Duration(req.VotingTimeSeconds) * time.Second,
		RetryCooldown:    time.Duration(req.RetryCooldownSeconds) * time.Second,
		MaxRetryAttempts: req.MaxRetryAttempts,
	})
	if err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}

	ctx.JSON(201, h.mapVault(v))
}

func (h *HTTPHandler) GetVaults(ctx *gin.Context) {
	data := []VaultResponse{}
	for _, v := range h.vaultManager.GetVaults() {
		data = append(data, h.mapVault(v))
	}
	ctx.JSON(200, data)
}

func (h *HTTPHandler) GetVault(ctx *gin.Context) {
	v, ok := h.vaultManager.GetVault(ctx.Param("ID"))
	if !ok {
		ctx.JSON(404, gin.H{"error": "vault not found"})
		return
	}
	ctx.JSON(200, h.mapVault(v))
}

func (h *HTTPHandler) GetVaultEvents(ctx *gin.Context) {
	history, ok := h.vaultManager.GetHistory(ctx.Param("ID"))
	if !ok {
		ctx.JSON(404, gin.H{"error": "vault not found"})
		return
	}

	data := []EventResponse{}
	for _, item := range history.GetAll() {
		data = append(data, EventResponse{
			Name:      item.Name,
			Topic:     item.Topic,
			Timestamp: item.Timestamp.Format(time.RFC3339),
			Payload:   item.Payload,
		})
	}
	ctx.JSON(200, data)
}

func (h *HTTPHandler) Deposit(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	contributor, ok := parseAddress(ctx.Query("contributor"))
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid contributor address"})
		return
	}

	amount, ok := new(big.Int).SetString(ctx.Query("amount"), 10)
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid amount"})
		return
	}

	if err := v.Deposit(caller, contributor, amount); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"status": "ok"})
}

func (h *HTTPHandler) CloseFundraising(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	if err := v.Close(caller); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"status": "ok"})
}

func (h *HTTPHandler) RequestFunds(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	if err := v.RequestFunds(caller, time.Now()); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, h.mapVault(v))
}

func (h *HTTPHandler) WithdrawFunds(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	if err := v.WithdrawFunds(caller, time.Now()); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, h.mapVault(v))
}

func (h *HTTPHandler) VoteAgainstWithdrawal(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	if err := v.VoteAgainstWithdrawal(caller, time.Now()); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, h.mapVault(v))
}

func (h *HTTPHandler) RefundContribution(ctx *gin.Context) {
	v, caller, ok := h.vaultAndCaller(ctx)
	if !ok {
		return
	}

	if err := v.RefundContribution(caller, time.Now()); err != nil {
		h.abortWithVaultError(ctx, err)
		return
	}
	ctx.JSON(200, gin.H{"status": "ok"})
}

func (h *HTTPHandler) vaultAndCaller(ctx *gin.Context) (*vault.Vault, common.Address, bool) {
	v, ok := h.vaultManager.GetVault(ctx.Param("ID"))
	if !ok {
		ctx.JSON(404, gin.H{"error": "vault not found"})
		return nil, common.Address{}, false
	}

	caller, ok := parseAddress(ctx.Query("caller"))
	if !ok {
		ctx.JSON(400, gin.H{"error": "invalid caller address"})
		return nil, common.Address{}, false
	}

	return v, caller, true
}

func (h *HTTPHandler) abortWithVaultError(ctx *gin.Context, err error) {
	status := 409
	switch {
	case errors.Is(err, vault.ErrUnauthorized):
		status = 403
	case errors.Is(err, vault.ErrInvalidAmount),
		errors.Is(err, vault.ErrInvalidMilestones),
		errors.Is(err, vault.ErrInvalidParams):
		status = 400
	case errors.Is(err, vault.ErrTransferFailed):
		status = 502
	}
	ctx.JSON(status, gin.H{"error": err.Error()})
}

func (h *HTTPHandler) mapVault(v *vault.Vault) VaultResponse {
	escrow, _ := h.vaultManager.GetEscrowAddress(v.GetID())
	windowStart, windowEnd := v.GetVotingWindow()

	return VaultResponse{
		ID:             v.GetID(),
		State:          v.GetState().String(),
		EscrowAccount:  escrow.Hex(),
		FundingSource:  v.GetFundingSource().Hex(),
		Admin:          v.GetAdmin().Hex(),
		Beneficiary:    v.GetBeneficiary().Hex(),
		Milestones:     v.GetMilestones(),
		MilestoneIndex: v.GetMilestoneIndex(),
		RetryCount:     v.GetRetryCount(),
		TotalFunds:     v.GetTotalFunds().String(),
		FundsWithdrawn: v.GetFundsWithdrawn().String(),
		Balance:        v.GetBalance().String(),
		WindowStart:    timePtrToStringPtr(windowStart),
		WindowEnd:      timePtrToStringPtr(windowEnd),
	}
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func timePtrToStringPtr(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
