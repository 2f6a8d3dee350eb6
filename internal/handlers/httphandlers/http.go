package httphandlers

import (
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	"gitlab.com/TitanInd/fundvault/internal/config"
	"gitlab.com/TitanInd/fundvault/internal/interfaces"
	"gitlab.com/TitanInd/fundvault/internal/vaultmanager"
)

type HTTPHandler struct {
	vaultManager *vaultmanager.VaultManager
	cfg          *config.Config
	log          interfaces.ILogger
}

func NewHTTPHandler(vaultManager *vaultmanager.VaultManager, cfg *config.Config, log interfaces.ILogger) *gin.Engine {
	handl := &HTTPHandler{
		vaultManager: vaultManager,
		cfg:          cfg,
		log:          log,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthcheck", handl.HealthCheck)
	r.GET("/config", handl.GetConfig)

	r.GET("/vaults", handl.GetVaults)
	r.GET("/vaults/:ID", handl.GetVault)
	r.GET("/vaults/:ID/events", handl.GetVaultEvents)

	r.POST("/vaults", handl.CreateVault)
	r.POST("/vaults/:ID/deposit", handl.Deposit)
	r.POST("/vaults/:ID/close", handl.CloseFundraising)
	r.POST("/vaults/:ID/request", handl.RequestFunds)
	r.POST("/vaults/:ID/withdraw", handl.WithdrawFunds)
	r.POST("/vaults/:ID/vote", handl.VoteAgainstWithdrawal)
	r.POST("/vaults/:ID/refund", handl.RefundContribution)

	r.Any("/debug/pprof/*action", gin.WrapF(pprof.Index))

	err := r.SetTrustedProxies(nil)
	if err != nil {
		panic(err)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(ctx *gin.Context) {
	ctx.JSON(200, gin.H{
		"status":  "healthy",
		"version": config.BuildVersion,
	})
}

func (h *HTTPHandler) GetConfig(ctx *gin.Context) {
	ctx.JSON(200, h.cfg.GetSanitized())
}
