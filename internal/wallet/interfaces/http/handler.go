package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/wallet/application"
	"github.com/wyfcoding/p2pexchange/internal/wallet/domain"
)

const walletHeader = "X-Wallet-ID"

// Handler exposes wallet balances and history.
type Handler struct {
	service *application.Service
}

func NewHandler(service *application.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1/wallet")
	{
		api.GET("", h.Balance)
		api.GET("/transfers", h.Transfers)
	}
	admin := router.Group("/api/v1/admin/wallets")
	{
		admin.POST("/:id/deposit", h.Deposit)
	}
}

func (h *Handler) Balance(c *gin.Context) {
	wallet := c.GetHeader(walletHeader)
	if wallet == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet header is required"})
		return
	}
	balance, err := h.service.Balance(c.Request.Context(), wallet)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"wallet_id": balance.WalletID,
		"balance":   balance.Balance.String(),
		"banned":    balance.Banned.String(),
		"available": balance.Available().String(),
	})
}

func (h *Handler) Transfers(c *gin.Context) {
	wallet := c.GetHeader(walletHeader)
	if wallet == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet header is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	transfers, err := h.service.History(c.Request.Context(), wallet, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, transfers)
}

// DepositBody credits a wallet from the system wallet.
type DepositBody struct {
	Amount string `json:"amount" binding:"required"`
	Reason string `json:"reason"`
}

func (h *Handler) Deposit(c *gin.Context) {
	var body DepositBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	amount, err := decimal.NewFromString(body.Amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
		return
	}
	transferID, err := h.service.Deposit(c.Request.Context(), c.Param("id"), amount, body.Reason)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidAmount) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"transfer_id": transferID})
}
