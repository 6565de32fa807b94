package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/internal/exchange/infrastructure/rates"
)

// AdminHandler manages reference data: methods and market rates.
type AdminHandler struct {
	methods    domain.MethodRepository
	rateSource *rates.RedisSource
}

func NewAdminHandler(methods domain.MethodRepository, rateSource *rates.RedisSource) *AdminHandler {
	return &AdminHandler{methods: methods, rateSource: rateSource}
}

func (h *AdminHandler) RegisterRoutes(router *gin.Engine) {
	admin := router.Group("/api/v1/admin")
	{
		admin.PUT("/methods", h.UpsertMethod)
		admin.PUT("/rates/:currency", h.SetRate)
	}
}

// UpsertMethodBody creates or updates a payment method.
type UpsertMethodBody struct {
	MethodID                string `json:"method_id" binding:"required"`
	CurrencyID              string `json:"currency_id" binding:"required"`
	Name                    string `json:"name" binding:"required"`
	Rate                    string `json:"rate"`
	CommissionInputValue    string `json:"commission_input_value"`
	CommissionOutputValue   string `json:"commission_output_value"`
	CommissionInputPercent  string `json:"commission_input_percent"`
	CommissionOutputPercent string `json:"commission_output_percent"`
	FieldSchema             string `json:"field_schema"`
	InputFieldSchema        string `json:"input_field_schema"`
	IsActive                bool   `json:"is_active"`
}

func (h *AdminHandler) UpsertMethod(c *gin.Context) {
	var body UpsertMethodBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	method := &domain.Method{
		MethodID:         body.MethodID,
		CurrencyID:       body.CurrencyID,
		Name:             body.Name,
		FieldSchema:      body.FieldSchema,
		InputFieldSchema: body.InputFieldSchema,
		IsActive:         body.IsActive,
	}
	fields := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&method.Rate, body.Rate},
		{&method.CommissionInputValue, body.CommissionInputValue},
		{&method.CommissionOutputValue, body.CommissionOutputValue},
		{&method.CommissionInputPercent, body.CommissionInputPercent},
		{&method.CommissionOutputPercent, body.CommissionOutputPercent},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		*f.dst = v
	}
	if err := h.methods.Save(c.Request.Context(), method); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, method)
}

// SetRateBody publishes a market rate for a currency.
type SetRateBody struct {
	Rate string `json:"rate" binding:"required"`
}

func (h *AdminHandler) SetRate(c *gin.Context) {
	var body SetRateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rate, err := decimal.NewFromString(body.Rate)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid rate"})
		return
	}
	if err := h.rateSource.SetRate(c.Request.Context(), c.Param("currency"), rate); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"currency": c.Param("currency"), "rate": rate.String()})
}
