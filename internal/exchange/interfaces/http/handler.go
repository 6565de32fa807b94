package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/wyfcoding/p2pexchange/internal/exchange/application"
	"github.com/wyfcoding/p2pexchange/internal/exchange/domain"
	"github.com/wyfcoding/p2pexchange/pkg/logger"
)

// WalletHeader carries the caller's wallet identity. Authentication sits
// in front of this service and injects the header.
const WalletHeader = "X-Wallet-ID"

// Handler wires the exchange use cases to HTTP.
type Handler struct {
	requests      *application.RequestCommandService
	orders        *application.OrderCommandService
	orderRequests *application.OrderRequestCommandService
	requisites    *application.RequisiteCommandService
	queries       *application.QueryService
}

func NewHandler(
	requests *application.RequestCommandService,
	orders *application.OrderCommandService,
	orderRequests *application.OrderRequestCommandService,
	requisites *application.RequisiteCommandService,
	queries *application.QueryService,
) *Handler {
	return &Handler{
		requests:      requests,
		orders:        orders,
		orderRequests: orderRequests,
		requisites:    requisites,
		queries:       queries,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/currencies", h.ListCurrencies)
		api.GET("/currencies/:id/methods", h.ListMethods)

		api.POST("/requests", h.CreateRequest)
		api.GET("/requests", h.ListRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.POST("/requests/:id/activate", h.ActivateRequest)
		api.POST("/requests/:id/cancel", h.CancelRequest)

		api.GET("/orders", h.ListProviderOrders)
		api.GET("/orders/:id", h.GetOrder)
		api.POST("/orders/:id/confirm", h.ConfirmOrder)
		api.POST("/orders/:id/complete", h.CompleteOrder)
		api.POST("/orders/:id/cancel", h.CancelOrder)

		api.POST("/orders/:id/requests", h.CreateOrderRequest)
		api.GET("/orders/:id/requests", h.ListOrderRequests)
		api.POST("/order-requests/:id/approve", h.ApproveOrderRequest)
		api.POST("/order-requests/:id/reject", h.RejectOrderRequest)

		api.POST("/requisites", h.CreateRequisite)
		api.GET("/requisites", h.ListRequisites)
		api.POST("/requisites/:id/topup", h.TopUpRequisite)
		api.POST("/requisites/:id/enable", h.EnableRequisite)
		api.POST("/requisites/:id/disable", h.DisableRequisite)
		api.DELETE("/requisites/:id", h.WithdrawRequisite)
	}
}

func walletID(c *gin.Context) (string, bool) {
	id := c.GetHeader(WalletHeader)
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wallet header is required"})
		return "", false
	}
	return id, true
}

// respondError maps domain failures onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCurrencyNotFound),
		errors.Is(err, domain.ErrMethodNotFound),
		errors.Is(err, domain.ErrRequestNotFound),
		errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, domain.ErrRequisiteNotFound),
		errors.Is(err, domain.ErrOrderRequestNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case domain.IsStateError(err),
		errors.Is(err, domain.ErrOrderRequestPending):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrFirstLineInvalid),
		errors.Is(err, domain.ErrRequestTypeInvalid),
		errors.Is(err, domain.ErrConfirmationFields),
		errors.Is(err, domain.ErrAmendmentNotApprovable),
		errors.Is(err, domain.ErrZeroRate),
		errors.Is(err, domain.ErrRequisiteCapacity):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) ListCurrencies(c *gin.Context) {
	currencies, err := h.queries.ListCurrencies(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, currencies)
}

func (h *Handler) ListMethods(c *gin.Context) {
	methods, err := h.queries.ListMethods(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, methods)
}

// CreateRequestBody is the request creation payload. Amounts are decimal
// strings in minor units.
type CreateRequestBody struct {
	Type                string `json:"type"`
	InputMethodID       string `json:"input_method_id"`
	OutputMethodID      string `json:"output_method_id"`
	FirstLine           string `json:"first_line" binding:"required"`
	InputCurrencyValue  string `json:"input_currency_value"`
	OutputCurrencyValue string `json:"output_currency_value"`
	OutputFieldValues   string `json:"output_field_values"`
}

func (h *Handler) CreateRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := application.CreateRequestCommand{
		WalletID:          wallet,
		Type:              domain.RequestType(body.Type),
		InputMethodID:     body.InputMethodID,
		OutputMethodID:    body.OutputMethodID,
		FirstLine:         domain.FirstLine(body.FirstLine),
		OutputFieldValues: body.OutputFieldValues,
	}
	var err error
	if cmd.InputCurrencyValue, err = parseAmount(body.InputCurrencyValue); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid input_currency_value"})
		return
	}
	if cmd.OutputCurrencyValue, err = parseAmount(body.OutputCurrencyValue); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid output_currency_value"})
		return
	}
	req, err := h.requests.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, req)
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func (h *Handler) ListRequests(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	requests, err := h.queries.ListRequests(c.Request.Context(), wallet, c.QueryArray("state"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *Handler) GetRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	detail, err := h.queries.GetRequest(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, detail)
}

func (h *Handler) ActivateRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	req, err := h.requests.Activate(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

func (h *Handler) CancelRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	if err := h.requests.Cancel(c.Request.Context(), wallet, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

func (h *Handler) ListProviderOrders(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	orders, err := h.queries.ListProviderOrders(c.Request.Context(), wallet, c.QueryArray("state"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orders)
}

func (h *Handler) GetOrder(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	order, err := h.queries.GetOrder(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// ConfirmOrderBody carries the payer's proof of payment.
type ConfirmOrderBody struct {
	Fields string `json:"fields" binding:"required"`
}

func (h *Handler) ConfirmOrder(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body ConfirmOrderBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	order, err := h.orders.Confirm(c.Request.Context(), wallet, c.Param("id"), body.Fields)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

func (h *Handler) CompleteOrder(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	order, err := h.orders.Complete(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// CancelOrderBody optionally explains the cancellation.
type CancelOrderBody struct {
	Reason string `json:"reason"`
}

func (h *Handler) CancelOrder(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body CancelOrderBody
	_ = c.ShouldBindJSON(&body)
	if err := h.orders.Cancel(c.Request.Context(), wallet, c.Param("id"), body.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "canceled"})
}

// CreateOrderRequestBody proposes an amendment.
type CreateOrderRequestBody struct {
	Type          string `json:"type" binding:"required"`
	CurrencyValue string `json:"currency_value"`
	Reason        string `json:"reason"`
}

func (h *Handler) CreateOrderRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body CreateOrderRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := application.CreateOrderRequestCommand{
		WalletID: wallet,
		OrderID:  c.Param("id"),
		Type:     domain.OrderRequestType(body.Type),
		Reason:   body.Reason,
	}
	var err error
	if cmd.CurrencyValue, err = parseAmount(body.CurrencyValue); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency_value"})
		return
	}
	orderRequest, err := h.orderRequests.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, orderRequest)
}

func (h *Handler) ListOrderRequests(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	orderRequests, err := h.queries.ListOrderRequests(c.Request.Context(), wallet, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderRequests)
}

func (h *Handler) ApproveOrderRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	if err := h.orderRequests.Approve(c.Request.Context(), wallet, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "approved"})
}

func (h *Handler) RejectOrderRequest(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	if err := h.orderRequests.Reject(c.Request.Context(), wallet, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "rejected"})
}

// CreateRequisiteBody registers a liquidity offer.
type CreateRequisiteBody struct {
	Type             string `json:"type" binding:"required"`
	MethodID         string `json:"method_id" binding:"required"`
	Rate             string `json:"rate"`
	CurrencyValue    string `json:"currency_value" binding:"required"`
	Value            string `json:"value" binding:"required"`
	CurrencyValueMin string `json:"currency_value_min"`
	CurrencyValueMax string `json:"currency_value_max"`
	ValueMin         string `json:"value_min"`
	ValueMax         string `json:"value_max"`
	IsFlex           bool   `json:"is_flex"`
	FieldValues      string `json:"field_values"`
}

func (h *Handler) CreateRequisite(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body CreateRequisiteBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := application.CreateRequisiteCommand{
		WalletID:    wallet,
		Type:        domain.OrderType(body.Type),
		MethodID:    body.MethodID,
		IsFlex:      body.IsFlex,
		FieldValues: body.FieldValues,
	}
	fields := []struct {
		dst *decimal.Decimal
		raw string
	}{
		{&cmd.Rate, body.Rate},
		{&cmd.CurrencyValue, body.CurrencyValue},
		{&cmd.Value, body.Value},
		{&cmd.CurrencyValueMin, body.CurrencyValueMin},
		{&cmd.CurrencyValueMax, body.CurrencyValueMax},
		{&cmd.ValueMin, body.ValueMin},
		{&cmd.ValueMax, body.ValueMax},
	}
	for _, f := range fields {
		v, err := parseAmount(f.raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		*f.dst = v
	}
	requisite, err := h.requisites.Create(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, requisite)
}

func (h *Handler) ListRequisites(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	requisites, err := h.queries.ListRequisites(c.Request.Context(), wallet)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisites)
}

// TopUpBody adds capacity to a requisite.
type TopUpBody struct {
	CurrencyValue string `json:"currency_value"`
	Value         string `json:"value"`
}

func (h *Handler) TopUpRequisite(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	var body TopUpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	currencyValue, err := parseAmount(body.CurrencyValue)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid currency_value"})
		return
	}
	value, err := parseAmount(body.Value)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
		return
	}
	requisite, err := h.requisites.TopUp(c.Request.Context(), wallet, c.Param("id"), currencyValue, value)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisite)
}

func (h *Handler) EnableRequisite(c *gin.Context) {
	h.setRequisiteActive(c, true)
}

func (h *Handler) DisableRequisite(c *gin.Context) {
	h.setRequisiteActive(c, false)
}

func (h *Handler) setRequisiteActive(c *gin.Context, active bool) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	requisite, err := h.requisites.SetActive(c.Request.Context(), wallet, c.Param("id"), active)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, requisite)
}

func (h *Handler) WithdrawRequisite(c *gin.Context) {
	wallet, ok := walletID(c)
	if !ok {
		return
	}
	if err := h.requisites.Withdraw(c.Request.Context(), wallet, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "withdrawn"})
}
