package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"GiftCardPay/internal/logger"
	"GiftCardPay/internal/models"
	"GiftCardPay/internal/payments"
	"GiftCardPay/internal/services"
	"GiftCardPay/internal/store"
)

type OrderService interface {
	BuildInvoice(ctx context.Context, req services.InvoiceRequest) (*models.Invoice, error)
	GetOrder(ctx context.Context, orderID string) (*models.Order, error)
	UserOrders(ctx context.Context, userID string) ([]*models.Order, error)
	ListOrders(ctx context.Context, f store.ListFilter) ([]*models.Order, error)
	Cancel(ctx context.Context, orderID string) (*models.Order, error)
	ForceComplete(ctx context.Context, orderID, code string) (*models.Order, error)
	DiscountPercentage(ctx context.Context) (decimal.Decimal, error)
	SetDiscountPercentage(ctx context.Context, pct decimal.Decimal) error
}

type PaymentVerifier interface {
	Check(ctx context.Context, orderID string) (payments.Status, error)
	Details(ctx context.Context, orderID string) (*models.PaymentDetails, error)
}

type Handler struct {
	log        *slog.Logger
	Orders     OrderService
	Payments   PaymentVerifier
	watchEvery time.Duration
	upgrader   websocket.Upgrader
}

var validate = validator.New()

func NewHandler(log *slog.Logger, orders OrderService, verifier PaymentVerifier, watchEvery time.Duration) *Handler {
	if watchEvery <= 0 {
		watchEvery = 15 * time.Second
	}
	return &Handler{
		log:        log,
		Orders:     orders,
		Payments:   verifier,
		watchEvery: watchEvery,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type createOrderRequest struct {
	UserName     string      `json:"userName" validate:"omitempty,max=128"`
	Country      string      `json:"country" validate:"required,max=64"`
	GiftCard     string      `json:"giftCard" validate:"required,max=128"`
	Crypto       string      `json:"crypto" validate:"required,alphanum,max=10"`
	Denomination string      `json:"denomination" validate:"required_without=Amount,max=64"`
	Amount       json.Number `json:"amount" validate:"omitempty,numeric"`
	Currency     string      `json:"currency" validate:"omitempty,len=3,alpha"`
}

type invoiceResponse struct {
	orderResponse
	CurrencySymbol           string          `json:"currencySymbol"`
	OriginalDiscountedAmount decimal.Decimal `json:"originalDiscountedAmount"`
	DiscountRate             decimal.Decimal `json:"discountRate"`
}

type orderResponse struct {
	OrderID         string          `json:"orderId"`
	UserID          string          `json:"userId"`
	UserName        string          `json:"userName,omitempty"`
	Country         string          `json:"country"`
	GiftCard        string          `json:"giftCard"`
	Denomination    string          `json:"denomination"`
	OriginalPrice   decimal.Decimal `json:"originalPrice"`
	Currency        string          `json:"currency"`
	DiscountedPrice decimal.Decimal `json:"discountedPriceUsd"`
	Crypto          string          `json:"crypto"`
	CryptoAmount    decimal.Decimal `json:"cryptoAmount"`
	PaymentAddress  string          `json:"paymentAddress"`
	Status          string          `json:"status"`
	GiftCardCode    string          `json:"giftCardCode,omitempty"`
	CreatedAt       string          `json:"createdAt"`
	UpdatedAt       string          `json:"updatedAt"`
}

type paymentResponse struct {
	TransactionID string          `json:"transactionId,omitempty"`
	Crypto        string          `json:"crypto"`
	Amount        decimal.Decimal `json:"amount"`
	Status        string          `json:"status"`
	Confirmations int64           `json:"confirmations"`
	CreatedAt     string          `json:"createdAt"`
	ConfirmedAt   string          `json:"confirmedAt,omitempty"`
}

type detailsResponse struct {
	Order   orderResponse    `json:"order"`
	Payment *paymentResponse `json:"payment"`
}

type checkResponse struct {
	Status        string `json:"status"`
	GiftCardCode  string `json:"giftCardCode,omitempty"`
	Confirmations int64  `json:"confirmations,omitempty"`
	Required      int64  `json:"required,omitempty"`
	TxID          string `json:"txId,omitempty"`
}

type completeRequest struct {
	Code string `json:"code" validate:"omitempty,max=64"`
}

type discountRequest struct {
	Percentage json.Number `json:"percentage" validate:"required,numeric"`
}

type discountResponse struct {
	Percentage decimal.Decimal `json:"percentage"`
}

func toOrderResponse(o *models.Order) orderResponse {
	resp := orderResponse{
		OrderID:         o.OrderID,
		UserID:          o.UserID,
		Country:         o.Country,
		GiftCard:        o.GiftCard,
		Denomination:    o.Denomination,
		OriginalPrice:   o.OriginalPrice,
		Currency:        o.Currency,
		DiscountedPrice: o.DiscountedPrice,
		Crypto:          o.Crypto,
		CryptoAmount:    o.CryptoAmount,
		PaymentAddress:  o.PaymentAddress,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt.Format(time.RFC3339),
		UpdatedAt:       o.UpdatedAt.Format(time.RFC3339),
	}
	if o.UserName != nil {
		resp.UserName = *o.UserName
	}
	if o.GiftCardCode != nil {
		resp.GiftCardCode = *o.GiftCardCode
	}
	return resp
}

func toOrderList(orders []*models.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func toCheckResponse(st payments.Status) checkResponse {
	return checkResponse{
		Status:        string(st.Kind),
		GiftCardCode:  st.GiftCardCode,
		Confirmations: st.Confirmations,
		Required:      st.Required,
		TxID:          st.TxID,
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	status, msg := errorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", slog.String("op", op), logger.Err(err))
	} else {
		h.log.Debug("request rejected", slog.String("op", op), logger.Err(err))
	}
	writeError(w, status, msg)
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.CreateOrder"

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	in := services.InvoiceRequest{
		UserID:       r.Header.Get("X-User-Id"),
		UserName:     req.UserName,
		Country:      req.Country,
		GiftCard:     req.GiftCard,
		Crypto:       req.Crypto,
		Denomination: req.Denomination,
		Currency:     req.Currency,
	}
	if req.Amount != "" {
		amount, err := decimal.NewFromString(req.Amount.String())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid amount")
			return
		}
		in.Amount = &amount
	}

	inv, err := h.Orders.BuildInvoice(r.Context(), in)
	if err != nil {
		h.fail(w, op, err)
		return
	}

	writeJSON(w, http.StatusCreated, invoiceResponse{
		orderResponse:            toOrderResponse(&inv.Order),
		CurrencySymbol:           inv.CurrencySymbol,
		OriginalDiscountedAmount: inv.OriginalDiscountedAmount,
		DiscountRate:             inv.DiscountRate,
	})
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.GetOrder"

	details, err := h.Payments.Details(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}

	resp := detailsResponse{Order: toOrderResponse(details.Order)}
	if p := details.Payment; p != nil {
		pr := &paymentResponse{
			Crypto:        p.Crypto,
			Amount:        p.Amount,
			Status:        string(p.Status),
			Confirmations: p.Confirmations,
			CreatedAt:     p.CreatedAt.Format(time.RFC3339),
		}
		if p.TransactionID != nil {
			pr.TransactionID = *p.TransactionID
		}
		if p.ConfirmedAt != nil {
			pr.ConfirmedAt = p.ConfirmedAt.Format(time.RFC3339)
		}
		resp.Payment = pr
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) CheckPayment(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.CheckPayment"

	st, err := h.Payments.Check(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toCheckResponse(st))
}

func (h *Handler) UserOrders(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.UserOrders"

	orders, err := h.Orders.UserOrders(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func (h *Handler) AdminListOrders(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminListOrders"

	q := r.URL.Query()
	status := q.Get("status")
	if err := validate.Var(status, "omitempty,oneof=pending completed cancelled"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid status filter")
		return
	}
	limit, err := queryInt(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	offset, err := queryInt(q.Get("offset"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid offset")
		return
	}

	orders, err := h.Orders.ListOrders(r.Context(), store.ListFilter{
		Status: models.OrderStatus(status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderList(orders))
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("not a non-negative integer")
	}
	return n, nil
}

func (h *Handler) AdminGetOrder(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminGetOrder"

	order, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) AdminCancelOrder(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminCancelOrder"

	order, err := h.Orders.Cancel(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) AdminCompleteOrder(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminCompleteOrder"

	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	order, err := h.Orders.ForceComplete(r.Context(), chi.URLParam(r, "orderId"), req.Code)
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

func (h *Handler) AdminGetDiscount(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminGetDiscount"

	pct, err := h.Orders.DiscountPercentage(r.Context())
	if err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, discountResponse{Percentage: pct})
}

func (h *Handler) AdminSetDiscount(w http.ResponseWriter, r *http.Request) {
	const op = "http.Handler.AdminSetDiscount"

	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}
	pct, err := decimal.NewFromString(req.Percentage.String())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid percentage")
		return
	}

	if err := h.Orders.SetDiscountPercentage(r.Context(), pct); err != nil {
		h.fail(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, discountResponse{Percentage: pct})
}
