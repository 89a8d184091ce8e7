package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/virtualmercado/shopdrive-sub002/internal/checkout"
	"github.com/virtualmercado/shopdrive-sub002/internal/domain"
	"github.com/virtualmercado/shopdrive-sub002/internal/payment"
	"github.com/virtualmercado/shopdrive-sub002/internal/service"
	apperrors "github.com/virtualmercado/shopdrive-sub002/pkg/errors"
	"github.com/virtualmercado/shopdrive-sub002/pkg/httputil"
	"github.com/virtualmercado/shopdrive-sub002/pkg/logger"
	"github.com/virtualmercado/shopdrive-sub002/pkg/middleware"
	"github.com/virtualmercado/shopdrive-sub002/pkg/money"
	"github.com/virtualmercado/shopdrive-sub002/pkg/validator"
)

// CheckoutHandler handles HTTP requests for checkout session endpoints.
type CheckoutHandler struct {
	service *service.CheckoutService
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(svc *service.CheckoutService, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// EmailRequest is the JSON request body for editing the buyer email.
type EmailRequest struct {
	Email string `json:"email" validate:"max=254"`
}

// ContactRequest is the JSON request body for editing guest contact fields.
type ContactRequest struct {
	FullName string            `json:"full_name" validate:"max=200"`
	Phone    string            `json:"phone" validate:"max=32"`
	Document string            `json:"document" validate:"max=32"`
	Extra    map[string]string `json:"extra" validate:"max=10,dive,max=200"`
}

// LoginRequest is the JSON request body for a password login.
type LoginRequest struct {
	Password string `json:"password" validate:"required,max=128"`
}

// AddressRequest is the JSON request body for editing the destination.
// Partial addresses are accepted; missing fields are reported in the view.
type AddressRequest struct {
	PostalCode   string `json:"postal_code" validate:"max=16"`
	Street       string `json:"street" validate:"max=200"`
	Number       string `json:"number" validate:"max=20"`
	Complement   string `json:"complement" validate:"max=100"`
	Neighborhood string `json:"neighborhood" validate:"max=100"`
	City         string `json:"city" validate:"max=100"`
	State        string `json:"state" validate:"max=2"`
}

// DeliveryMethodRequest is the JSON request body for selecting a delivery method.
type DeliveryMethodRequest struct {
	Kind      string `json:"kind" validate:"required,oneof=pickup local_courier carrier"`
	ServiceID string `json:"service_id" validate:"required_if=Kind carrier"`
}

// PaymentMethodRequest is the JSON request body for selecting a payment method.
type PaymentMethodRequest struct {
	Method string `json:"method" validate:"required,oneof=pix credit_card boleto whatsapp"`
}

// CardRequest is the JSON request body for editing card fields. Shape is
// checked when the card is tokenized.
type CardRequest struct {
	Number     string `json:"number" validate:"max=32"`
	Expiry     string `json:"expiry" validate:"max=8"`
	HolderName string `json:"holder_name" validate:"max=100"`
	CVV        string `json:"cvv" validate:"max=4"`
}

// InstallmentsRequest is the JSON request body for choosing installments.
type InstallmentsRequest struct {
	Count int `json:"count" validate:"required,gte=1,lte=12"`
}

// TokenizeResponse is returned by a successful tokenization. The credential
// itself never leaves the service.
type TokenizeResponse struct {
	Brand        string        `json:"brand"`
	Last4        string        `json:"last4"`
	Installments int           `json:"installments"`
	View         checkout.View `json:"view"`
}

// SubmitResponse is returned by a successful submission.
type SubmitResponse struct {
	OrderID string        `json:"order_id"`
	Receipt *OrderReceipt `json:"receipt,omitempty"`
	View    checkout.View `json:"view"`
}

// OrderReceipt summarizes the draft handed to the order service. The card
// token is left out.
type OrderReceipt struct {
	Delivery          domain.DraftDelivery `json:"delivery"`
	PaymentMethod     string               `json:"payment_method"`
	Installments      int                  `json:"installments,omitempty"`
	InstallmentAmount money.Money          `json:"installment_amount,omitempty"`
	WhatsAppNumber    string               `json:"whatsapp_number,omitempty"`
	WhatsAppMessage   string               `json:"whatsapp_message,omitempty"`
	Subtotal          money.Money          `json:"subtotal"`
	DeliveryFee       money.Money          `json:"delivery_fee"`
	Discount          money.Money          `json:"discount"`
	Total             money.Money          `json:"total"`
	CreatedAt         time.Time            `json:"created_at"`
}

func newOrderReceipt(d domain.OrderDraft) *OrderReceipt {
	return &OrderReceipt{
		Delivery:          d.Delivery,
		PaymentMethod:     d.Payment.Method,
		Installments:      d.Payment.Installments,
		InstallmentAmount: d.Payment.InstallmentAmount,
		WhatsAppNumber:    d.Payment.WhatsAppNumber,
		WhatsAppMessage:   d.Payment.WhatsAppMessage,
		Subtotal:          d.Subtotal,
		DeliveryFee:       d.DeliveryFee,
		Discount:          d.Discount,
		Total:             d.Total,
		CreatedAt:         d.CreatedAt,
	}
}

// --- Helpers ---

// session resolves the {id} URL parameter. It writes the error response and
// returns nil when the ID is malformed or the session does not exist.
func (h *CheckoutHandler) session(w http.ResponseWriter, r *http.Request) *checkout.Session {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return nil
	}
	s, err := h.service.Get(id.String())
	if err != nil {
		writeError(w, r, err, h.logger)
		return nil
	}
	ctx := logger.WithSessionID(r.Context(), s.ID())
	ctx = logger.WithStoreID(ctx, s.StoreID())
	*r = *r.WithContext(ctx)
	return s
}

func (h *CheckoutHandler) writeView(w http.ResponseWriter, status int, s *checkout.Session) {
	httputil.WriteJSON(w, status, httputil.Response{Data: s.View()})
}

// --- Handlers ---

// Start handles POST /api/v1/checkout/sessions
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req service.StartInput
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	s, err := h.service.Start(r.Context(), r.Header.Get(middleware.HeaderUserID), &req)
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}

	w.Header().Set("Location", r.URL.Path+"/"+s.ID())
	h.writeView(w, http.StatusCreated, s)
}

// Get handles GET /api/v1/checkout/sessions/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// Discard handles DELETE /api/v1/checkout/sessions/{id}
func (h *CheckoutHandler) Discard(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParseUUID(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	if err := h.service.Discard(id.String()); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetEmail handles PUT /api/v1/checkout/sessions/{id}/identification/email
func (h *CheckoutHandler) SetEmail(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req EmailRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if err := s.SetEmail(r.Context(), req.Email); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// SetContact handles PUT /api/v1/checkout/sessions/{id}/identification/contact
func (h *CheckoutHandler) SetContact(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req ContactRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	contact := domain.GuestContact{
		FullName: req.FullName,
		Phone:    req.Phone,
		Document: req.Document,
		Extra:    req.Extra,
	}
	if err := s.SetContact(contact); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// AttachCustomer handles POST /api/v1/checkout/sessions/{id}/identification/customer
func (h *CheckoutHandler) AttachCustomer(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	userID := r.Header.Get(middleware.HeaderUserID)
	if userID == "" {
		writeError(w, r, apperrors.Unauthorized("a signed-in customer is required"), h.logger)
		return
	}
	if err := h.service.AttachCustomer(r.Context(), s, userID); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// Login handles POST /api/v1/checkout/sessions/{id}/identification/login
func (h *CheckoutHandler) Login(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req LoginRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if _, err := s.Login(r.Context(), req.Password); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// RequestMagicLink handles POST /api/v1/checkout/sessions/{id}/identification/magic-link
func (h *CheckoutHandler) RequestMagicLink(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := s.RequestMagicLink(r.Context()); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// SetAddress handles PUT /api/v1/checkout/sessions/{id}/delivery/address
func (h *CheckoutHandler) SetAddress(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req AddressRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	addr := domain.Address{
		PostalCode:   req.PostalCode,
		Street:       req.Street,
		Number:       req.Number,
		Complement:   req.Complement,
		Neighborhood: req.Neighborhood,
		City:         req.City,
		State:        req.State,
	}
	if err := s.SetAddress(r.Context(), addr); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// SelectDelivery handles PUT /api/v1/checkout/sessions/{id}/delivery/method
func (h *CheckoutHandler) SelectDelivery(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req DeliveryMethodRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	m := domain.DeliveryMethod{Kind: req.Kind}
	if req.Kind == domain.DeliveryCarrier {
		m.ServiceID = req.ServiceID
	}
	if err := s.SelectDelivery(m); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// Requote handles POST /api/v1/checkout/sessions/{id}/delivery/requote
func (h *CheckoutHandler) Requote(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := s.Requote(r.Context()); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusAccepted, s)
}

// SelectPayment handles PUT /api/v1/checkout/sessions/{id}/payment/method
func (h *CheckoutHandler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req PaymentMethodRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if err := s.SelectPayment(req.Method); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// SetCard handles PUT /api/v1/checkout/sessions/{id}/payment/card
func (h *CheckoutHandler) SetCard(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req CardRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	fields := payment.CardFields{
		Number:     req.Number,
		Expiry:     req.Expiry,
		HolderName: req.HolderName,
		CVV:        req.CVV,
	}
	if err := s.SetCard(fields); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// SelectInstallments handles PUT /api/v1/checkout/sessions/{id}/payment/installments
func (h *CheckoutHandler) SelectInstallments(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	var req InstallmentsRequest
	if err := validator.DecodeAndValidate(r, &req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}
	if err := s.SelectInstallments(req.Count); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}

// Tokenize handles POST /api/v1/checkout/sessions/{id}/payment/tokenize
func (h *CheckoutHandler) Tokenize(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	cred, err := s.Tokenize(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: TokenizeResponse{
		Brand:        cred.Brand,
		Last4:        cred.Last4,
		Installments: cred.Installments,
		View:         s.View(),
	}})
}

// Submit handles POST /api/v1/checkout/sessions/{id}/submit
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	orderID, err := s.Submit(r.Context())
	if err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	resp := SubmitResponse{OrderID: orderID, View: s.View()}
	if draft, ok := s.Draft(); ok {
		resp.Receipt = newOrderReceipt(draft)
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: resp})
}

// Retry handles POST /api/v1/checkout/sessions/{id}/retry
func (h *CheckoutHandler) Retry(w http.ResponseWriter, r *http.Request) {
	s := h.session(w, r)
	if s == nil {
		return
	}
	if err := s.Retry(); err != nil {
		writeError(w, r, err, h.logger)
		return
	}
	h.writeView(w, http.StatusOK, s)
}
