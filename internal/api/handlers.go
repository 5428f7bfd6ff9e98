package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/example/supplychain-recon/internal/api/middleware"
	"github.com/example/supplychain-recon/internal/auth"
	"github.com/example/supplychain-recon/internal/domain/inventory"
	"github.com/example/supplychain-recon/internal/domain/order"
	"github.com/example/supplychain-recon/internal/domain/payment"
	"github.com/example/supplychain-recon/internal/domain/returns"
	"github.com/example/supplychain-recon/internal/domain/role"
	"github.com/example/supplychain-recon/internal/domain/shipment"
	"github.com/example/supplychain-recon/internal/query"
	"github.com/example/supplychain-recon/internal/recon"
)

type Handlers struct {
	coordinator  *recon.Coordinator
	queryHandler *query.Handler
	jwtService   *auth.JWTService
}

func NewHandlers(coordinator *recon.Coordinator, queryHandler *query.Handler, jwtService *auth.JWTService) *Handlers {
	return &Handlers{
		coordinator:  coordinator,
		queryHandler: queryHandler,
		jwtService:   jwtService,
	}
}

// Auth Handlers

// IssueToken mints a token for a partner acting under a role. Partner
// identity is asserted by the caller; credential checks live outside this
// service.
func (h *Handlers) IssueToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PartnerID string `json:"partner_id"`
		Role      string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, expiresAt, err := h.jwtService.GenerateToken(req.PartnerID, role.Role(req.Role))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"access_token": token,
		"expires_at":   expiresAt,
	})
}

// Order Handlers

func (h *Handlers) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SellerRole string           `json:"seller_role"`
		Items      []order.LineItem `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := recon.PlaceOrder{
		Actor:      actorRole(r),
		SellerRole: role.Role(req.SellerRole),
		Items:      req.Items,
	}
	o, err := h.coordinator.PlaceOrder(r.Context(), cmd)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, o)
}

func (h *Handlers) ConfirmOrder(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/orders/", "/confirm")

	cmd := recon.ConfirmOrder{Actor: actorRole(r), OrderID: id}
	if err := h.coordinator.ConfirmOrder(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Order confirmed"})
}

func (h *Handlers) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/orders/", "/cancel")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	cmd := recon.CancelOrder{Actor: actorRole(r), OrderID: id, Reason: req.Reason}
	if err := h.coordinator.CancelOrder(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Order cancelled"})
}

func (h *Handlers) GetOrders(w http.ResponseWriter, r *http.Request) {
	orders := h.queryHandler.ListOrdersByRole(string(actorRole(r)))
	respondJSON(w, http.StatusOK, orders)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")
	o, ok := h.queryHandler.GetOrder(id)
	if !ok {
		http.Error(w, "Order not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// Shipment Handlers

func (h *Handlers) CreateShipment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID  string    `json:"order_id"`
		Location string    `json:"location"`
		ETA      time.Time `json:"eta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := recon.CreateShipment{
		Actor:    actorRole(r),
		OrderID:  req.OrderID,
		Location: req.Location,
		ETA:      req.ETA,
	}
	sh, err := h.coordinator.CreateShipment(r.Context(), cmd)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, sh)
}

func (h *Handlers) AdvanceShipment(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/shipments/", "/advance")

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := shipment.ParseStatus(req.Status)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := recon.AdvanceShipment{Actor: actorRole(r), ShipmentID: id, Target: target}
	if err := h.coordinator.AdvanceShipment(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Shipment advanced"})
}

func (h *Handlers) GetShipments(w http.ResponseWriter, r *http.Request) {
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		respondJSON(w, http.StatusOK, h.queryHandler.ListShipmentsByOrder(orderID))
		return
	}
	http.Error(w, "order_id query parameter is required", http.StatusBadRequest)
}

func (h *Handlers) GetShipment(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/shipments/")
	sh, ok := h.queryHandler.GetShipment(id)
	if !ok {
		http.Error(w, "Shipment not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, sh)
}

// Return Handlers

func (h *Handlers) RequestReturn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderID  string `json:"order_id"`
		SKU      string `json:"sku"`
		Quantity int    `json:"quantity"`
		Reason   string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := recon.RequestReturn{
		Actor:    actorRole(r),
		OrderID:  req.OrderID,
		SKU:      req.SKU,
		Quantity: req.Quantity,
		Reason:   req.Reason,
	}
	ret, err := h.coordinator.RequestReturn(r.Context(), cmd)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, ret)
}

func (h *Handlers) ApproveReturn(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/returns/", "/approve")

	cmd := recon.ApproveReturn{Actor: actorRole(r), ReturnID: id}
	if err := h.coordinator.ApproveReturn(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Return approved"})
}

func (h *Handlers) RejectReturn(w http.ResponseWriter, r *http.Request) {
	id := pathSegment(r.URL.Path, "/returns/", "/reject")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	cmd := recon.RejectReturn{Actor: actorRole(r), ReturnID: id, Reason: req.Reason}
	if err := h.coordinator.RejectReturn(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Return rejected"})
}

func (h *Handlers) GetReturns(w http.ResponseWriter, r *http.Request) {
	if orderID := r.URL.Query().Get("order_id"); orderID != "" {
		respondJSON(w, http.StatusOK, h.queryHandler.ListReturnsByOrder(orderID))
		return
	}
	http.Error(w, "order_id query parameter is required", http.StatusBadRequest)
}

func (h *Handlers) GetReturn(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/returns/")
	ret, ok := h.queryHandler.GetReturn(id)
	if !ok {
		http.Error(w, "Return not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, ret)
}

// Payment Handlers

func (h *Handlers) RecordPayment(w http.ResponseWriter, r *http.Request) {
	orderID := pathSegment(r.URL.Path, "/payments/", "/record")

	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	cmd := recon.RecordPayment{Actor: actorRole(r), OrderID: orderID, Amount: req.Amount}
	if err := h.coordinator.RecordPayment(r.Context(), cmd); err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Payment recorded"})
}

func (h *Handlers) GetPayments(w http.ResponseWriter, r *http.Request) {
	payments := h.queryHandler.ListPaymentsByStatus(r.URL.Query().Get("status"))
	respondJSON(w, http.StatusOK, payments)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	orderID := extractPathParam(r.URL.Path, "/payments/")
	pm, ok := h.queryHandler.GetPayment(orderID)
	if !ok {
		http.Error(w, "Payment not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, pm)
}

// Inventory Handlers

func (h *Handlers) GetInventory(w http.ResponseWriter, r *http.Request) {
	sku := r.URL.Query().Get("sku")
	location := r.URL.Query().Get("location")

	if sku == "" && location == "" {
		respondJSON(w, http.StatusOK, h.queryHandler.ListInventory())
		return
	}
	if sku == "" || location == "" {
		http.Error(w, "sku and location query parameters are required together", http.StatusBadRequest)
		return
	}

	// The ledger is the source of truth; quantity reads bypass the projection.
	quantity, err := h.coordinator.QueryInventory(r.Context(), sku, location)
	if err != nil {
		respondCommandError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sku":      sku,
		"location": location,
		"quantity": quantity,
	})
}

// Helper functions

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractPathParam(path, prefix string) string {
	return strings.TrimPrefix(path, prefix)
}

func pathSegment(path, prefix, suffix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}

// actorRole extracts the acting role from the JWT context
func actorRole(r *http.Request) role.Role {
	return middleware.GetPartnerRole(r.Context())
}

// respondCommandError maps domain errors onto HTTP status codes
func respondCommandError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusForError(err))
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, shipment.ErrShipmentNotFound),
		errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, returns.ErrReturnNotFound):
		return http.StatusNotFound

	case errors.Is(err, recon.ErrAuthorizationDenied):
		return http.StatusForbidden

	case errors.Is(err, order.ErrInvalidTransition),
		errors.Is(err, order.ErrOrderCancelled),
		errors.Is(err, order.ErrOrderShipped),
		errors.Is(err, order.ErrOrderNotConfirmed),
		errors.Is(err, shipment.ErrInvalidTransition),
		errors.Is(err, payment.ErrInvalidTransition),
		errors.Is(err, payment.ErrNotDue),
		errors.Is(err, returns.ErrInvalidTransition),
		errors.Is(err, recon.ErrActiveShipmentExists),
		errors.Is(err, recon.ErrOrderNotDelivered):
		return http.StatusConflict

	case errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, inventory.ErrInsufficientStock),
		errors.Is(err, recon.ErrReturnExceedsOrdered):
		return http.StatusUnprocessableEntity

	case errors.Is(err, order.ErrEmptyOrder),
		errors.Is(err, order.ErrInvalidLineItem),
		errors.Is(err, order.ErrInvalidRolePair),
		errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, returns.ErrInvalidQuantity),
		errors.Is(err, returns.ErrMissingSKU),
		errors.Is(err, recon.ErrSKUNotInOrder),
		errors.Is(err, shipment.ErrUnknownStatus):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}
