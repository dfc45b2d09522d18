package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ariefcatur/go-inventory-ledger.git/internal/inventory"
	kafkax "github.com/ariefcatur/go-inventory-ledger.git/internal/kafka"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/orders"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/redisx"
	"github.com/ariefcatur/go-inventory-ledger.git/internal/sweeper"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher is the async lifecycle-event sink; satisfied by kafka.Producer.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

type OrdersHandler struct {
	Machine  *orders.Machine
	Repo     orders.Repo
	Redis    *redis.Client
	Producer Publisher // order.status topic
	Sweeper  *sweeper.Sweeper
	Service  string
	Log      *zap.Logger
}

type CreateOrderReq struct {
	ExternalID string             `json:"external_id"`
	UserID     string             `json:"user_id"`
	Items      []orders.OrderItem `json:"items"`
}

type UpdateStatusReq struct {
	Status orders.Status `json:"status"`
	Note   string        `json:"note,omitempty"`
}

func (h *OrdersHandler) Register(r *chi.Mux) {
	r.Post("/orders", h.createOrder)
	r.Post("/orders/{id}/status", h.updateStatus)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *OrdersHandler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ExternalID == "" || req.UserID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	o, err := h.Machine.PlaceOrder(ctx, req.ExternalID, req.UserID, req.Items)
	if err != nil {
		var sv *inventory.StockValidationError
		if errors.As(err, &sv) {
			writeJSON(w, http.StatusConflict, map[string]any{
				"error":      "insufficient stock",
				"shortfalls": sv.Shortfalls,
			})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	// idempotency shortcut + status cache, DB stays the source of truth
	idemKey := fmt.Sprintf(redisx.KeyIdemOrderCreate, req.ExternalID)
	_ = h.Redis.Set(ctx, idemKey, o.ID, redisx.TTLIdempotency).Err()
	h.cacheStatus(ctx, o)

	if err := h.Sweeper.Track(ctx, o.ID); err != nil {
		h.Log.Warn("track reservation expiry", zap.String("order_id", o.ID), zap.Error(err))
	}

	trace := r.Header.Get("X-Request-Id")
	h.publishPlaced(o, trace)
	h.publishStatus(o, orders.StatusPending, o.Status, "order placed", trace)
	writeJSON(w, http.StatusCreated, o)
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	var req UpdateStatusReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if !orders.ValidStatus(req.Status) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown status"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	before, err := h.Repo.Get(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	o, err := h.Machine.Transition(ctx, orderID, req.Status, req.Note)
	if err != nil {
		h.writeTransitionError(w, err)
		return
	}

	h.cacheStatus(ctx, o)
	switch o.Status {
	case orders.StatusShipped, orders.StatusDelivered, orders.StatusCancelled:
		if err := h.Sweeper.Untrack(ctx, o.ID); err != nil {
			h.Log.Warn("untrack reservation expiry", zap.String("order_id", o.ID), zap.Error(err))
		}
	}

	h.publishStatus(o, before.Status, o.Status, req.Note, r.Header.Get("X-Request-Id"))
	writeJSON(w, http.StatusOK, o)
}

func (h *OrdersHandler) writeTransitionError(w http.ResponseWriter, err error) {
	var invalid *orders.InvalidTransitionError
	var sv *inventory.StockValidationError
	var partial *inventory.PartialFinalizationError
	switch {
	case errors.As(err, &invalid):
		writeJSON(w, http.StatusConflict, map[string]string{"error": invalid.Error()})
	case errors.As(err, &sv):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":      "insufficient stock",
			"shortfalls": sv.Shortfalls,
		})
	case errors.As(err, &partial):
		// torn state: some items deducted, some still reserved
		h.Log.Error("partial finalization", zap.String("order_id", partial.OrderID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": partial.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// cache first
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		writeJSON(w, http.StatusOK, json.RawMessage(s))
		return
	}

	o, err := h.Repo.Get(ctx, orderID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	h.cacheStatus(ctx, o)
	writeJSON(w, http.StatusOK, map[string]any{"status": o.Status, "order": o})
}

func (h *OrdersHandler) cacheStatus(ctx context.Context, o *orders.Order) {
	key := fmt.Sprintf(redisx.KeyOrderStatus, o.ID)
	b, _ := json.Marshal(map[string]any{"status": o.Status, "updated_at": o.UpdatedAt})
	_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
}

// publishPlaced announces the accepted order with its item lines, so
// downstream consumers do not need a read back against the API.
func (h *OrdersHandler) publishPlaced(o *orders.Order, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderPlaced,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderPlacedPayload{
			OrderID: o.ID, ExternalID: o.ExternalID, UserID: o.UserID, Items: o.Items,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderPlaced)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (h *OrdersHandler) publishStatus(o *orders.Order, from, to orders.Status, note, trace string) {
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderStatusChanged,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      h.Service,
		TraceID:       trace,
		CorrelationID: o.ID,
		Payload: kafkax.MustMarshal(orders.OrderStatusChangedPayload{
			OrderID: o.ID, From: from, To: to, Note: note,
		}),
	}
	h.Producer.Publish(orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderStatusChanged)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
