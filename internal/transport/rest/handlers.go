package rest

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"

	"github.com/baechuer/order-lifecycle-service/internal/domain"
	"github.com/baechuer/order-lifecycle-service/internal/pkg/logger"
	"github.com/baechuer/order-lifecycle-service/internal/service"
	"github.com/baechuer/order-lifecycle-service/internal/transport/rest/response"
)

type Handler struct {
	orders *service.Orders
}

func NewHandler(orders *service.Orders) *Handler {
	return &Handler{orders: orders}
}

type orderItemRequest struct {
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type createOrderRequest struct {
	UserID          string             `json:"user_id"`
	TotalAmount     float64            `json:"total_amount"`
	Currency        string             `json:"currency"`
	ShippingAddress *string            `json:"shipping_address"`
	Items           []orderItemRequest `json:"items"`
}

type orderItemResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	TotalAmount     float64             `json:"total_amount"`
	Currency        string              `json:"currency"`
	ShippingAddress *string             `json:"shipping_address,omitempty"`
	PaymentID       *string             `json:"payment_id,omitempty"`
	TrackingNumber  *string             `json:"tracking_number,omitempty"`
	Carrier         *string             `json:"carrier,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	ConfirmedAt     *time.Time          `json:"confirmed_at,omitempty"`
	ShippedAt       *time.Time          `json:"shipped_at,omitempty"`
	Items           []orderItemResponse `json:"items"`
}

type orderListResponse struct {
	Data  []orderResponse `json:"data"`
	Count int             `json:"count"`
}

// CreateOrder handles POST /api/v1/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid JSON body"))
		return
	}

	in := service.CreateOrderInput{
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.CreateOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}

	o, err := h.orders.Create(r.Context(), in)
	if err != nil {
		logErr(r, err, "create order failed")
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, toOrderResponse(o))
}

// ListOrders handles GET /api/v1/orders?skip=&limit=.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	skip := queryInt(r, "skip", 0)
	limit := queryInt(r, "limit", 0)

	orders, total, err := h.orders.List(r.Context(), skip, limit)
	if err != nil {
		logErr(r, err, "list orders failed")
		response.Err(w, r, err)
		return
	}

	out := orderListResponse{
		Data:  make([]orderResponse, 0, len(orders)),
		Count: total,
	}
	for i := range orders {
		out.Data = append(out.Data, toOrderResponse(&orders[i]))
	}
	response.JSON(w, http.StatusOK, out)
}

func toOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		ID:              o.ID.String(),
		UserID:          o.UserID,
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		Currency:        o.Currency,
		ShippingAddress: o.ShippingAddress,
		PaymentID:       o.PaymentID,
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		ConfirmedAt:     o.ConfirmedAt,
		ShippedAt:       o.ShippedAt,
		Items:           make([]orderItemResponse, 0, len(o.Items)),
	}
	for _, it := range o.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ID:        it.ID.String(),
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return resp
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func logErr(r *http.Request, err error, msg string) {
	logger.WithCtx(r.Context()).Error().Err(err).Msg(msg)
}
