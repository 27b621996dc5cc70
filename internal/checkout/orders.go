package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/casadeele/storefront/internal/cart"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
)

const (
	createOrderPath = "/api/orders"
	verifyOrderPath = "/api/orders/verify"
)

type sender interface {
	Send(ctx context.Context, method, path string, body, dest any) error
}

// GatewayOrder is the backend's answer to order creation.
type GatewayOrder struct {
	ID    string
	KeyID string
}

// VerifyRequest is the signature triple plus everything the backend needs to persist the order.
type VerifyRequest struct {
	OrderID     string         `json:"razorpay_order_id"`
	PaymentID   string         `json:"razorpay_payment_id"`
	Signature   string         `json:"razorpay_signature"`
	Billing     BillingDetails `json:"billingDetails"`
	CartItems   []cart.Line    `json:"cartItems"`
	TotalAmount json.Number    `json:"totalAmount"`
}

// VerifyResult is the backend's verdict on a payment signature.
type VerifyResult struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId,omitempty"`
	Message string `json:"message,omitempty"`
}

// OrderAPI is the backend half of the payment protocol.
type OrderAPI interface {
	CreateOrder(ctx context.Context, amount int64, currency string) (GatewayOrder, error)
	VerifyPayment(ctx context.Context, req VerifyRequest) (VerifyResult, error)
}

type backendOrders struct {
	api sender
}

// NewOrderAPI talks to /api/orders through the shared API client.
func NewOrderAPI(api sender) (OrderAPI, error) {
	if api == nil {
		return nil, fmt.Errorf("api client required")
	}
	return &backendOrders{api: api}, nil
}

type createOrderRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type createOrderResponse struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
	KeyID string `json:"keyId"`
}

func (b *backendOrders) CreateOrder(ctx context.Context, amount int64, currency string) (GatewayOrder, error) {
	var resp createOrderResponse
	if err := b.api.Send(ctx, http.MethodPost, createOrderPath, createOrderRequest{Amount: amount, Currency: currency}, &resp); err != nil {
		return GatewayOrder{}, err
	}
	if strings.TrimSpace(resp.Order.ID) == "" || strings.TrimSpace(resp.KeyID) == "" {
		return GatewayOrder{}, pkgerrors.New(pkgerrors.CodeDependency, "order response missing order id or key")
	}
	return GatewayOrder{ID: resp.Order.ID, KeyID: resp.KeyID}, nil
}

func (b *backendOrders) VerifyPayment(ctx context.Context, req VerifyRequest) (VerifyResult, error) {
	if req.CartItems == nil {
		req.CartItems = []cart.Line{}
	}
	var resp VerifyResult
	if err := b.api.Send(ctx, http.MethodPost, verifyOrderPath, req, &resp); err != nil {
		return VerifyResult{}, err
	}
	return resp, nil
}
