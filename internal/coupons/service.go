package coupons

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/casadeele/storefront/pkg/apiclient"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/money"
)

const validatePath = "/api/coupons/validate"

const defaultRejection = "Invalid coupon code"

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFlat       DiscountType = "flat"
)

// Coupon is the server-validated discount for one order total. It is never persisted.
type Coupon struct {
	Code           string          `json:"code"`
	DiscountType   DiscountType    `json:"discountType"`
	DiscountValue  decimal.Decimal `json:"discountValue"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Description    string          `json:"description,omitempty"`
}

type sender interface {
	Send(ctx context.Context, method, path string, body, dest any) error
}

// Service validates coupon codes against the backend.
type Service interface {
	Validate(ctx context.Context, code string, subtotal decimal.Decimal) (Coupon, error)
}

type service struct {
	api sender
}

// NewService builds the coupon service.
func NewService(api sender) (Service, error) {
	if api == nil {
		return nil, fmt.Errorf("api client required")
	}
	return &service{api: api}, nil
}

type validateRequest struct {
	Code        string      `json:"code"`
	OrderAmount json.Number `json:"orderAmount"`
}

type validateResponse struct {
	Valid   bool    `json:"valid"`
	Message string  `json:"message"`
	Coupon  *Coupon `json:"coupon"`
}

// Validate issues one validation call. A rejected code is a CodeValidation error
// carrying the backend's reason; transport trouble stays a CodeDependency error.
func (s *service) Validate(ctx context.Context, code string, subtotal decimal.Decimal) (Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Coupon{}, pkgerrors.New(pkgerrors.CodeValidation, "coupon code is required").
			WithDetails(map[string]string{"code": "required"})
	}

	var resp validateResponse
	req := validateRequest{Code: code, OrderAmount: json.Number(subtotal.String())}
	if err := s.api.Send(ctx, http.MethodPost, validatePath, req, &resp); err != nil {
		status := apiclient.Status(err)
		if status >= http.StatusBadRequest && status < http.StatusInternalServerError && status != http.StatusUnauthorized {
			msg := ""
			if typed := pkgerrors.As(err); typed != nil {
				msg = typed.Message()
			}
			return Coupon{}, rejection(code, msg)
		}
		return Coupon{}, err
	}
	if !resp.Valid {
		return Coupon{}, rejection(code, resp.Message)
	}
	if resp.Coupon == nil {
		return Coupon{}, pkgerrors.New(pkgerrors.CodeDependency, "coupon response missing coupon")
	}

	c := *resp.Coupon
	if c.Code == "" {
		c.Code = code
	}
	c.DiscountAmount = money.ClampZero(c.DiscountAmount)
	return c, nil
}

func rejection(code, message string) error {
	if strings.TrimSpace(message) == "" {
		message = defaultRejection
	}
	return pkgerrors.New(pkgerrors.CodeValidation, message).
		WithDetails(map[string]string{"code": code})
}

// Apply returns the total after c's discount, floored at zero. A nil coupon
// leaves the total unchanged.
func Apply(total decimal.Decimal, c *Coupon) decimal.Decimal {
	if c == nil {
		return total
	}
	return money.ClampZero(total.Sub(c.DiscountAmount))
}
