package checkout

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

const (
	minPhoneDigits = 10
	maxPhoneDigits = 15
)

// BillingDetails is collected at checkout and only used to build the payment
// request. It is never persisted by the storefront.
type BillingDetails struct {
	Name       string `json:"name" validate:"required"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,phone_digits"`
	Address    string `json:"address" validate:"required"`
	City       string `json:"city" validate:"required"`
	State      string `json:"state" validate:"required"`
	PostalCode string `json:"postalCode" validate:"required"`
	Country    string `json:"country,omitempty"`
}

var billingValidator = newBillingValidator()

func newBillingValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("phone_digits", func(fl validator.FieldLevel) bool {
		n := len(phoneDigits(fl.Field().String()))
		return n >= minPhoneDigits && n <= maxPhoneDigits
	})
	return v
}

// Normalize trims every field.
func (b BillingDetails) Normalize() BillingDetails {
	b.Name = strings.TrimSpace(b.Name)
	b.Email = strings.TrimSpace(b.Email)
	b.Phone = strings.TrimSpace(b.Phone)
	b.Address = strings.TrimSpace(b.Address)
	b.City = strings.TrimSpace(b.City)
	b.State = strings.TrimSpace(b.State)
	b.PostalCode = strings.TrimSpace(b.PostalCode)
	b.Country = strings.TrimSpace(b.Country)
	return b
}

// Validate returns field-level messages keyed by json field name; nil when valid.
func (b BillingDetails) Validate() map[string]string {
	err := billingValidator.Struct(b.Normalize())
	if err == nil {
		return nil
	}
	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"billing": err.Error()}
	}
	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		out[fe.Field()] = billingMessage(fe)
	}
	return out
}

// Contact is the phone number reduced to its digits, as the gateway prefill expects.
func (b BillingDetails) Contact() string {
	return phoneDigits(b.Phone)
}

// FullAddress assembles the address lines into the gateway notes string.
func (b BillingDetails) FullAddress() string {
	b = b.Normalize()
	parts := []string{b.Address, b.City, b.State, b.PostalCode, b.Country}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

func billingMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "phone_digits":
		return fmt.Sprintf("must contain %d to %d digits", minPhoneDigits, maxPhoneDigits)
	}
	return "is invalid"
}

func phoneDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
