package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/casadeele/storefront/api/responses"
	"github.com/casadeele/storefront/api/validators"
	"github.com/casadeele/storefront/internal/cart"
	pkgerrors "github.com/casadeele/storefront/pkg/errors"
	"github.com/casadeele/storefront/pkg/logger"
)

const maxIDLength = 128

// CartRegistry resolves the cart provider owned by a session.
type CartRegistry interface {
	Get(ctx context.Context, sessionID string) (*cart.Provider, error)
}

type addCartItemRequest struct {
	Item           cart.CatalogItem `json:"item"`
	SelectedLevel  string           `json:"selectedLevel" validate:"max=64"`
	SelectedFormat string           `json:"selectedFormat" validate:"max=64"`
	Quantity       *int             `json:"quantity,omitempty" validate:"omitempty,max=999"`
}

type lineRequest struct {
	ItemID         string `json:"itemId" validate:"required,max=128"`
	SelectedLevel  string `json:"selectedLevel" validate:"max=64"`
	SelectedFormat string `json:"selectedFormat" validate:"max=64"`
}

func (l lineRequest) lineID() cart.LineID {
	return cart.Resolve(cart.CatalogItem{ID: l.ItemID}, cart.Variant{Level: l.SelectedLevel, Format: l.SelectedFormat})
}

type updateQuantityRequest struct {
	lineRequest
	Quantity *int `json:"quantity" validate:"required,max=999"`
}

type itemAddedResponse struct {
	ItemID string `json:"itemId"`
	Added  bool   `json:"added"`
}

// CartFetch returns the session's cart snapshot.
func CartFetch(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		responses.WriteSuccess(w, provider.Snapshot())
	})
}

// CartClear empties the cart.
func CartClear(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		responses.WriteSuccess(w, provider.ClearCart(r.Context()))
	})
}

// CartAddItem adds a catalog item in a variant, merging into an existing line.
func CartAddItem(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		var payload addCartItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if strings.TrimSpace(payload.Item.ID) == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
				WithDetails(map[string]string{"item._id": "is required"}))
			return
		}
		qty := 1
		if payload.Quantity != nil {
			qty = *payload.Quantity
		}

		snap := provider.AddToCart(r.Context(), payload.Item, cart.Variant{
			Level:  payload.SelectedLevel,
			Format: payload.SelectedFormat,
		}, qty)
		responses.WriteSuccessStatus(w, http.StatusCreated, snap)
	})
}

// CartUpdateItem sets a line's quantity; zero or less removes the line.
func CartUpdateItem(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		var payload updateQuantityRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, provider.UpdateQuantity(r.Context(), payload.lineID(), *payload.Quantity))
	})
}

// CartRemoveItem removes one line. Removing a line that is not there is a no-op.
func CartRemoveItem(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		var payload lineRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, provider.RemoveFromCart(r.Context(), payload.lineID()))
	})
}

// CartItemAdded reports whether any variant of the catalog item is in the cart.
func CartItemAdded(carts CartRegistry, logg *logger.Logger) http.HandlerFunc {
	return withCart(carts, logg, func(w http.ResponseWriter, r *http.Request, provider *cart.Provider) {
		itemID, err := validators.URLParam(r, "itemId", maxIDLength)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, itemAddedResponse{ItemID: itemID, Added: provider.IsItemAdded(itemID)})
	})
}

func withCart(carts CartRegistry, logg *logger.Logger, next func(http.ResponseWriter, *http.Request, *cart.Provider)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if carts == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "cart registry unavailable"))
			return
		}
		sessionID, err := sessionFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		provider, err := carts.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cart"))
			return
		}
		next(w, r, provider)
	}
}
