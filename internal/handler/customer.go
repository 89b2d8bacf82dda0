package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/service"
)

type CartAPI interface {
	SetCartContents(ctx context.Context, userID uint64, in service.SetCartInput) (*service.CartResult, error)
	ReadHeldSlots(ctx context.Context, userID uint64) ([]model.HeldSlot, error)
}

type CheckoutAPI interface {
	Checkout(ctx context.Context, userID uint64, in service.CheckoutInput) (*service.CheckoutResult, error)
}

type TopupAPI interface {
	BeginTopup(ctx context.Context, userID uint64, in service.TopupInput) (*service.TopupResult, error)
}

type ReceiptAPI interface {
	BookingReceipt(ctx context.Context, userID, transactionID uint64) ([]byte, string, error)
}

// CustomerHandler serves the cart, checkout, top-up and receipt endpoints.
// JWTAuth and RequireRole("CUSTOMER") run before every method.
type CustomerHandler struct {
	Cart     CartAPI
	Checkout CheckoutAPI
	Topup    TopupAPI
	Receipts ReceiptAPI
	Log      *logger.Logger
}

func NewCustomerHandler(cart CartAPI, checkout CheckoutAPI, topup TopupAPI, receipts ReceiptAPI, log *logger.Logger) *CustomerHandler {
	if cart == nil || checkout == nil || topup == nil || receipts == nil {
		panic("nil service passed to NewCustomerHandler")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &CustomerHandler{Cart: cart, Checkout: checkout, Topup: topup, Receipts: receipts, Log: log}
}

// SetCart handles PUT and PATCH /v1/cart. The body is the complete desired
// cart; slots left out are released.
func (h *CustomerHandler) SetCart(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var in service.SetCartInput
	if err := bindStrict(c, &in); err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Cart.SetCartContents(c.Request().Context(), userID, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if res.Slots == nil {
		res.Slots = []model.HeldSlot{}
	}
	return c.JSON(http.StatusOK, res)
}

// GetCart handles GET /v1/cart.
func (h *CustomerHandler) GetCart(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	slots, err := h.Cart.ReadHeldSlots(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if slots == nil {
		slots = []model.HeldSlot{}
	}
	return c.JSON(http.StatusOK, echo.Map{"slots": slots})
}

// DoCheckout handles POST /v1/checkout. An empty body pays with tokens.
func (h *CustomerHandler) DoCheckout(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var in service.CheckoutInput
	if err := bindStrict(c, &in); err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Checkout.Checkout(c.Request().Context(), userID, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, res)
}

// BeginTopup handles POST /v1/topup.
func (h *CustomerHandler) BeginTopup(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var in service.TopupInput
	if err := bindStrict(c, &in); err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Topup.BeginTopup(c.Request().Context(), userID, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, res)
}

// Receipt handles GET /v1/transactions/:id/receipt and streams the PDF.
func (h *CustomerHandler) Receipt(c echo.Context) error {
	userID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	txID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	pdf, name, err := h.Receipts.BookingReceipt(c.Request().Context(), userID, txID)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, "inline; filename="+strconv.Quote(name))
	return c.Blob(http.StatusOK, "application/pdf", pdf)
}
