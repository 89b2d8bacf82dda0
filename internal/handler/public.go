package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/apperror"
	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/service"
)

type InventoryAPI interface {
	GetSlot(ctx context.Context, id uint64) (*model.SlotDetail, error)
	ListCandidateSlots(ctx context.Context, serviceID uint64, q service.SlotQuery) ([]service.SlotView, error)
}

// PublicHandler serves anonymous inventory reads.
type PublicHandler struct {
	Inventory InventoryAPI
	Log       *logger.Logger
}

func NewPublicHandler(inv InventoryAPI, log *logger.Logger) *PublicHandler {
	if log == nil {
		log = logger.Discard()
	}
	return &PublicHandler{Inventory: inv, Log: log}
}

// ListSlots handles GET /v1/services/:id/slots?from=&to=.
func (h *PublicHandler) ListSlots(c echo.Context) error {
	serviceID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var q service.SlotQuery
	if err := (&echo.DefaultBinder{}).BindQueryParams(c, &q); err != nil {
		return respondError(c, h.Log, apperror.Validation("invalid query parameters"))
	}
	slots, err := h.Inventory.ListCandidateSlots(c.Request().Context(), serviceID, q)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"service_id": serviceID, "slots": slots})
}

// GetSlot handles GET /v1/slots/:id.
func (h *PublicHandler) GetSlot(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	d, err := h.Inventory.GetSlot(c.Request().Context(), id)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"slot":       service.ViewOf(*d),
		"service_id": d.ServiceID,
		"service":    d.ServiceTitle,
		"sport":      d.Sport,
	})
}
