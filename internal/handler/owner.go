package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/slot-reservation/internal/logger"
	"github.com/iliyamo/slot-reservation/internal/model"
	"github.com/iliyamo/slot-reservation/internal/service"
)

type ScheduleAPI interface {
	GenerateSlotDefinitions(ctx context.Context, ownerID, dayDefID uint64, in service.SlotDefinitionsInput) ([]model.SlotDefinition, error)
	ExpandDates(ctx context.Context, ownerID, scheduleID uint64, in service.ExpandInput) (*service.ExpandResult, error)
}

// OwnerHandler exposes schedule expansion to institution owners. Ownership
// of the schedule is checked by the service.
type OwnerHandler struct {
	Schedules ScheduleAPI
	Log       *logger.Logger
}

func NewOwnerHandler(s ScheduleAPI, log *logger.Logger) *OwnerHandler {
	if s == nil {
		panic("nil service passed to NewOwnerHandler")
	}
	if log == nil {
		log = logger.Discard()
	}
	return &OwnerHandler{Schedules: s, Log: log}
}

type slotDefinitionView struct {
	ID              uint64          `json:"id"`
	DayDefinitionID uint64          `json:"day_definition_id"`
	StartTime       model.TimeOfDay `json:"start_time"`
	EndTime         model.TimeOfDay `json:"end_time"`
	DurationMinutes int             `json:"duration"`
	Price           string          `json:"price"`
	Capacity        int             `json:"capacity"`
}

// GenerateSlotDefinitions handles POST /v1/owner/day-definitions/:id/slot-definitions.
func (h *OwnerHandler) GenerateSlotDefinitions(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	dayDefID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var in service.SlotDefinitionsInput
	if err := bindStrict(c, &in); err != nil {
		return respondError(c, h.Log, err)
	}
	defs, err := h.Schedules.GenerateSlotDefinitions(c.Request().Context(), ownerID, dayDefID, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	out := make([]slotDefinitionView, len(defs))
	for i, d := range defs {
		out[i] = slotDefinitionView{
			ID:              d.ID,
			DayDefinitionID: d.DayDefinitionID,
			StartTime:       d.Window.Start,
			EndTime:         d.Window.End,
			DurationMinutes: d.DurationMinutes,
			Price:           model.FormatCents(d.PriceCents),
			Capacity:        d.Capacity,
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"slot_definitions": out})
}

// ExpandDates handles POST /v1/owner/schedules/:id/expand.
func (h *OwnerHandler) ExpandDates(c echo.Context) error {
	ownerID, err := currentUser(c)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	scheduleID, err := parseID(c, "id")
	if err != nil {
		return respondError(c, h.Log, err)
	}
	var in service.ExpandInput
	if err := bindStrict(c, &in); err != nil {
		return respondError(c, h.Log, err)
	}
	res, err := h.Schedules.ExpandDates(c.Request().Context(), ownerID, scheduleID, in)
	if err != nil {
		return respondError(c, h.Log, err)
	}
	if res.Dates == nil {
		res.Dates = []string{}
	}
	return c.JSON(http.StatusCreated, res)
}
