package handler

import (
	"time"

	"peer-match/internal/delivery/http/dto"
	"peer-match/internal/pkg/response"
	"peer-match/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

// TriggerHandler serves the endpoints invoked by the scheduler.
type TriggerHandler struct {
	run        usecase.MatchRunUsecase
	sweep      usecase.ReminderSweepUsecase
	redelivery usecase.RedeliveryUsecase
	now        func() time.Time
}

func NewTriggerHandler(run usecase.MatchRunUsecase, sweep usecase.ReminderSweepUsecase, redelivery usecase.RedeliveryUsecase) *TriggerHandler {
	return &TriggerHandler{run: run, sweep: sweep, redelivery: redelivery, now: time.Now}
}

// RegisterRoutes mounts the triggers behind guard.
func (h *TriggerHandler) RegisterRoutes(r fiber.Router, guard fiber.Handler) {
	if r == nil || guard == nil {
		return
	}
	r.Post("/matching/run", guard, h.RunMatching)
	r.Post("/reminders/sweep", guard, h.SweepReminders)
	r.Post("/notifications/redeliver", guard, h.Redeliver)
}

func (h *TriggerHandler) RunMatching(c fiber.Ctx) error {
	res, err := h.run.Run(c.Context())
	if err != nil {
		return mapUsecaseError(err)
	}

	ids := make([]string, 0, len(res.MatchIDs))
	for _, id := range res.MatchIDs {
		ids = append(ids, id.String())
	}
	return response.OK(c, dto.MatchRunResponse{
		Status:   string(res.Status),
		Matched:  res.Matched,
		MatchIDs: ids,
	})
}

func (h *TriggerHandler) SweepReminders(c fiber.Ctx) error {
	n, err := h.sweep.Sweep(c.Context(), h.now())
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.OK(c, dto.SweepResponse{Sent: n})
}

func (h *TriggerHandler) Redeliver(c fiber.Ctx) error {
	var req dto.RedeliveryRequest
	if len(c.Body()) > 0 {
		if err := bindAndValidate(c, &req); err != nil {
			return err
		}
	}

	res, err := h.redelivery.Redeliver(c.Context(), req.Limit)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.OK(c, dto.RedeliveryResponse{Sent: res.Sent, Failed: res.Failed})
}
