package handler

import (
	"peer-match/internal/delivery/http/dto"
	"peer-match/internal/pkg/response"
	"peer-match/internal/usecase"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type ConsentHandler struct {
	uc usecase.ConsentUsecase
}

func NewConsentHandler(uc usecase.ConsentUsecase) *ConsentHandler {
	return &ConsentHandler{uc: uc}
}

func (h *ConsentHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.ListMine)
	r.Post("/consent", h.Submit)
}

func (h *ConsentHandler) Submit(c fiber.Ctx) error {
	memberID, err := memberIDFromCtx(c)
	if err != nil {
		return err
	}

	var req dto.ConsentRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	matchID, err := uuid.Parse(req.MatchID)
	if err != nil {
		return mapUsecaseError(usecase.ErrInvalidInput)
	}

	st, err := h.uc.SubmitConsent(c.Context(), usecase.SubmitConsentInput{
		MatchID:  matchID,
		MemberID: memberID,
		Consent:  *req.Consent,
	})
	if err != nil {
		return mapUsecaseError(err)
	}

	return response.OK(c, dto.ConsentResponse{Status: string(st)})
}

func (h *ConsentHandler) ListMine(c fiber.Ctx) error {
	memberID, err := memberIDFromCtx(c)
	if err != nil {
		return err
	}

	views, err := h.uc.ListMyMatches(c.Context(), memberID)
	if err != nil {
		return mapUsecaseError(err)
	}

	out := make([]dto.MatchViewResponse, 0, len(views))
	for _, v := range views {
		out = append(out, dto.MatchViewResponse{
			ID:              v.ID.String(),
			CounterpartID:   v.CounterpartID.String(),
			CounterpartName: v.CounterpartName,
			Contact:         v.Contact,
			Score:           v.Score,
			Status:          string(v.Status),
			MyConsent:       v.MyConsent,
			CreatedAt:       v.CreatedAt,
		})
	}
	return response.OK(c, out)
}
