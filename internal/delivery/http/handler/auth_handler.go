package handler

import (
	"peer-match/internal/delivery/http/dto"
	"peer-match/internal/delivery/http/middleware"
	"peer-match/internal/pkg/response"
	"peer-match/internal/usecase"

	"github.com/gofiber/fiber/v3"
)

type AuthHandler struct {
	uc usecase.AuthUsecase
}

func NewAuthHandler(uc usecase.AuthUsecase) *AuthHandler {
	return &AuthHandler{uc: uc}
}

func (h *AuthHandler) RegisterRoutes(r fiber.Router) {
	if r == nil {
		return
	}

	r.Post("/telegram", h.Telegram)
	r.Post("/refresh", h.Refresh)
}

func (h *AuthHandler) Telegram(c fiber.Ctx) error {
	var req dto.TelegramAuthRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	s, err := h.uc.LoginTelegram(c.Context(), req.InitData)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.OK(c, sessionResponse(s))
}

func (h *AuthHandler) Refresh(c fiber.Ctx) error {
	tok, ok := middleware.BearerToken(c.Get("Authorization"))
	if !ok {
		return middleware.NewAppError(fiber.StatusUnauthorized, "Unauthorized", nil, nil)
	}

	s, err := h.uc.Refresh(c.Context(), tok)
	if err != nil {
		return mapUsecaseError(err)
	}
	return response.OK(c, sessionResponse(s))
}

func sessionResponse(s usecase.Session) dto.SessionResponse {
	return dto.SessionResponse{
		MemberID:     s.MemberID.String(),
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
	}
}
