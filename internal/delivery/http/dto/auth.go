package dto

type TelegramAuthRequest struct {
	InitData string `json:"init_data" validate:"required"`
}

type SessionResponse struct {
	MemberID     string `json:"member_id"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
