package dto

import "time"

type ConsentRequest struct {
	MatchID string `json:"match_id" validate:"required,uuid"`
	Consent *bool  `json:"consent" validate:"required"`
}

type ConsentResponse struct {
	Status string `json:"status"`
}

type MatchViewResponse struct {
	ID              string    `json:"id"`
	CounterpartID   string    `json:"counterpart_id"`
	CounterpartName string    `json:"counterpart_name"`
	Contact         string    `json:"contact,omitempty"`
	Score           float64   `json:"score"`
	Status          string    `json:"status"`
	MyConsent       *bool     `json:"my_consent"`
	CreatedAt       time.Time `json:"created_at"`
}
