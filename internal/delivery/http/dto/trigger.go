package dto

type MatchRunResponse struct {
	Status   string   `json:"status"`
	Matched  int      `json:"matched"`
	MatchIDs []string `json:"match_ids"`
}

type SweepResponse struct {
	Sent int `json:"sent"`
}

type RedeliveryRequest struct {
	Limit int `json:"limit" validate:"gte=0,lte=200"`
}

type RedeliveryResponse struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
}
