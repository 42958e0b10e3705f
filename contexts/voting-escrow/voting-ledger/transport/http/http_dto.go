package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type RegisterCandidateRequest struct {
	CandidateID string `json:"candidate_id"`
}

type CastVoteRequest struct {
	CandidateID string `json:"candidate_id"`
	PaidAmount  uint64 `json:"paid_amount"`
}

type WithdrawCommissionRequest struct {
	Destination string `json:"destination"`
}

type LedgerStatusResponse struct {
	AdminID    string `json:"admin_id"`
	Phase      string `json:"phase"`
	Balance    uint64 `json:"balance"`
	Candidates int    `json:"candidates"`
	StartedAt  string `json:"started_at,omitempty"`
	Deadline   string `json:"deadline,omitempty"`
	Winner     string `json:"winner,omitempty"`
}

type CandidateItem struct {
	CandidateID string `json:"candidate_id"`
	Votes       uint64 `json:"votes"`
}

type CandidateListResponse struct {
	Items []CandidateItem `json:"items"`
}

type CloseRoundResponse struct {
	Status LedgerStatusResponse `json:"status"`
	Winner string               `json:"winner,omitempty"`
	Payout uint64               `json:"payout"`
}

type WithdrawCommissionResponse struct {
	Status      LedgerStatusResponse `json:"status"`
	Destination string               `json:"destination"`
	Amount      uint64               `json:"amount"`
}
