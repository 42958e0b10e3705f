package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	votingledger "tallybox/contexts/voting-escrow/voting-ledger"
	ledgererrors "tallybox/contexts/voting-escrow/voting-ledger/domain/errors"
	ledgerhttp "tallybox/contexts/voting-escrow/voting-ledger/transport/http"

	httpSwagger "github.com/swaggo/http-swagger"
	_ "tallybox/internal/platform/httpserver/docs"
)

type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger
	addr   string
	ledger votingledger.Module
}

func New(ledger votingledger.Module, logger *slog.Logger, addr string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:    http.NewServeMux(),
		logger: logger,
		addr:   addr,
		ledger: ledger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("POST /v1/ledger/candidates", s.handleRegisterCandidate)
	s.mux.HandleFunc("POST /v1/ledger/round/start", s.handleStartRound)
	s.mux.HandleFunc("POST /v1/ledger/votes", s.handleCastVote)
	s.mux.HandleFunc("POST /v1/ledger/round/close", s.handleCloseRound)
	s.mux.HandleFunc("POST /v1/ledger/commission/withdraw", s.handleWithdrawCommission)
	s.mux.HandleFunc("GET /v1/ledger", s.handleStatus)
	s.mux.HandleFunc("GET /v1/ledger/candidates", s.handleCandidates)
}

func (s *Server) handleRegisterCandidate(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get("X-User-Id")
	if callerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.RegisterCandidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.RegisterCandidateHandler(r.Context(), callerID, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStartRound(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get("X-User-Id")
	if callerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.ledger.Handler.StartRoundHandler(r.Context(), callerID)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get("X-User-Id")
	if callerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.CastVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.CastVoteHandler(r.Context(), callerID, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCloseRound(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get("X-User-Id")
	if callerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	resp, err := s.ledger.Handler.CloseRoundHandler(r.Context(), callerID)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWithdrawCommission(w http.ResponseWriter, r *http.Request) {
	callerID := r.Header.Get("X-User-Id")
	if callerID == "" {
		writeLedgerError(w, http.StatusUnauthorized, "missing_user", "X-User-Id header is required")
		return
	}

	var req ledgerhttp.WithdrawCommissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeLedgerError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	resp, err := s.ledger.Handler.WithdrawCommissionHandler(r.Context(), callerID, req)
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.StatusHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	resp, err := s.ledger.Handler.CandidatesHandler(r.Context())
	if err != nil {
		writeLedgerDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeLedgerDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledgererrors.ErrUnauthorized):
		writeLedgerError(w, http.StatusForbidden, "unauthorized", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidPhase):
		writeLedgerError(w, http.StatusConflict, "invalid_phase", err.Error())
	case errors.Is(err, ledgererrors.ErrDuplicateCandidate):
		writeLedgerError(w, http.StatusConflict, "duplicate_candidate", err.Error())
	case errors.Is(err, ledgererrors.ErrNoCandidates):
		writeLedgerError(w, http.StatusUnprocessableEntity, "no_candidates", err.Error())
	case errors.Is(err, ledgererrors.ErrRoundEnded):
		writeLedgerError(w, http.StatusConflict, "round_ended", err.Error())
	case errors.Is(err, ledgererrors.ErrRoundNotEnded):
		writeLedgerError(w, http.StatusConflict, "round_not_ended", err.Error())
	case errors.Is(err, ledgererrors.ErrRoundNotClosed):
		writeLedgerError(w, http.StatusConflict, "round_not_closed", err.Error())
	case errors.Is(err, ledgererrors.ErrAlreadyVoted):
		writeLedgerError(w, http.StatusConflict, "already_voted", err.Error())
	case errors.Is(err, ledgererrors.ErrWrongFee):
		writeLedgerError(w, http.StatusPaymentRequired, "wrong_fee", err.Error())
	case errors.Is(err, ledgererrors.ErrUnknownCandidate):
		writeLedgerError(w, http.StatusNotFound, "unknown_candidate", err.Error())
	case errors.Is(err, ledgererrors.ErrInvalidInput):
		writeLedgerError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, ledgererrors.ErrLedgerNotFound):
		writeLedgerError(w, http.StatusNotFound, "ledger_not_found", err.Error())
	case errors.Is(err, ledgererrors.ErrTransferFailed):
		writeLedgerError(w, http.StatusBadGateway, "transfer_failed", err.Error())
	case errors.Is(err, ledgererrors.ErrConflict):
		writeLedgerError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeLedgerError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeLedgerError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ledgerhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
