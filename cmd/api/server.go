package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"payflow/agreement"
	"payflow/auth"
	"payflow/dispute"
	"payflow/token"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyAddress
	ctxKeyRole
)

type disputeService interface {
	List(ctx context.Context, caller string, agreementID int64) ([]dispute.Record, error)
	Get(ctx context.Context, caller, disputeID string) (dispute.Record, error)
}

type accountService interface {
	GetAccount(ctx context.Context, tok, address string) (token.Account, error)
	ListAccounts(ctx context.Context, tok string, limit int) ([]token.Account, error)
}

// Server holds the wired services and implements the HTTP surface. Handlers
// resolve the caller address from the request context and pass it to the
// engine, which owns every authorization decision.
type Server struct {
	engine         *agreement.Service
	authService    *auth.Service
	disputeService disputeService
	accountService accountService
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", s.handleRegister)
	mux.HandleFunc("/api/auth/login", s.handleLogin)
	mux.HandleFunc("/api/agreements", s.withAuth(s.handleAgreements))
	mux.HandleFunc("/api/agreements/", s.withAuth(s.handleAgreementDetail))
	mux.HandleFunc("/api/disputes", s.withAuth(s.handleDisputes))
	mux.HandleFunc("/api/disputes/", s.withAuth(s.handleDisputeDetail))
	mux.HandleFunc("/api/accounts", s.withAuth(s.handleAccounts))
	return mux
}

// withAuth resolves the bearer token into the caller identity and rejects
// requests without one.
func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		identity, err := s.authService.VerifyToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUserID, identity.UserID)
		ctx = context.WithValue(ctx, ctxKeyAddress, identity.Address)
		ctx = context.WithValue(ctx, ctxKeyRole, identity.Role)
		next(w, r.WithContext(ctx))
	}
}

// callerAddress returns the settlement address the engine gates on.
func callerAddress(r *http.Request) string {
	addr, _ := r.Context().Value(ctxKeyAddress).(string)
	return addr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps the engine's typed taxonomy onto HTTP statuses and
// surfaces the stable numeric code alongside the message.
func writeEngineError(w http.ResponseWriter, err error) {
	var typed *agreement.Error
	if !errors.As(err, &typed) {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	status := http.StatusConflict
	switch typed.Code {
	case agreement.CodeUnauthorized, agreement.CodeNotParty, agreement.CodeNotArbiter:
		status = http.StatusForbidden
	case agreement.CodeAgreementNotFound:
		status = http.StatusNotFound
	case agreement.CodeInvalidData, agreement.CodeInvalidEmployeeIndex,
		agreement.CodeZeroAmountPerPeriod, agreement.CodeZeroPeriodDuration,
		agreement.CodeZeroNumPeriods, agreement.CodeNoEmployee,
		agreement.CodeInvalidPayout, agreement.CodeInvalidAgreementMode:
		status = http.StatusBadRequest
	case agreement.CodeTransferFailed:
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]any{"error": typed.Error(), "code": int32(typed.Code)})
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Address  string `json:"address"`
	Role     string `json:"role"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	user, err := s.authService.Register(r.Context(), auth.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Address:  req.Address,
		Role:     auth.Role(req.Role),
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrWeakPassword):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrDuplicateEmail):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID: user.ID, Email: user.Email, FullName: user.FullName,
		Address: user.Address, Role: string(user.Role),
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	result, err := s.authService.Login(r.Context(), auth.LoginRequest{Email: req.Email, Password: req.Password})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token": result.Token,
		"user": userResponse{
			ID: result.User.ID, Email: result.User.Email, FullName: result.User.FullName,
			Address: result.User.Address, Role: string(result.User.Role),
		},
	})
}

type createAgreementRequest struct {
	Mode               string `json:"mode"`
	Contributor        string `json:"contributor"`
	Token              string `json:"token"`
	AmountPerPeriod    int64  `json:"amountPerPeriod"`
	PeriodSeconds      int64  `json:"periodSeconds"`
	NumPeriods         int    `json:"numPeriods"`
	GracePeriodSeconds int64  `json:"gracePeriodSeconds"`
}

type employeeResponse struct {
	Address         string `json:"address"`
	SalaryPerPeriod int64  `json:"salaryPerPeriod"`
	ClaimedPeriods  int    `json:"claimedPeriods"`
}

type milestoneResponse struct {
	ID        int   `json:"id"`
	Amount    int64 `json:"amount"`
	Completed bool  `json:"completed"`
	Claimed   bool  `json:"claimed"`
}

type agreementResponse struct {
	ID                 int64               `json:"id"`
	Mode               string              `json:"mode"`
	Status             string              `json:"status"`
	Employer           string              `json:"employer"`
	Contributor        string              `json:"contributor,omitempty"`
	Token              string              `json:"token"`
	TotalLocked        int64               `json:"totalLocked"`
	ClaimedAmount      int64               `json:"claimedAmount"`
	RefundedAmount     int64               `json:"refundedAmount"`
	PeriodSeconds      int64               `json:"periodSeconds,omitempty"`
	NumPeriods         int                 `json:"numPeriods,omitempty"`
	AmountPerPeriod    int64               `json:"amountPerPeriod,omitempty"`
	ClaimedPeriods     int                 `json:"claimedPeriods,omitempty"`
	GracePeriodSeconds int64               `json:"gracePeriodSeconds"`
	Arbiter            string              `json:"arbiter,omitempty"`
	DisputeState       string              `json:"disputeState"`
	CreatedAt          string              `json:"createdAt"`
	ActivatedAt        string              `json:"activatedAt,omitempty"`
	CancelledAt        string              `json:"cancelledAt,omitempty"`
	Employees          []employeeResponse  `json:"employees,omitempty"`
	Milestones         []milestoneResponse `json:"milestones,omitempty"`
}

func toAgreementResponse(a *agreement.Agreement) agreementResponse {
	resp := agreementResponse{
		ID:                 a.ID,
		Mode:               string(a.Mode),
		Status:             string(a.Status),
		Employer:           a.Employer,
		Contributor:        a.Contributor,
		Token:              a.Token,
		TotalLocked:        a.TotalLocked,
		ClaimedAmount:      a.ClaimedAmount,
		RefundedAmount:     a.RefundedAmount,
		PeriodSeconds:      a.PeriodSeconds,
		NumPeriods:         a.NumPeriods,
		AmountPerPeriod:    a.AmountPerPeriod,
		ClaimedPeriods:     a.ClaimedPeriods,
		GracePeriodSeconds: a.GracePeriodSeconds,
		Arbiter:            a.Arbiter,
		DisputeState:       string(a.DisputeState),
		CreatedAt:          a.CreatedAt.Format(time.RFC3339),
	}
	if a.ActivatedAt != nil {
		resp.ActivatedAt = a.ActivatedAt.Format(time.RFC3339)
	}
	if a.CancelledAt != nil {
		resp.CancelledAt = a.CancelledAt.Format(time.RFC3339)
	}
	for _, emp := range a.Employees {
		resp.Employees = append(resp.Employees, employeeResponse{
			Address: emp.Address, SalaryPerPeriod: emp.SalaryPerPeriod, ClaimedPeriods: emp.ClaimedPeriods,
		})
	}
	for i, m := range a.Milestones {
		resp.Milestones = append(resp.Milestones, milestoneResponse{
			ID: i + 1, Amount: m.Amount, Completed: m.Completed, Claimed: m.Claimed,
		})
	}
	return resp
}

func (s *Server) handleAgreements(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req createAgreementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller := callerAddress(r)

	var (
		a   *agreement.Agreement
		err error
	)
	switch req.Mode {
	case "payroll":
		a, err = s.engine.CreatePayrollAgreement(r.Context(), caller, agreement.CreatePayrollParams{
			Token:              req.Token,
			PeriodSeconds:      req.PeriodSeconds,
			NumPeriods:         req.NumPeriods,
			GracePeriodSeconds: req.GracePeriodSeconds,
		})
	case "escrow":
		if req.PeriodSeconds > 0 {
			a, err = s.engine.CreateEscrowAgreement(r.Context(), caller, agreement.CreateEscrowParams{
				Contributor:        req.Contributor,
				Token:              req.Token,
				AmountPerPeriod:    req.AmountPerPeriod,
				PeriodSeconds:      req.PeriodSeconds,
				NumPeriods:         req.NumPeriods,
				GracePeriodSeconds: req.GracePeriodSeconds,
			})
		} else {
			a, err = s.engine.CreateMilestoneAgreement(r.Context(), caller, req.Contributor, req.Token, req.GracePeriodSeconds)
		}
	default:
		writeError(w, http.StatusBadRequest, "mode must be payroll or escrow")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAgreementResponse(a))
}

// handleAgreementDetail dispatches /api/agreements/{id}[/{action}].
func (s *Server) handleAgreementDetail(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/agreements/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusBadRequest, "agreement id required")
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid agreement id")
		return
	}

	action := ""
	if len(parts) > 1 {
		action = strings.Join(parts[1:], "/")
	}

	switch action {
	case "":
		s.handleGetAgreement(w, r, id)
	case "employees":
		s.handleEmployees(w, r, id)
	case "milestones":
		s.handleAddMilestone(w, r, id)
	case "milestones/approve":
		s.handleApproveMilestone(w, r, id)
	case "fund":
		s.handleFund(w, r, id)
	case "activate", "pause", "resume", "cancel", "finalize":
		s.handleTransition(w, r, id, action)
	case "arbiter":
		s.handleSetArbiter(w, r, id)
	case "claims":
		s.handleClaim(w, r, id)
	case "claims/batch":
		s.handleBatchClaim(w, r, id)
	case "disputes":
		s.handleAgreementDisputes(w, r, id)
	case "disputes/resolve":
		s.handleResolveDispute(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown resource")
	}
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	a, err := s.engine.GetAgreement(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAgreementResponse(a))
}

func (s *Server) handleEmployees(w http.ResponseWriter, r *http.Request, id int64) {
	switch r.Method {
	case http.MethodGet:
		employees, err := s.engine.GetAgreementEmployees(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		items := make([]employeeResponse, 0, len(employees))
		for _, emp := range employees {
			items = append(items, employeeResponse{
				Address: emp.Address, SalaryPerPeriod: emp.SalaryPerPeriod, ClaimedPeriods: emp.ClaimedPeriods,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req struct {
			Address         string `json:"address"`
			SalaryPerPeriod int64  `json:"salaryPerPeriod"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := s.engine.AddEmployee(r.Context(), callerAddress(r), id, req.Address, req.SalaryPerPeriod); err != nil {
			writeEngineError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleAddMilestone(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	milestoneID, err := s.engine.AddMilestone(r.Context(), callerAddress(r), id, req.Amount)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"milestoneId": milestoneID})
}

func (s *Server) handleApproveMilestone(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		MilestoneID int `json:"milestoneId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.ApproveMilestone(r.Context(), callerAddress(r), id, req.MilestoneID); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.FundAgreement(r.Context(), callerAddress(r), id, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request, id int64, action string) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller := callerAddress(r)
	var err error
	switch action {
	case "activate":
		err = s.engine.ActivateAgreement(r.Context(), caller, id)
	case "pause":
		err = s.engine.PauseAgreement(r.Context(), caller, id)
	case "resume":
		err = s.engine.ResumeAgreement(r.Context(), caller, id)
	case "cancel":
		err = s.engine.CancelAgreement(r.Context(), caller, id)
	case "finalize":
		err = s.engine.FinalizeGracePeriod(r.Context(), caller, id)
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetArbiter(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		Arbiter string `json:"arbiter"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.SetArbiter(r.Context(), callerAddress(r), id, req.Arbiter); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type claimRequest struct {
	Kind          string `json:"kind"`
	EmployeeIndex int    `json:"employeeIndex"`
	MilestoneID   int    `json:"milestoneId"`
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller := callerAddress(r)

	var (
		amount int64
		err    error
	)
	switch req.Kind {
	case "payroll":
		amount, err = s.engine.ClaimPayroll(r.Context(), caller, id, req.EmployeeIndex)
	case "time":
		amount, err = s.engine.ClaimTimeBased(r.Context(), caller, id)
	case "milestone":
		amount, err = s.engine.ClaimMilestone(r.Context(), caller, id, req.MilestoneID)
	default:
		writeError(w, http.StatusBadRequest, "kind must be payroll, time, or milestone")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"amount": amount})
}

type batchClaimRequest struct {
	Kind    string `json:"kind"`
	Targets []int  `json:"targets"`
}

type batchItemResponse struct {
	Target int   `json:"target"`
	Code   int32 `json:"code"`
}

type batchResponse struct {
	Items            []batchItemResponse `json:"items"`
	SuccessfulClaims int                 `json:"successfulClaims"`
	FailedClaims     int                 `json:"failedClaims"`
	TotalClaimed     int64               `json:"totalClaimed"`
}

func (s *Server) handleBatchClaim(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req batchClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	caller := callerAddress(r)

	var (
		result agreement.BatchResult
		err    error
	)
	switch req.Kind {
	case "payroll":
		result, err = s.engine.BatchClaimPayroll(r.Context(), caller, id, req.Targets)
	case "milestone":
		result, err = s.engine.BatchClaimMilestone(r.Context(), caller, id, req.Targets)
	default:
		writeError(w, http.StatusBadRequest, "kind must be payroll or milestone")
		return
	}
	if err != nil {
		writeEngineError(w, err)
		return
	}

	resp := batchResponse{
		SuccessfulClaims: result.SuccessfulClaims,
		FailedClaims:     result.FailedClaims,
		TotalClaimed:     result.TotalClaimed,
		Items:            make([]batchItemResponse, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, batchItemResponse{Target: item.Target, Code: int32(item.Code)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAgreementDisputes(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.engine.RaiseDispute(r.Context(), callerAddress(r), id); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleResolveDispute(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req struct {
		PayCounterpart int64 `json:"payCounterpart"`
		RefundEmployer int64 `json:"refundEmployer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.engine.ResolveDispute(r.Context(), callerAddress(r), id, req.PayCounterpart, req.RefundEmployer); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type disputeResponse struct {
	ID             string `json:"id"`
	AgreementID    int64  `json:"agreementId"`
	RaisedBy       string `json:"raisedBy"`
	State          string `json:"state"`
	RaisedAt       string `json:"raisedAt"`
	ResolvedAt     string `json:"resolvedAt,omitempty"`
	PayCounterpart int64  `json:"payCounterpart"`
	RefundEmployer int64  `json:"refundEmployer"`
}

func toDisputeResponse(rec dispute.Record) disputeResponse {
	resp := disputeResponse{
		ID:             rec.ID,
		AgreementID:    rec.AgreementID,
		RaisedBy:       rec.RaisedBy,
		State:          string(rec.State),
		RaisedAt:       rec.RaisedAt.Format(time.RFC3339),
		PayCounterpart: rec.PayCounterpart,
		RefundEmployer: rec.RefundEmployer,
	}
	if rec.ResolvedAt != nil {
		resp.ResolvedAt = rec.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}

func (s *Server) handleDisputes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var agreementID int64
	if raw := r.URL.Query().Get("agreementId"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid agreementId filter")
			return
		}
		agreementID = parsed
	}
	records, err := s.disputeService.List(r.Context(), callerAddress(r), agreementID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]disputeResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, toDisputeResponse(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleDisputeDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/disputes/"), "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "dispute id required")
		return
	}
	rec, err := s.disputeService.Get(r.Context(), callerAddress(r), id)
	if err != nil {
		switch {
		case errors.Is(err, dispute.ErrNotFound):
			writeError(w, http.StatusNotFound, "dispute not found")
		case errors.Is(err, dispute.ErrForbidden):
			writeError(w, http.StatusForbidden, "forbidden")
		default:
			writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	writeJSON(w, http.StatusOK, toDisputeResponse(rec))
}

type accountResponse struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	tok := r.URL.Query().Get("token")
	if tok == "" {
		writeError(w, http.StatusBadRequest, "token query parameter required")
		return
	}

	if address := r.URL.Query().Get("address"); address != "" {
		acct, err := s.accountService.GetAccount(r.Context(), tok, address)
		if err != nil {
			if errors.Is(err, token.ErrNoAccount) {
				writeError(w, http.StatusNotFound, "account not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, accountResponse{Token: acct.Token, Address: acct.Address, Balance: acct.Balance})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, _ = strconv.Atoi(raw)
	}
	accounts, err := s.accountService.ListAccounts(r.Context(), tok, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	items := make([]accountResponse, 0, len(accounts))
	for _, acct := range accounts {
		items = append(items, accountResponse{Token: acct.Token, Address: acct.Address, Balance: acct.Balance})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items)})
}
