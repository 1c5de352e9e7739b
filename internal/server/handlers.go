package server

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	accountdomain "op-platform/core/internal/account/domain"
	accountservice "op-platform/core/internal/account/service"
	otpdomain "op-platform/core/internal/otp/domain"
	otpservice "op-platform/core/internal/otp/service"
	"op-platform/core/internal/platform/errs"
)

type accountBody struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	Status   string `json:"status"`
	Verified bool   `json:"verified"`
}

func toAccountBody(a *accountdomain.Account) accountBody {
	return accountBody{
		ID:       a.ID,
		Email:    a.Email,
		Name:     a.Name,
		Phone:    a.Phone,
		Address:  a.Address,
		Status:   string(a.Status),
		Verified: a.Verified,
	}
}

// handleRegister creates the account in pending status and sends the first
// verification code. The code is delivered out of band, never echoed here.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
		Phone    string `json:"phone"`
		Address  string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	acct, err := s.accounts.Register(r.Context(), accountservice.RegisterRequest{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Phone:    req.Phone,
		Address:  req.Address,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	if _, err := s.otp.Issue(r.Context(), acct.Email, otpdomain.ChannelEmail, otpdomain.PurposeRegistration, otpservice.IssueOptions{
		AccountID:   acct.ID,
		DeviceInfo:  r.UserAgent(),
		DisplayName: acct.Name,
	}); err != nil {
		// The account exists; the client can ask for a resend.
		s.logger.Warn("initial otp issue failed", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, toAccountBody(acct))
}

// handleOTPRequest issues or resends a code for an identifier.
func (s *Server) handleOTPRequest(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Channel    string `json:"channel"`
		Purpose    string `json:"purpose"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Identifier == "" {
		badRequest(w, "identifier is required")
		return
	}
	channel := otpdomain.Channel(req.Channel)
	if req.Channel == "" {
		channel = otpdomain.ChannelEmail
	}
	purpose := otpdomain.Purpose(req.Purpose)
	if req.Purpose == "" {
		purpose = otpdomain.PurposeRegistration
	}
	if !channel.Valid() || !purpose.Valid() {
		badRequest(w, "invalid channel or purpose")
		return
	}

	opts := otpservice.IssueOptions{DeviceInfo: r.UserAgent()}
	if acct, err := s.accounts.GetByEmail(r.Context(), req.Identifier); err == nil {
		opts.AccountID = acct.ID
		opts.DisplayName = acct.Name
	}

	if _, err := s.otp.Issue(r.Context(), req.Identifier, channel, purpose, opts); err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// handleOTPVerify checks the submitted code. For a known account a successful
// verification activates a pending account and issues a bearer token; this is
// both the registration-confirmation and the login step.
func (s *Server) handleOTPVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
		Code       string `json:"code"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Identifier == "" || req.Code == "" {
		badRequest(w, "identifier and code are required")
		return
	}

	if err := s.otp.Verify(r.Context(), req.Identifier, req.Code); err != nil {
		writeError(w, s.logger, err)
		return
	}

	acct, err := s.accounts.GetByEmail(r.Context(), req.Identifier)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			// Verified an identifier with no account (e.g. pre-registration check).
			writeJSON(w, http.StatusOK, map[string]any{"verified": true})
			return
		}
		writeError(w, s.logger, err)
		return
	}

	if acct.Status == accountdomain.StatusPending {
		if err := s.accounts.Activate(r.Context(), acct.ID); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	token, err := s.sessions.Issue(r.Context(), acct.ID, r.UserAgent(), clientAddr(r))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"verified":     true,
		"access_token": token.AccessToken,
		"token_type":   "bearer",
		"expires_at":   token.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) handleAccountGet(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, s.logger, errs.ErrUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, toAccountBody(acct))
}

func (s *Server) handleAccountUpdate(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, s.logger, errs.ErrUnauthorized)
		return
	}
	var req struct {
		Name    *string `json:"name"`
		Phone   *string `json:"phone"`
		Address *string `json:"address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if err := s.accounts.Update(r.Context(), acct.ID, accountdomain.Update{
		Name:    req.Name,
		Phone:   req.Phone,
		Address: req.Address,
	}); err != nil {
		writeError(w, s.logger, err)
		return
	}
	updated, err := s.accounts.Get(r.Context(), acct.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountBody(updated))
}

// handleAccountDelete soft-deletes the account and revokes every token it
// holds, so no device keeps access to a deleted account.
func (s *Server) handleAccountDelete(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, s.logger, errs.ErrUnauthorized)
		return
	}
	if err := s.accounts.Delete(r.Context(), acct.ID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	if _, err := s.sessions.RevokeAll(r.Context(), acct.ID); err != nil {
		s.logger.Warn("revoke-all after delete failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	acct, _ := AccountFrom(r.Context())
	current, _ := TokenFrom(r.Context())

	currentToken := ""
	if current != nil {
		currentToken = current.AccessToken
	}
	list, err := s.sessions.ListActive(r.Context(), acct.ID, currentToken)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	type sessionBody struct {
		ID         string `json:"id"`
		DeviceInfo string `json:"device_info,omitempty"`
		IPAddress  string `json:"ip_address,omitempty"`
		CreatedAt  string `json:"created_at"`
		ExpiresAt  string `json:"expires_at"`
		IsCurrent  bool   `json:"is_current"`
	}
	out := make([]sessionBody, len(list))
	for i, item := range list {
		out[i] = sessionBody{
			ID:         item.ID,
			DeviceInfo: item.DeviceInfo,
			IPAddress:  item.IPAddress,
			CreatedAt:  item.CreatedAt.Format(time.RFC3339),
			ExpiresAt:  item.ExpiresAt.Format(time.RFC3339),
			IsCurrent:  item.IsCurrent,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleSessionRevokeCurrent(w http.ResponseWriter, r *http.Request) {
	current, ok := TokenFrom(r.Context())
	if !ok {
		writeError(w, s.logger, errs.ErrUnauthorized)
		return
	}
	if err := s.sessions.Revoke(r.Context(), current.AccessToken); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSessionRevokeAll(w http.ResponseWriter, r *http.Request) {
	acct, ok := AccountFrom(r.Context())
	if !ok {
		writeError(w, s.logger, errs.ErrUnauthorized)
		return
	}
	n, err := s.sessions.RevokeAll(r.Context(), acct.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

// handleLogList returns the newest request logs, newest first. limit is
// capped at 500.
func (s *Server) handleLogList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > 500 {
		limit = 500
	}

	logs, err := s.logs.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, s.logger, errs.Dependency(err))
		return
	}

	type logBody struct {
		ID         string `json:"id"`
		Method     string `json:"method"`
		URL        string `json:"url"`
		StatusCode int    `json:"status_code"`
		IPAddress  string `json:"ip_address,omitempty"`
		UserAgent  string `json:"user_agent,omitempty"`
		DurationMS int64  `json:"duration_ms"`
		CreatedAt  string `json:"created_at"`
	}
	out := make([]logBody, len(logs))
	for i, l := range logs {
		out[i] = logBody{
			ID:         l.ID,
			Method:     l.Method,
			URL:        l.URL,
			StatusCode: l.StatusCode,
			IPAddress:  l.IPAddress,
			UserAgent:  l.UserAgent,
			DurationMS: l.Duration.Milliseconds(),
			CreatedAt:  l.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": out})
}
