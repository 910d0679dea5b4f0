// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 VirtStack Contributors

// Package auth orchestrates the login flow: realm dispatch for the primary
// factor, account state checks, the optional one-time-password second
// factor, and ticket issuance.
package auth

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/oops"

	"github.com/virtstack/access/internal/access"
	"github.com/virtstack/access/internal/otp"
	"github.com/virtstack/access/internal/realm"
	"github.com/virtstack/access/internal/ticket"
	"github.com/virtstack/access/internal/usercfg"
)

// Session is the result of a successful login.
type Session struct {
	User      string
	Ticket    string
	CSRFToken string
}

// Service wires the authentication collaborators together. Construct once
// at startup; all fields are immutable afterwards.
type Service struct {
	configs   *usercfg.Manager
	authority *ticket.Authority
	registry  *realm.Registry
	realms    map[string]realm.Config // realm name to its configuration
	remote    *otp.RemoteVerifier
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service. realms maps realm names to their
// configuration; every configured type must be registered in the registry.
func NewService(configs *usercfg.Manager, authority *ticket.Authority, registry *realm.Registry, realms map[string]realm.Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		configs:   configs,
		authority: authority,
		registry:  registry,
		realms:    realms,
		remote:    otp.NewRemoteVerifier(),
		logger:    logger,
		now:       time.Now,
	}
}

// errInvalidCredentials is the one message every credential failure
// surfaces as, so a caller cannot probe which factor was wrong or whether
// the account exists.
func errInvalidCredentials() error {
	return oops.Code("INVALID_CREDENTIALS").Errorf("authentication failure")
}

// Authenticate verifies the credentials of userID and returns a fresh
// session. clientAddr is logged with every failure for audit trails; it
// plays no part in the decision.
func (s *Service) Authenticate(ctx context.Context, userID, password, otpCode, clientAddr string) (Session, error) {
	deny := func(cause string, err error) (Session, error) {
		attrs := []any{"user", userID, "client", clientAddr, "cause", cause}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		s.logger.WarnContext(ctx, "authentication denied", attrs...)
		return Session{}, errInvalidCredentials()
	}

	username, realmName, err := usercfg.ParseUserID(userID)
	if err != nil {
		return deny("malformed user id", err)
	}

	cfg, _, err := s.configs.Load(ctx)
	if err != nil {
		return Session{}, err
	}

	user, ok := cfg.Users[userID]
	if !ok {
		return deny("unknown user", nil)
	}
	if !user.Enabled {
		return Session{}, oops.Code("ACCOUNT_DISABLED").With("user", userID).
			Errorf("account is disabled")
	}
	if user.ExpiredAt(s.now().Unix()) {
		return Session{}, oops.Code("ACCOUNT_EXPIRED").With("user", userID).
			Errorf("account has expired")
	}

	realmCfg, ok := s.realms[realmName]
	if !ok {
		return Session{}, oops.Code("UNKNOWN_REALM").With("realm", realmName).
			Errorf("unknown realm %q", realmName)
	}
	backend, err := s.registry.Lookup(realmCfg.Type)
	if err != nil {
		return Session{}, err
	}

	if err := backend.Authenticate(ctx, realmCfg, realmName, username, password); err != nil {
		return deny("primary factor rejected", err)
	}

	if err := s.verifySecondFactor(ctx, realmCfg, user, otpCode); err != nil {
		return deny("second factor rejected", err)
	}

	loginTicket, err := s.authority.IssueLoginTicket(userID)
	if err != nil {
		return Session{}, err
	}
	s.logger.InfoContext(ctx, "authentication succeeded", "user", userID, "client", clientAddr)
	return Session{
		User:      userID,
		Ticket:    loginTicket,
		CSRFToken: s.authority.IssueCSRFToken(userID),
	}, nil
}

// verifySecondFactor checks the one-time password when the user has key
// material registered. The realm's mfa option selects the mechanism;
// time-based codes are the default.
func (s *Service) verifySecondFactor(ctx context.Context, realmCfg realm.Config, user *usercfg.User, otpCode string) error {
	if len(user.Keys) == 0 {
		return nil
	}
	if otpCode == "" {
		return oops.Code("OTP_FAILED").Errorf("second factor required")
	}
	switch realmCfg.Options["mfa"] {
	case "yubico":
		remoteCfg := otp.RemoteConfig{
			Endpoint: realmCfg.Options["mfa-url"],
			APIID:    realmCfg.Options["mfa-api-id"],
			APIKey:   realmCfg.Options["mfa-api-key"],
		}
		return s.remote.Verify(ctx, remoteCfg, otpCode, user.Keys)
	default:
		return otp.VerifyTOTP(otpCode, user.Keys, s.now())
	}
}

// VerifyTicket validates a session ticket and returns its user and age in
// seconds.
func (s *Service) VerifyTicket(sessionTicket string) (string, int64, error) {
	return s.authority.VerifyLoginTicket(sessionTicket)
}

// Authorize validates a request's session ticket and checks the resolved
// privileges at path. State-changing requests must also present a valid
// CSRF token for the ticket's user.
func (s *Service) Authorize(ctx context.Context, sessionTicket, csrfToken string, stateChanging bool, path string, required ...string) (string, error) {
	user, _, err := s.authority.VerifyLoginTicket(sessionTicket)
	if err != nil {
		return "", err
	}
	if stateChanging {
		if err := s.authority.VerifyCSRFToken(user, csrfToken); err != nil {
			return "", err
		}
	}

	cfg, _, err := s.configs.Load(ctx)
	if err != nil {
		return "", err
	}
	allowed, err := access.Check(cfg, user, path, required...)
	if err != nil {
		return "", err
	}
	if !allowed {
		return "", oops.Code("PERMISSION_DENIED").
			With("user", user).With("path", path).
			Errorf("insufficient privileges")
	}
	return user, nil
}

// ChangePassword sets a new password for userID through its realm backend.
// Only backends that own their credential store support this.
func (s *Service) ChangePassword(ctx context.Context, userID, newPassword string) error {
	username, realmName, err := usercfg.ParseUserID(userID)
	if err != nil {
		return err
	}
	realmCfg, ok := s.realms[realmName]
	if !ok {
		return oops.Code("UNKNOWN_REALM").With("realm", realmName).
			Errorf("unknown realm %q", realmName)
	}
	backend, err := s.registry.Lookup(realmCfg.Type)
	if err != nil {
		return err
	}
	storer, ok := backend.(realm.PasswordStorer)
	if !ok {
		return oops.Code("PERMISSION_DENIED").With("realm", realmName).
			Errorf("realm does not support password changes")
	}
	return storer.StorePassword(ctx, realmCfg, realmName, username, newPassword)
}
