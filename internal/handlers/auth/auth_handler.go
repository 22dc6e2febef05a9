// internal/handlers/auth/auth_handler.go
package auth

import (
	"net/http"
	"time"

	domain "tokenguard-service/internal/domain/session"
	"tokenguard-service/internal/middleware"
	xerrors "tokenguard-service/internal/pkg/errors"
	"tokenguard-service/internal/pkg/response"
	"tokenguard-service/internal/pkg/token"
	"tokenguard-service/internal/service/introspect"
	"tokenguard-service/internal/service/revocation"
	sessionsvc "tokenguard-service/internal/service/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	sessions     *sessionsvc.Manager
	codec        *token.Codec
	revocations  *revocation.List
	introspector *introspect.Introspector
	directory    domain.Directory
	logger       *zap.Logger
}

func NewAuthHandler(
	sessions *sessionsvc.Manager,
	codec *token.Codec,
	revocations *revocation.List,
	introspector *introspect.Introspector,
	directory domain.Directory,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		sessions:     sessions,
		codec:        codec,
		revocations:  revocations,
		introspector: introspector,
		directory:    directory,
		logger:       logger,
	}
}

// ========== Login boundary ==========

// IssueTokens mints an access token and a session for an already-verified
// identity. Called by the identity layer, never directly by end users;
// credential checks happen upstream.
func (h *AuthHandler) IssueTokens(c *gin.Context) {
	var req domain.IssueTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	sessionToken, err := h.sessions.Generate(c.Request.Context(), req.OwnerID, req.DeviceLabel)
	if err != nil {
		h.logger.Error("failed to create session",
			zap.String("owner_id", req.OwnerID),
			zap.Error(err),
		)
		response.Error(c, http.StatusInternalServerError, "failed to create session", nil)
		return
	}

	accessToken, err := h.codec.Issue(req.OwnerID, req.Role, req.Email)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}

	response.Success(c, http.StatusOK, "tokens issued", h.tokenPair(accessToken, sessionToken))
}

// ========== Refresh boundary ==========

// Refresh exchanges an opaque session token for a fresh pair. Every failure
// surfaces as the same authentication-required answer; the reason survives
// only in the revocation list for audit.
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req domain.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result, err := h.sessions.Rotate(c.Request.Context(), req.SessionToken, req.OwnerID, req.DeviceLabel)
	if err != nil {
		h.logger.Error("rotation failed",
			zap.String("owner_id", req.OwnerID),
			zap.Error(err),
		)
		response.Error(c, http.StatusServiceUnavailable, "temporarily unavailable", nil)
		return
	}
	if result.State != sessionsvc.Rotated {
		response.Unauthorized(c, "please sign in again")
		return
	}

	role, email, err := h.directory.Lookup(c.Request.Context(), req.OwnerID)
	if err != nil {
		if xerrors.Is(err, xerrors.ErrNotFound) {
			response.Unauthorized(c, "please sign in again")
			return
		}
		h.logger.Error("account lookup failed", zap.Error(err))
		response.Error(c, http.StatusServiceUnavailable, "temporarily unavailable", nil)
		return
	}

	accessToken, err := h.codec.Issue(req.OwnerID, role, email)
	if err != nil {
		h.logger.Error("failed to issue access token", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to issue token", nil)
		return
	}

	response.Success(c, http.StatusOK, "tokens refreshed", h.tokenPair(accessToken, result.Token))
}

// ========== Logout boundary ==========

// Logout revokes the presented access token and, when named, one session.
func (h *AuthHandler) Logout(c *gin.Context) {
	ownerID, _ := middleware.GetOwnerID(c)

	var req domain.LogoutRequest
	_ = c.ShouldBindJSON(&req)

	h.revokeCurrentAccessToken(c, ownerID, domain.ReasonLogout)

	if req.SessionID != "" {
		if _, err := h.sessions.RevokeOne(c.Request.Context(), req.SessionID, ownerID, domain.ReasonLogout); err != nil {
			h.logger.Error("failed to revoke session on logout", zap.Error(err))
			response.Error(c, http.StatusInternalServerError, "logout failed", nil)
			return
		}
	}

	response.Success(c, http.StatusOK, "logged out", nil)
}

// LogoutAll revokes every session of the owner plus the presented access
// token.
func (h *AuthHandler) LogoutAll(c *gin.Context) {
	ownerID, _ := middleware.GetOwnerID(c)

	h.revokeCurrentAccessToken(c, ownerID, domain.ReasonLogout)

	count, err := h.sessions.RevokeAllForOwner(c.Request.Context(), ownerID, domain.ReasonLogout)
	if err != nil {
		h.logger.Error("failed to revoke all sessions", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "logout failed", nil)
		return
	}

	response.Success(c, http.StatusOK, "logged out everywhere", gin.H{"revoked_sessions": count})
}

// ========== Session management UI boundary ==========

// GetActiveSessions feeds the "your devices" view.
func (h *AuthHandler) GetActiveSessions(c *gin.Context) {
	ownerID, _ := middleware.GetOwnerID(c)

	summaries, err := h.sessions.ListActiveSessions(c.Request.Context(), ownerID)
	if err != nil {
		h.logger.Error("failed to list sessions", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to list sessions", nil)
		return
	}

	response.Success(c, http.StatusOK, "active sessions", summaries)
}

// RevokeSession backs the "log out this device" action.
func (h *AuthHandler) RevokeSession(c *gin.Context) {
	ownerID, _ := middleware.GetOwnerID(c)
	sessionID := c.Param("session_id")

	revoked, err := h.sessions.RevokeOne(c.Request.Context(), sessionID, ownerID, domain.ReasonUserRevoked)
	if err != nil {
		h.logger.Error("failed to revoke session", zap.Error(err))
		response.Error(c, http.StatusInternalServerError, "failed to revoke session", nil)
		return
	}
	if !revoked {
		response.NotFound(c, "session not found")
		return
	}

	response.Success(c, http.StatusOK, "session revoked", nil)
}

// ========== Resource-request boundary ==========

// IntrospectToken answers resource-server checks with only {active, claims?}.
func (h *AuthHandler) IntrospectToken(c *gin.Context) {
	var req domain.IntrospectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "invalid request", err)
		return
	}

	result := h.introspector.Introspect(c.Request.Context(), req.Token)
	c.JSON(http.StatusOK, result)
}

// ========== Helpers ==========

func (h *AuthHandler) tokenPair(accessToken, sessionToken string) domain.TokenPairResponse {
	expiresAt := time.Now().Add(h.codec.TTL())
	return domain.TokenPairResponse{
		AccessToken:  accessToken,
		SessionToken: sessionToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.codec.TTL().Seconds()),
		ExpiresAt:    expiresAt,
	}
}

// revokeCurrentAccessToken blacklists the presented bearer token until its
// own natural expiry.
func (h *AuthHandler) revokeCurrentAccessToken(c *gin.Context, ownerID string, reason domain.RevocationReason) {
	raw, ok := middleware.GetAccessToken(c)
	if !ok {
		return
	}

	expiresAt := time.Now().Add(h.codec.TTL())
	if v, exists := c.Get("token_expires_at"); exists {
		if t, ok := v.(time.Time); ok {
			expiresAt = t
		}
	}

	if err := h.revocations.Add(c.Request.Context(), raw, ownerID, expiresAt, reason); err != nil {
		h.logger.Error("failed to revoke access token", zap.Error(err))
	}
}
