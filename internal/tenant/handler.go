package tenant

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
)

// Handler exposes HTTP endpoints for login, registration, client
// provisioning and password links.
type Handler struct {
	svc    *Service
	tokens *auth.TokenService
	guard  *auth.Middleware
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, tokens *auth.TokenService, guard *auth.Middleware, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, tokens: tokens, guard: guard, logger: logger}
}

// LoginRequest login payload.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse carries the session token and the tenant's schema and role.
type LoginResponse struct {
	Success    bool   `json:"success"`
	Token      string `json:"token"`
	SchemaName string `json:"schemaName"`
	Role       string `json:"role"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		h.logger.Debugw("invalid login payload", "err", err)
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.svc.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrBadCredentials) {
			h.logger.Debugw("login failed", "email", req.Email)
			utilities.WriteError(w, http.StatusBadRequest, "invalid email or password")
			return
		}
		h.logger.Errorw("login error", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	token, err := h.tokens.Issue(t.ID, t.SchemaName, t.Role)
	if err != nil {
		h.logger.Errorw("issue token", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "login failed")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, LoginResponse{Success: true, Token: token, SchemaName: t.SchemaName, Role: t.Role})
}

// RegisterRequest self-registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreatedResponse is returned when a tenant is provisioned.
type CreatedResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	TenantID string `json:"tenantId"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.svc.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.writeProvisionError(w, "register", err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, CreatedResponse{Success: true, Message: "registration complete", TenantID: t.ID})
}

// CreateClientRequest admin provisioning payload.
type CreateClientRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	t, err := h.svc.CreateClient(r.Context(), req.Name, req.Email)
	if err != nil {
		h.writeProvisionError(w, "create client", err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, CreatedResponse{
		Success:  true,
		Message:  "client and schema created; send the password link to the client",
		TenantID: t.ID,
	})
}

func (h *Handler) writeProvisionError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidName):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrDuplicate):
		utilities.WriteError(w, http.StatusConflict, "an account with this email or name already exists")
	default:
		h.logger.Errorw(op+" failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, op+" failed")
	}
}

// PasswordLinkRequest asks for a set-password link. AdminKey may be omitted
// when the caller presents an admin bearer token.
type PasswordLinkRequest struct {
	Email    string `json:"email"`
	AdminKey string `json:"adminKey"`
}

func (h *Handler) SendPasswordLink(w http.ResponseWriter, r *http.Request) {
	var req PasswordLinkRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if !h.svc.AuthorizeAdminKey(req.AdminKey) {
		claims, ok := h.guard.ClaimsFromRequest(r)
		if !ok || !claims.IsAdmin() {
			utilities.WriteError(w, http.StatusForbidden, "invalid admin key")
			return
		}
	}
	if err := h.svc.SendPasswordLink(r.Context(), req.Email); err != nil {
		if errors.Is(err, ErrNotFound) {
			utilities.WriteError(w, http.StatusNotFound, "user not found")
			return
		}
		h.logger.Errorw("send password link failed", "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "error sending link")
		return
	}
	utilities.WriteJSON(w, http.StatusOK, utilities.Message{Success: true, Message: "password creation link sent"})
}

// SetPasswordRequest consumes a reset token.
type SetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *Handler) SetPassword(w http.ResponseWriter, r *http.Request) {
	var req SetPasswordRequest
	if err := utilities.DecodeJSON(r, &req); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := h.svc.SetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, ErrInvalidResetToken):
			utilities.WriteError(w, http.StatusBadRequest, "invalid or expired token")
		case errors.Is(err, ErrInvalidInput):
			utilities.WriteError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Errorw("set password failed", "err", err)
			utilities.WriteError(w, http.StatusInternalServerError, "error updating password")
		}
		return
	}
	utilities.WriteJSON(w, http.StatusOK, utilities.Message{Success: true, Message: "password updated successfully"})
}
