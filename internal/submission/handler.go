package submission

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/submission/entity"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
)

// Handler serves order and player submissions for the authenticated tenant.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// OrderResponse is returned for a stored order.
type OrderResponse struct {
	Success bool  `json:"success"`
	OrderID int64 `json:"orderId"`
}

// PlayerResponse is returned for a stored player.
type PlayerResponse struct {
	Success  bool  `json:"success"`
	PlayerID int64 `json:"playerId"`
}

func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		utilities.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}
	var o entity.Order
	if err := utilities.DecodeJSON(r, &o); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := h.svc.SubmitOrder(r.Context(), claims.SchemaName, &o)
	if err != nil {
		h.writeError(w, "create order", claims, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, OrderResponse{Success: true, OrderID: id})
}

func (h *Handler) CreatePlayer(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		utilities.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}
	var p entity.Player
	if err := utilities.DecodeJSON(r, &p); err != nil {
		utilities.WriteError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	id, err := h.svc.SubmitPlayer(r.Context(), claims.SchemaName, &p)
	if err != nil {
		h.writeError(w, "create player", claims, err)
		return
	}
	utilities.WriteJSON(w, http.StatusCreated, PlayerResponse{Success: true, PlayerID: id})
}

func (h *Handler) writeError(w http.ResponseWriter, op string, claims *auth.Claims, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		utilities.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvalidSchema):
		h.logger.Warnw(op+" refused", "user_id", claims.UserID, "schema", claims.SchemaName)
		utilities.WriteError(w, http.StatusForbidden, err.Error())
	default:
		h.logger.Errorw(op+" failed", "schema", claims.SchemaName, "err", err)
		utilities.WriteError(w, http.StatusInternalServerError, "server error")
	}
}
