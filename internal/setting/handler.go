package setting

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tenant-go-stdlib/pkg/utilities"
)

// Handler contains dependencies for handling setting endpoints.
type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

// NewHandler constructs a new Handler.
func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// Get serves GET /api/customer/{name}, where name is "settings" or
// "<form>-settings". The caller's schema comes from the session claims.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFrom(r.Context())
	if !ok {
		utilities.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}
	name := r.PathValue("name")

	var (
		raw json.RawMessage
		err error
	)
	switch {
	case name == "settings":
		raw, err = h.svc.Get(r.Context(), claims.SchemaName)
	case strings.HasSuffix(name, "-settings"):
		raw, err = h.svc.GetForForm(r.Context(), claims.SchemaName, strings.TrimSuffix(name, "-settings"))
	default:
		err = ErrUnknownForm
	}
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound), errors.Is(err, ErrUnknownForm):
			utilities.WriteError(w, http.StatusNotFound, err.Error())
		default:
			h.logger.Errorw("get settings failed", "schema", claims.SchemaName, "err", err)
			utilities.WriteError(w, http.StatusInternalServerError, "server error")
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
