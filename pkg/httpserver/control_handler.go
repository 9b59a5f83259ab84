package httpserver

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/mirrordesk/perp-mirror/internal/controller"
	"github.com/mirrordesk/perp-mirror/internal/storage"
)

// ControlHandler serves the operator API: engine status plus the two
// mutable knobs.
type ControlHandler struct {
	status StatusProvider
	ctl    *controller.Controller
	store  storage.Store
	logger *zap.Logger
}

// NewControlHandler creates a new control handler.
func NewControlHandler(status StatusProvider, ctl *controller.Controller, store storage.Store, logger *zap.Logger) *ControlHandler {
	return &ControlHandler{
		status: status,
		ctl:    ctl,
		store:  store,
		logger: logger,
	}
}

// ControlState is the response for GET /api/control.
type ControlState struct {
	Enabled bool                     `json:"enabled"`
	Ratio   float64                  `json:"ratio"`
	Audit   []controller.RatioChange `json:"ratio_audit"`
}

// SetEnabledRequest is the body for POST /api/control/enabled.
type SetEnabledRequest struct {
	Enabled bool   `json:"enabled"`
	By      string `json:"by"`
}

// SetRatioRequest is the body for POST /api/control/ratio.
type SetRatioRequest struct {
	Ratio float64 `json:"ratio"`
	By    string  `json:"by"`
}

// ErrorResponse represents an HTTP error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// HandleStatus handles GET /api/status requests.
func (h *ControlHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.status.Snapshot())
}

// HandleControlState handles GET /api/control requests.
func (h *ControlHandler) HandleControlState(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, ControlState{
		Enabled: h.ctl.Enabled(),
		Ratio:   h.ctl.Ratio(),
		Audit:   h.ctl.AuditLog(),
	})
}

// HandleSetEnabled handles POST /api/control/enabled requests.
func (h *ControlHandler) HandleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req SetEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.By == "" {
		req.By = "api"
	}

	h.logger.Info("control-set-enabled",
		zap.Bool("enabled", req.Enabled),
		zap.String("by", req.By))
	h.ctl.SetEnabled(req.Enabled, req.By)

	h.writeJSON(w, http.StatusOK, ControlState{
		Enabled: h.ctl.Enabled(),
		Ratio:   h.ctl.Ratio(),
	})
}

// HandleSetRatio handles POST /api/control/ratio requests.
func (h *ControlHandler) HandleSetRatio(w http.ResponseWriter, r *http.Request) {
	var req SetRatioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.By == "" {
		req.By = "api"
	}

	old := h.ctl.Ratio()
	applied, err := h.ctl.SetRatio(req.Ratio, req.By)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	if h.store != nil {
		audit := &storage.RatioAudit{
			Old: old,
			New: applied,
			By:  req.By,
			At:  time.Now(),
		}
		if old != 0 {
			audit.DeltaPct = (applied - old) / old * 100
		}
		if err := h.store.RecordRatioChange(r.Context(), audit); err != nil {
			h.logger.Warn("ratio-audit-store-failed", zap.Error(err))
		}
	}

	h.writeJSON(w, http.StatusOK, ControlState{
		Enabled: h.ctl.Enabled(),
		Ratio:   applied,
	})
}

func (h *ControlHandler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("failed-to-encode-response", zap.Error(err))
	}
}

// writeError writes a JSON error response.
func (h *ControlHandler) writeError(w http.ResponseWriter, message string, statusCode int) {
	h.writeJSON(w, statusCode, ErrorResponse{Error: message})
}
