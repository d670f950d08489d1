package handlers

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/cloud-atlas/api/internal/domain"
	"github.com/cloud-atlas/api/internal/platform/httpx"
	"github.com/cloud-atlas/api/internal/services"
)

// BlocklistHandlers exposes the internal manual block operations.
type BlocklistHandlers struct {
	blocklist  services.BlocklistService
	production bool
}

// NewBlocklistHandlers constructs a new BlocklistHandlers instance.
func NewBlocklistHandlers(blocklist services.BlocklistService, production bool) *BlocklistHandlers {
	return &BlocklistHandlers{
		blocklist:  blocklist,
		production: production,
	}
}

// Routes registers the /internal/blocked-ips endpoints.
func (h *BlocklistHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/blocked-ips", h.block)
	r.Delete("/blocked-ips", h.unblock)
}

func (h *BlocklistHandlers) block(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ip string) { h.blocklist.BlockIP(ip) })
}

func (h *BlocklistHandlers) unblock(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, func(ip string) { h.blocklist.UnblockIP(ip) })
}

// mutate parses the target address and applies op. The address itself is
// never logged or echoed back.
func (h *BlocklistHandlers) mutate(w http.ResponseWriter, r *http.Request, op func(string)) {
	ctx := r.Context()
	if h.blocklist == nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeInternalError, "blocklist service unavailable", http.StatusServiceUnavailable), h.production)
		return
	}

	var req blockedIPRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*1024)).Decode(&req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "Invalid JSON", http.StatusBadRequest), h.production)
		return
	}

	ip := strings.TrimSpace(req.IP)
	if net.ParseIP(ip) == nil {
		httpx.WriteError(ctx, w, httpx.NewError(domain.CodeValidationError, "A valid ip address is required", http.StatusBadRequest), h.production)
		return
	}

	op(ip)
	w.WriteHeader(http.StatusNoContent)
}

type blockedIPRequest struct {
	IP string `json:"ip"`
}
