package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"ncm-portal/internal/audit"
	"ncm-portal/internal/inventory/interfaces"
)

// listNodes handles GET /api/nodes: the enriched device list. A collector
// failure fails the listing; partial enrichment only happens per device when
// the collector simply does not know it.
func (h *Handler) listNodes(w http.ResponseWriter, r *http.Request) {
	devices, err := h.reconciler.ListEnrichedDevices(r.Context())
	if err != nil {
		h.logger.Printf("gateway: list nodes: %v", err)
		renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// exportNodes handles GET /api/nodes/export.xlsx.
func (h *Handler) exportNodes(w http.ResponseWriter, r *http.Request) {
	devices, err := h.reconciler.ListEnrichedDevices(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	workbook, err := interfaces.BuildInventoryXLSX(devices)
	if err != nil {
		h.logger.Printf("gateway: build inventory export: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.xlsx"`)
	_, _ = w.Write(workbook)
}

// exportNodesPDF handles GET /api/nodes/export.pdf.
func (h *Handler) exportNodesPDF(w http.ResponseWriter, r *http.Request) {
	devices, err := h.reconciler.ListEnrichedDevices(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	document, err := interfaces.BuildInventoryPDF(devices)
	if err != nil {
		h.logger.Printf("gateway: build inventory export: %v", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="devices.pdf"`)
	_, _ = w.Write(document)
}

// nodeStats handles GET /api/nodes/stats: the collector's status statistics,
// passed through verbatim.
func (h *Handler) nodeStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.reconciler.NodeStats(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(stats)
}

// showNode handles GET /api/nodes/{address}: the enriched device detail.
func (h *Handler) showNode(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	detail, err := h.reconciler.GetEnrichedDevice(r.Context(), address)
	if err != nil {
		renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// nodeVersions handles GET /api/nodes/{address}/versions. Unavailable
// version data renders as an empty list, not an error.
func (h *Handler) nodeVersions(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	writeJSON(w, http.StatusOK, h.reconciler.GetVersions(r.Context(), address))
}

// nodeConfig handles GET /api/nodes/{address}/config[?oid=&date=&num=]. The
// blob is served as plain text.
func (h *Handler) nodeConfig(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	query := r.URL.Query()
	config, err := h.reconciler.GetConfig(r.Context(), address, query.Get("oid"), query.Get("date"), query.Get("num"))
	if err != nil {
		renderError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(config))
}

// reloadAll handles GET /api/reload: trigger a collector-wide reload. The
// response only says the trigger completed.
func (h *Handler) reloadAll(w http.ResponseWriter, r *http.Request) {
	if err := h.reconciler.ReloadAll(r.Context()); err != nil {
		renderError(w, err)
		return
	}
	h.auditEntry(r, audit.Entry{Action: audit.ActionReloadAll})
	writeJSON(w, http.StatusOK, map[string]string{})
}

// reloadNode handles GET /api/nodes/{address}/reload.
func (h *Handler) reloadNode(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.reconciler.ReloadDevice(r.Context(), address); err != nil {
		renderError(w, err)
		return
	}
	h.auditEntry(r, audit.Entry{
		Action:       audit.ActionReloadDevice,
		ResourceType: "device",
		ResourceID:   address,
	})
	writeJSON(w, http.StatusOK, map[string]string{})
}
