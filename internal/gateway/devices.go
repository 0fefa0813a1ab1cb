package gateway

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ncm-portal/internal/audit"
	inventory "ncm-portal/internal/inventory/domain"
)

// devicePayload is the create/update request body. Password and enable are
// pointers so "field absent" and "field blank" stay distinguishable: on
// update, an absent or blank secret leaves the stored value unchanged.
type devicePayload struct {
	Name     string  `json:"name"`
	Address  string  `json:"address"`
	Type     string  `json:"type"`
	Username string  `json:"username"`
	Password *string `json:"password"`
	Enable   *string `json:"enable"`
}

// deviceResponse is the only shape a device leaves the API in. It has no
// secret fields at all, so no exclusion list can rot.
type deviceResponse struct {
	Address   string     `json:"address"`
	Name      string     `json:"name"`
	Type      string     `json:"type"`
	Username  string     `json:"username"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}

func toDeviceResponse(device inventory.Device) deviceResponse {
	return deviceResponse{
		Address:   device.Address,
		Name:      device.Name,
		Type:      device.Type,
		Username:  device.Username,
		CreatedAt: device.CreatedAt,
		UpdatedAt: device.UpdatedAt,
	}
}

// listDevices handles GET /api/devices.
func (h *Handler) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.FindAll(r.Context())
	if err != nil {
		h.logger.Printf("gateway: list devices: %v", err)
		renderError(w, err)
		return
	}
	result := make([]deviceResponse, 0, len(devices))
	for _, device := range devices {
		result = append(result, toDeviceResponse(device))
	}
	writeJSON(w, http.StatusOK, result)
}

// createDevice handles POST /api/devices.
func (h *Handler) createDevice(w http.ResponseWriter, r *http.Request) {
	payload, ok := decodeDevicePayload(w, r)
	if !ok {
		return
	}

	device := inventory.Device{
		Address:  strings.TrimSpace(payload.Address),
		Name:     strings.TrimSpace(payload.Name),
		Type:     strings.TrimSpace(payload.Type),
		Username: strings.TrimSpace(payload.Username),
	}
	if payload.Password != nil {
		device.Password = *payload.Password
	}
	if payload.Enable != nil {
		device.Enable = *payload.Enable
	}
	if fields := device.Validate(); fields != nil {
		writeFieldErrors(w, fields)
		return
	}

	if err := h.devices.Insert(r.Context(), &device); err != nil {
		renderError(w, err)
		return
	}
	// The metadata never carries secret values, only whether they were set.
	metadata, _ := json.Marshal(map[string]any{
		"name":         device.Name,
		"type":         device.Type,
		"username":     device.Username,
		"password_set": device.Password != "",
		"enable_set":   device.Enable != "",
	})
	h.auditEntry(r, audit.Entry{
		Action:       audit.ActionDeviceCreate,
		ResourceType: "device",
		ResourceID:   device.Address,
		Metadata:     metadata,
	})
	writeJSON(w, http.StatusCreated, toDeviceResponse(device))
}

// getDevice handles GET /api/devices/{address}.
func (h *Handler) getDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	device, err := h.devices.FindByAddress(r.Context(), address)
	if err != nil {
		renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(*device))
}

// updateDevice handles PUT /api/devices/{address}. The address is the
// immutable identity: a payload naming a different address is rejected
// instead of silently re-keying the device.
func (h *Handler) updateDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	payload, ok := decodeDevicePayload(w, r)
	if !ok {
		return
	}
	if payload.Address != "" && payload.Address != address {
		writeFieldErrors(w, map[string]string{"address": "Address cannot be changed."})
		return
	}

	device := inventory.Device{
		Address:  address,
		Name:     strings.TrimSpace(payload.Name),
		Type:     strings.TrimSpace(payload.Type),
		Username: strings.TrimSpace(payload.Username),
	}
	setPassword := payload.Password != nil && strings.TrimSpace(*payload.Password) != ""
	if setPassword {
		device.Password = *payload.Password
	}
	setEnable := payload.Enable != nil && strings.TrimSpace(*payload.Enable) != ""
	if setEnable {
		device.Enable = *payload.Enable
	}
	if fields := device.Validate(); fields != nil {
		writeFieldErrors(w, fields)
		return
	}

	if err := h.devices.Update(r.Context(), address, &device, setPassword, setEnable); err != nil {
		renderError(w, err)
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"name":             device.Name,
		"type":             device.Type,
		"username":         device.Username,
		"password_changed": setPassword,
		"enable_changed":   setEnable,
	})
	h.auditEntry(r, audit.Entry{
		Action:       audit.ActionDeviceUpdate,
		ResourceType: "device",
		ResourceID:   address,
		Metadata:     metadata,
	})

	updated, err := h.devices.FindByAddress(r.Context(), address)
	if err != nil {
		renderError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDeviceResponse(*updated))
}

// deleteDevice handles DELETE /api/devices/{address}. Deleting an address
// that is already gone is a 404, not success.
func (h *Handler) deleteDevice(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	if err := h.devices.Delete(r.Context(), address); err != nil {
		renderError(w, err)
		return
	}
	h.auditEntry(r, audit.Entry{
		Action:       audit.ActionDeviceDelete,
		ResourceType: "device",
		ResourceID:   address,
	})
	writeJSON(w, http.StatusOK, map[string]string{})
}

func decodeDevicePayload(w http.ResponseWriter, r *http.Request) (devicePayload, bool) {
	var payload devicePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body.")
		return devicePayload{}, false
	}
	return payload, true
}
