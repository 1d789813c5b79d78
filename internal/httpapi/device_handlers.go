package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"gorm.io/datatypes"

	"github.com/MeGustas-5427/powermoniter/internal/ingress"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	apperrors "github.com/MeGustas-5427/powermoniter/pkg/errors"
)

type createDeviceRequest struct {
	MAC            string          `json:"mac"`
	Name           string          `json:"name"`
	Location       string          `json:"location"`
	Description    string          `json:"description"`
	Status         *int            `json:"status"`
	CollectEnabled *bool           `json:"collect_enabled"`
	IngressType    int             `json:"ingress_type"`
	IngressConfig  json.RawMessage `json:"ingress_config"`
}

func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req createDeviceRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	mac, err := store.NormalizeMAC(req.MAC)
	if err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid mac address"))
		return
	}

	ingressType := store.IngressType(req.IngressType)
	if _, err := ingress.ParseConfig(ingressType, req.IngressConfig); err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeInvalidIngressConfig, err.Error()))
		return
	}

	userID := userFrom(r.Context())
	in := store.DeviceCreate{
		MAC:            mac,
		Name:           req.Name,
		Location:       req.Location,
		Description:    req.Description,
		Status:         store.DeviceEnabled,
		CollectEnabled: true,
		IngressType:    ingressType,
		IngressConfig:  datatypes.JSON(req.IngressConfig),
		UserID:         &userID,
	}
	if req.Status != nil {
		st := store.DeviceStatus(*req.Status)
		if !st.Valid() {
			writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "unknown device status"))
			return
		}
		in.Status = st
	}
	if req.CollectEnabled != nil {
		in.CollectEnabled = *req.CollectEnabled
	}

	dev, err := s.repo.CreateDevice(r.Context(), in)
	if errors.Is(err, store.ErrDeviceConflict) {
		writeError(w, apperrors.Conflict(apperrors.CodeDeviceConflict, "device with this mac already exists"))
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}

	s.applyAsync(dev)
	writeData(w, http.StatusCreated, dev)
}

type updateDeviceRequest struct {
	Name           *string         `json:"name"`
	Location       *string         `json:"location"`
	Description    *string         `json:"description"`
	Status         *int            `json:"status"`
	CollectEnabled *bool           `json:"collect_enabled"`
	IngressType    *int            `json:"ingress_type"`
	IngressConfig  json.RawMessage `json:"ingress_config"`
}

func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := store.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid mac address"))
		return
	}

	var req updateDeviceRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, err)
		return
	}

	existing, err := s.repo.GetDeviceByMAC(r.Context(), mac)
	if err != nil {
		writeError(w, err)
		return
	}
	if existing == nil {
		writeError(w, apperrors.NotFound(apperrors.CodeDeviceNotFound, "device not found"))
		return
	}

	// Validate the config the device would end up with, combining patched
	// and existing fields.
	effectiveType := existing.IngressType
	if req.IngressType != nil {
		effectiveType = store.IngressType(*req.IngressType)
	}
	effectiveConfig := []byte(existing.IngressConfig)
	if req.IngressConfig != nil {
		effectiveConfig = req.IngressConfig
	}
	if req.IngressType != nil || req.IngressConfig != nil {
		if _, err := ingress.ParseConfig(effectiveType, effectiveConfig); err != nil {
			writeError(w, apperrors.BadRequest(apperrors.CodeInvalidIngressConfig, err.Error()))
			return
		}
	}

	in := store.DeviceUpdate{
		Name:          req.Name,
		Location:      req.Location,
		Description:   req.Description,
		IngressConfig: datatypes.JSON(req.IngressConfig),
	}
	if req.Status != nil {
		st := store.DeviceStatus(*req.Status)
		if !st.Valid() {
			writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "unknown device status"))
			return
		}
		in.Status = &st
	}
	if req.CollectEnabled != nil {
		in.CollectEnabled = req.CollectEnabled
	}
	if req.IngressType != nil {
		it := store.IngressType(*req.IngressType)
		in.IngressType = &it
	}

	dev, err := s.repo.UpdateDevice(r.Context(), mac, in)
	if err != nil {
		writeError(w, err)
		return
	}

	s.applyAsync(dev)
	writeData(w, http.StatusOK, dev)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	mac, err := store.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid mac address"))
		return
	}
	dev, err := s.repo.GetDeviceByMAC(r.Context(), mac)
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, apperrors.NotFound(apperrors.CodeDeviceNotFound, "device not found"))
		return
	}
	writeData(w, http.StatusOK, dev)
}

func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var filter *store.DeviceStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		var st store.DeviceStatus
		switch raw {
		case "1", "enabled":
			st = store.DeviceEnabled
		case "0", "disabled":
			st = store.DeviceDisabled
		default:
			writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "unknown status filter"))
			return
		}
		filter = &st
	}
	devices, err := s.repo.ListDevices(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, devices)
}

type publishSettingsRequest struct {
	TimerEnable   bool `json:"timerEnable"`
	TimerInterval int  `json:"timerInterval"`
}

func (s *Server) handlePublishSettings(w http.ResponseWriter, r *http.Request) {
	mac, err := store.NormalizeMAC(chi.URLParam(r, "mac"))
	if err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid mac address"))
		return
	}
	dev, err := s.repo.GetDeviceByMAC(r.Context(), mac)
	if err != nil {
		writeError(w, err)
		return
	}
	if dev == nil {
		writeError(w, apperrors.NotFound(apperrors.CodeDeviceNotFound, "device not found"))
		return
	}

	var req publishSettingsRequest
	if err := parseBody(r, &req); err != nil {
		writeError(w, err)
		return
	}
	payload, _ := json.Marshal(req)

	err = s.publisher.PublishSettings(dev, payload)
	switch {
	case errors.Is(err, ingress.ErrPublishConfig):
		writeError(w, apperrors.BadRequest(apperrors.CodeInvalidMQTTConfig, err.Error()))
	case err != nil:
		writeError(w, apperrors.New(http.StatusServiceUnavailable, apperrors.CodeMQTTUnavailable, "mqtt broker unavailable"))
	default:
		writeData(w, http.StatusOK, map[string]string{"mac": dev.MAC, "published": "ok"})
	}
}

// applyAsync nudges the subscription manager after a registry write. The
// write has already committed, so reconciliation failures only get logged.
func (s *Server) applyAsync(dev *store.Device) {
	go func() {
		if err := s.reconciler.ApplyDevice(context.Background(), dev.ID); err != nil {
			slog.Error("apply after write failed", "mac", dev.MAC, "error", err)
		}
	}()
}
