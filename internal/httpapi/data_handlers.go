package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MeGustas-5427/powermoniter/internal/aggregate"
	"github.com/MeGustas-5427/powermoniter/internal/status"
	"github.com/MeGustas-5427/powermoniter/internal/store"
	apperrors "github.com/MeGustas-5427/powermoniter/pkg/errors"
)

func (s *Server) handleElectricity(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid device id"))
		return
	}
	window := aggregate.Window(r.URL.Query().Get("window"))
	if window == "" {
		window = aggregate.Window24h
	}

	series, err := s.engine.Query(r.Context(), deviceID, userFrom(r.Context()), window)
	switch {
	case errors.Is(err, aggregate.ErrInvalidWindow):
		writeError(w, apperrors.BadRequest(apperrors.CodeInvalidWindow, "window must be one of 24h, 7d, 30d"))
	case errors.Is(err, aggregate.ErrDeviceNotFound):
		writeError(w, apperrors.NotFound(apperrors.CodeDeviceNotFound, "device not found"))
	case err != nil:
		writeError(w, err)
	default:
		writeData(w, http.StatusOK, series)
	}
}

func (s *Server) handleDeviceStatuses(w http.ResponseWriter, r *http.Request) {
	filter := status.State(r.URL.Query().Get("state"))
	if filter == "all" {
		filter = ""
	}
	switch filter {
	case "", status.StateOnline, status.StateOffline, status.StateMaintenance:
	default:
		writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "state must be online, offline or maintenance"))
		return
	}

	page, err := s.status.List(r.Context(), filter, queryInt(r, "page", 1), queryInt(r, "size", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, page)
}

func (s *Server) handleDeadLetters(w http.ResponseWriter, r *http.Request) {
	mac := r.URL.Query().Get("mac")
	if mac != "" {
		normalized, err := store.NormalizeMAC(mac)
		if err != nil {
			writeError(w, apperrors.BadRequest(apperrors.CodeBadRequest, "invalid mac address"))
			return
		}
		mac = normalized
	}

	letters, err := s.repo.ListDeadLetters(r.Context(), mac, queryInt(r, "limit", 50), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, err)
		return
	}
	writeData(w, http.StatusOK, letters)
}
