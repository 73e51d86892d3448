package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"barscan/internal/camera"
	"barscan/internal/export"
	"barscan/internal/logging"
	"barscan/internal/records"
	"barscan/internal/session"
)

const (
	defaultUpdateLimit = 100
	maxUpdateWait      = 25 * time.Second
)

func (s *Server) handleSession(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.session.Snapshot()))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.session.Snapshot()))
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.session.Stop()
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.session.Snapshot()))
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Refresh(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.session.Snapshot()))
}

func (s *Server) handleSelectDevice(w http.ResponseWriter, r *http.Request) {
	var req SelectDeviceRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body", "")
		return
	}
	if strings.TrimSpace(req.DeviceID) == "" {
		s.writeError(w, http.StatusBadRequest, "deviceId is required", "")
		return
	}
	if err := s.session.SelectDevice(req.DeviceID); err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FromSnapshot(s.session.Snapshot()))
}

func (s *Server) handleDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.session.Snapshot()
	selected := ""
	if snap.Device != nil {
		selected = snap.Device.ID
	}
	s.writeJSON(w, http.StatusOK, DeviceListResponse{Devices: FromDevices(snap.Devices, selected)})
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := s.session.Records(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, RecordListResponse{Records: FromRecords(recs)})
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Clear(r.Context()); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.session.Remove(r.Context(), id); err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleExportText(w http.ResponseWriter, r *http.Request) {
	text, err := s.session.ExportText(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

func (s *Server) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	recs, err := s.session.Records(r.Context())
	if err != nil {
		s.writeSessionError(w, err)
		return
	}
	data, err := export.XLSX(recs)
	if err != nil {
		s.logger.Error("xlsx export failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="scans.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	since, _ := strconv.ParseUint(query.Get("since"), 10, 64)
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultUpdateLimit
	}
	wait := query.Get("wait") == "1" || strings.EqualFold(query.Get("wait"), "true")

	ctx := r.Context()
	if wait {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, maxUpdateWait)
		defer cancel()
	}
	raw, next, err := s.updates.Fetch(ctx, since, limit, wait)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		s.writeError(w, http.StatusInternalServerError, err.Error(), "")
		return
	}
	updates := make([]Update, 0, len(raw))
	for _, u := range raw {
		updates = append(updates, FromUpdate(u))
	}
	s.writeJSON(w, http.StatusOK, UpdatesResponse{Updates: updates, Next: next})
}

// writeSessionError maps session and camera errors to HTTP statuses.
func (s *Server) writeSessionError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, session.ErrBusy), errors.Is(err, session.ErrCancelled):
		status = http.StatusConflict
	case errors.Is(err, session.ErrUnknownDevice), errors.Is(err, records.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, session.ErrClosed):
		status = http.StatusServiceUnavailable
	case errors.Is(err, camera.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, camera.ErrNoDevicesFound), errors.Is(err, camera.ErrStream):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Warn("api request failed", logging.Error(err))
	}
	message := session.UserMessage(err)
	if errors.Is(err, records.ErrNotFound) {
		message = "That scan is no longer in the list."
	}
	s.writeError(w, status, err.Error(), message)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg, userMessage string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg, Message: userMessage})
}
