package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"montevecchio/internal/booking"
	"montevecchio/internal/service"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{"error": message, "code": code})
}

// writeServiceError maps rejections to 4xx responses carrying their details.
// Anything else is logged and reported as a 500.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	code := booking.RejectionCode(err)
	if code == "" {
		if errors.Is(err, service.ErrTooManyConflicts) {
			writeError(w, http.StatusConflict, "version_conflict", "the household was updated concurrently, please retry")
			return
		}
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		return
	}

	body := map[string]interface{}{"error": err.Error(), "code": code}
	status := http.StatusBadRequest

	var noRack *booking.NoRackAvailableError
	var claimed *booking.ZoneClaimedError
	var showerConflict *booking.ShowerConflictError
	switch {
	case errors.As(err, &noRack):
		status = http.StatusConflict
		body["earliestFreeAt"] = noRack.EarliestFreeAt
		body["blockingUserName"] = noRack.BlockingUserName
	case errors.As(err, &showerConflict):
		status = http.StatusConflict
		body["conflicts"] = showerConflict.Conflicts
	case errors.As(err, &claimed):
		status = http.StatusConflict
		body["holder"] = claimed.Holder
	case errors.Is(err, booking.ErrConflictRequiresConfirmation),
		errors.Is(err, booking.ErrReleaseRequiresConfirmation):
		status = http.StatusConflict
	case errors.Is(err, booking.ErrItemNotFound):
		status = http.StatusNotFound
	}
	writeJSON(w, status, body)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return false
	}
	return true
}
