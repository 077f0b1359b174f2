package api

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"montevecchio/internal/booking"
	"montevecchio/internal/clock"
	"montevecchio/internal/models"
	"montevecchio/internal/photos"
	"montevecchio/internal/report"
)

const defaultShowerLimit = 5

type bookingRequest struct {
	UserName       string `json:"userName"`
	StartTime      string `json:"startTime"`
	AcceptConflict bool   `json:"acceptConflict,omitempty"`
}

type claimRequest struct {
	UserName       string `json:"userName"`
	PhotoReference string `json:"photoReference,omitempty"`
	Confirm        bool   `json:"confirm,omitempty"`
}

type shoppingRequest struct {
	Label string `json:"label"`
}

type checkRequest struct {
	Checked bool `json:"checked"`
}

type boardRequest struct {
	Author string `json:"author"`
	Text   string `json:"text"`
}

type uploadRequest struct {
	UserName    string `json:"userName"`
	ContentType string `json:"contentType"`
}

type cleaningResponse struct {
	WeekKey     string                                        `json:"cleaningWeekKey"`
	Assignments map[models.Zone]*models.CleaningAssignment    `json:"cleaningAssignments"`
	History     map[models.Zone][]models.CleaningHistoryEntry `json:"cleaningHistory"`
	Rotated     bool                                          `json:"rotated,omitempty"`
}

type boardResponse struct {
	Latest   *models.BoardMessage  `json:"latest"`
	Messages []models.BoardMessage `json:"messages"`
}

func (s *Server) parseStart(raw string) (time.Time, error) {
	t, err := clock.ParseInstant(raw, s.svc.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", booking.ErrInvalidStartTime, err)
	}
	return t, nil
}

// GET /api/v1/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.State(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// GET /api/v1/laundry
func (s *Server) handleListLaundry(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.State(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reservations": state.LaundryReservations,
		"racks":        models.Racks,
	})
}

// POST /api/v1/laundry
func (s *Server) handleBookLaundry(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := s.parseStart(req.StartTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	res, err := s.svc.BookLaundry(r.Context(), req.UserName, start)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// GET /api/v1/showers?limit=5
func (s *Server) handleListShowers(w http.ResponseWriter, r *http.Request) {
	limit := defaultShowerLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	state, err := s.svc.State(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": booking.Upcoming(state.ShowerBookings, limit),
		"total":    len(state.ShowerBookings),
	})
}

// POST /api/v1/showers
func (s *Server) handleBookShower(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	start, err := s.parseStart(req.StartTime)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	b, err := s.svc.BookShower(r.Context(), req.UserName, start, req.AcceptConflict)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func cleaningView(state *models.GroupState, rotated bool) cleaningResponse {
	return cleaningResponse{
		WeekKey:     state.CleaningWeekKey,
		Assignments: state.CleaningAssignments,
		History:     state.CleaningHistory,
		Rotated:     rotated,
	}
}

// GET /api/v1/cleaning
func (s *Server) handleCleaning(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Cleaning(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleaningView(state, false))
}

// POST /api/v1/cleaning/rotate
func (s *Server) handleRotateCleaning(w http.ResponseWriter, r *http.Request) {
	state, rotated, err := s.svc.RotateCleaning(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cleaningView(state, rotated))
}

// POST /api/v1/cleaning/{zone}
func (s *Server) handleClaimZone(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if !decodeBody(w, r, &req) {
		return
	}
	zone := models.Zone(chi.URLParam(r, "zone"))
	res, err := s.svc.ClaimZone(r.Context(), zone, req.UserName, req.PhotoReference, req.Confirm)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	body := map[string]interface{}{
		"zone":       zone,
		"assignment": res.Assignment,
		"released":   res.Released,
	}
	if res.Previous != "" {
		body["previous"] = res.Previous
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /api/v1/cleaning/report.xlsx
func (s *Server) handleCleaningReport(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.Cleaning(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCleaningHistory(&buf, state, s.svc.Location()); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="cleaning-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// GET /api/v1/shopping
func (s *Server) handleListShopping(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.State(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"items": state.ShoppingChecklist})
}

// POST /api/v1/shopping
func (s *Server) handleAddShopping(w http.ResponseWriter, r *http.Request) {
	var req shoppingRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.svc.AddShoppingItem(r.Context(), req.Label)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// PATCH /api/v1/shopping/{id}
func (s *Server) handleCheckShopping(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if !decodeBody(w, r, &req) {
		return
	}
	item, err := s.svc.SetShoppingItemChecked(r.Context(), chi.URLParam(r, "id"), req.Checked)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DELETE /api/v1/shopping/{id}
func (s *Server) handleRemoveShopping(w http.ResponseWriter, r *http.Request) {
	if _, err := s.svc.RemoveShoppingItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/board
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	state, err := s.svc.State(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, boardResponse{
		Latest:   booking.LatestBoardMessage(state),
		Messages: state.Board,
	})
}

// POST /api/v1/board
func (s *Server) handlePostBoard(w http.ResponseWriter, r *http.Request) {
	var req boardRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg, err := s.svc.PostBoardMessage(r.Context(), req.Author, req.Text)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

// POST /api/v1/photos/upload-url
func (s *Server) handlePhotoUploadURL(w http.ResponseWriter, r *http.Request) {
	if s.opts.Photos == nil {
		writeError(w, http.StatusServiceUnavailable, "photos_disabled", "photo uploads are not configured")
		return
	}
	var req uploadRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.UserName == "" {
		s.writeServiceError(w, r, booking.ErrEmptyUserName)
		return
	}
	up, err := s.opts.Photos.PresignUpload(r.Context(), req.UserName, req.ContentType)
	if errors.Is(err, photos.ErrUnsupportedContentType) {
		writeError(w, http.StatusBadRequest, "unsupported_content_type", err.Error())
		return
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}
