package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"montevecchio/internal/booking"
	"montevecchio/internal/clock"
	"montevecchio/internal/events"
	"montevecchio/internal/metrics"
	"montevecchio/internal/models"
	"montevecchio/internal/repository"
)

// ErrTooManyConflicts is returned when every save attempt lost a version race.
var ErrTooManyConflicts = errors.New("document kept changing, giving up")

// Publisher receives state change events after a successful save.
type Publisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type Options struct {
	GroupName      string
	Location       *time.Location
	MaxSaveRetries int
	// HistoryLimit caps each zone's cleaning history; 0 keeps everything.
	HistoryLimit int
}

// HouseholdService runs every household operation as a read-modify-write of
// the shared document: load, sweep, apply, recompute conflicts, save with a
// version check.
type HouseholdService struct {
	store  repository.DocumentStore
	bus    Publisher
	clock  clock.Clock
	opts   Options
	logger zerolog.Logger

	mu sync.Mutex
}

func NewHouseholdService(store repository.DocumentStore, bus Publisher, clk clock.Clock, opts Options, logger *zerolog.Logger) *HouseholdService {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.MaxSaveRetries <= 0 {
		opts.MaxSaveRetries = 5
	}
	return &HouseholdService{
		store:  store,
		bus:    bus,
		clock:  clk,
		opts:   opts,
		logger: logger.With().Str("component", "household_service").Logger(),
	}
}

// Location is the household time zone used for week keys and local times.
func (s *HouseholdService) Location() *time.Location {
	return s.opts.Location
}

func (s *HouseholdService) now() time.Time {
	return s.clock.Now().In(s.opts.Location)
}

// Init sweeps and rotates the document at startup.
func (s *HouseholdService) Init(ctx context.Context) (*models.GroupState, error) {
	rotated := false
	state, err := s.mutate(ctx, "init", func(state *models.GroupState, now time.Time) error {
		rotated = booking.RotateIfNewWeek(state, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if rotated {
		s.afterRotation(state)
	}
	s.logger.Info().
		Str("group", state.Name).
		Int64("version", state.Version).
		Str("week", state.CleaningWeekKey).
		Msg("Household state ready")
	return state, nil
}

// State returns the swept document.
func (s *HouseholdService) State(ctx context.Context) (*models.GroupState, error) {
	return s.mutate(ctx, "state", func(*models.GroupState, time.Time) error { return nil })
}

// Cleaning returns the document after rotating the cleaning week if needed.
func (s *HouseholdService) Cleaning(ctx context.Context) (*models.GroupState, error) {
	state, _, err := s.RotateCleaning(ctx)
	return state, err
}

// RotateCleaning archives last week's assignments when the week has changed.
func (s *HouseholdService) RotateCleaning(ctx context.Context) (*models.GroupState, bool, error) {
	rotated := false
	state, err := s.mutate(ctx, "rotate_cleaning", func(state *models.GroupState, now time.Time) error {
		rotated = booking.RotateIfNewWeek(state, now)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if rotated {
		s.afterRotation(state)
	}
	return state, rotated, nil
}

func (s *HouseholdService) afterRotation(state *models.GroupState) {
	metrics.IncCleaningRotation()
	s.logger.Info().Str("week", state.CleaningWeekKey).Msg("Cleaning week rotated")
	s.publish(events.CleaningRotated, map[string]interface{}{
		"weekKey": state.CleaningWeekKey,
		"history": state.CleaningHistory,
	})
}

func (s *HouseholdService) BookLaundry(ctx context.Context, userName string, start time.Time) (*models.LaundryReservation, error) {
	var created *models.LaundryReservation
	_, err := s.mutate(ctx, "book_laundry", func(state *models.GroupState, now time.Time) error {
		var err error
		created, err = booking.RequestLaundryBooking(state, userName, start, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncBookingCreated("laundry")
	s.logger.Info().Str("user", created.UserName).Str("rack", string(created.RackLabel)).Msg("Laundry reservation created")
	s.publish(events.LaundryBooked, created)
	return created, nil
}

func (s *HouseholdService) BookShower(ctx context.Context, userName string, start time.Time, acceptConflict bool) (*models.ShowerBooking, error) {
	var created *models.ShowerBooking
	_, err := s.mutate(ctx, "book_shower", func(state *models.GroupState, now time.Time) error {
		var err error
		created, err = booking.RequestShowerBooking(state, userName, start, now, acceptConflict)
		return err
	})
	if err != nil {
		return nil, err
	}
	metrics.IncBookingCreated("shower")
	s.logger.Info().Str("user", created.UserName).Bool("conflict", created.HasConflict).Msg("Shower booking created")
	s.publish(events.ShowerBooked, created)
	return created, nil
}

// ClaimZone rotates the cleaning week first, then toggles the zone.
func (s *HouseholdService) ClaimZone(ctx context.Context, zone models.Zone, userName, photoRef string, confirmed bool) (booking.ClaimResult, error) {
	var (
		result  booking.ClaimResult
		rotated bool
	)
	state, err := s.mutate(ctx, "claim_zone", func(state *models.GroupState, now time.Time) error {
		rotated = booking.RotateIfNewWeek(state, now)
		var err error
		result, err = booking.ClaimZone(state, zone, userName, photoRef, now, confirmed)
		return err
	})
	if err != nil {
		return booking.ClaimResult{}, err
	}
	if rotated {
		s.afterRotation(state)
	}

	payload := map[string]interface{}{"zone": zone, "userName": userName}
	if result.Released {
		s.publish(events.CleaningReleased, payload)
		return result, nil
	}
	payload["assignment"] = result.Assignment
	if result.Previous != "" {
		payload["previous"] = result.Previous
	}
	metrics.IncBookingCreated("cleaning")
	s.publish(events.CleaningClaimed, payload)
	return result, nil
}

func (s *HouseholdService) AddShoppingItem(ctx context.Context, label string) (*models.ShoppingItem, error) {
	var item *models.ShoppingItem
	_, err := s.mutate(ctx, "add_shopping_item", func(state *models.GroupState, _ time.Time) error {
		var err error
		item, err = booking.AddShoppingItem(state, label)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(events.ShoppingAdded, item)
	return item, nil
}

func (s *HouseholdService) SetShoppingItemChecked(ctx context.Context, id string, checked bool) (*models.ShoppingItem, error) {
	var item *models.ShoppingItem
	_, err := s.mutate(ctx, "check_shopping_item", func(state *models.GroupState, _ time.Time) error {
		var err error
		item, err = booking.SetShoppingItemChecked(state, id, checked)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(events.ShoppingUpdated, item)
	return item, nil
}

func (s *HouseholdService) RemoveShoppingItem(ctx context.Context, id string) (*models.ShoppingItem, error) {
	var item *models.ShoppingItem
	_, err := s.mutate(ctx, "remove_shopping_item", func(state *models.GroupState, _ time.Time) error {
		var err error
		item, err = booking.RemoveShoppingItem(state, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(events.ShoppingRemoved, item)
	return item, nil
}

func (s *HouseholdService) PostBoardMessage(ctx context.Context, author, text string) (*models.BoardMessage, error) {
	var msg *models.BoardMessage
	_, err := s.mutate(ctx, "post_board_message", func(state *models.GroupState, now time.Time) error {
		var err error
		msg, err = booking.PostBoardMessage(state, author, text, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(events.BoardPosted, msg)
	return msg, nil
}

// mutate performs one read-modify-write cycle, retrying the whole cycle when
// another writer saved in between. Nothing is kept in memory when the save
// fails.
func (s *HouseholdService) mutate(ctx context.Context, op string, fn func(state *models.GroupState, now time.Time) error) (*models.GroupState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for attempt := 1; ; attempt++ {
		state, version, original, err := s.load(ctx)
		if err != nil {
			return nil, err
		}

		now := s.now()
		booking.Sweep(state, now)
		if err := fn(state, now); err != nil {
			if code := booking.RejectionCode(err); code != "" {
				metrics.IncRejection(code)
				s.logger.Debug().Str("op", op).Str("code", code).Err(err).Msg("Request rejected")
			}
			return nil, err
		}
		state.ShowerBookings = booking.RecomputeConflicts(state.ShowerBookings)
		booking.TrimHistory(state, s.opts.HistoryLimit)

		body, err := models.EncodeGroupState(state)
		if err != nil {
			return nil, fmt.Errorf("%s: encode: %w", op, err)
		}
		if bytes.Equal(body, original) {
			state.Version = version
			return state, nil
		}

		newVersion, err := s.store.Save(ctx, body, version)
		if errors.Is(err, repository.ErrVersionConflict) {
			metrics.IncStoreConflict()
			if attempt >= s.opts.MaxSaveRetries {
				s.logger.Error().Str("op", op).Int("attempts", attempt).Msg("Giving up after repeated version conflicts")
				return nil, fmt.Errorf("%s: %w", op, ErrTooManyConflicts)
			}
			s.logger.Debug().Str("op", op).Int("attempt", attempt).Msg("Version conflict, retrying")
			continue
		}
		if err != nil {
			metrics.IncStoreFailure()
			s.logger.Error().Err(err).Str("op", op).Msg("Failed to save household state")
			return nil, fmt.Errorf("%s: save: %w", op, err)
		}
		state.Version = newVersion
		return state, nil
	}
}

// load returns the decoded document, its version and the stored bytes. A
// missing or unreadable document yields the defaults.
func (s *HouseholdService) load(ctx context.Context) (*models.GroupState, int64, []byte, error) {
	doc, err := s.store.Load(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return models.NewGroupState(s.opts.GroupName), 0, nil, nil
	}
	if err != nil {
		metrics.IncStoreFailure()
		s.logger.Error().Err(err).Msg("Failed to load household state")
		return nil, 0, nil, fmt.Errorf("load: %w", err)
	}

	state, err := models.DecodeGroupState(doc.Body, s.opts.Location)
	var partial *models.PartialDecodeError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		s.logger.Warn().Strs("fields", partial.Fields).Msg("Household state merged with defaults")
	default:
		s.logger.Error().Err(err).Int64("version", doc.Version).Msg("Stored household state unreadable, starting from defaults")
		state = models.NewGroupState(s.opts.GroupName)
	}
	state.Version = doc.Version
	return state, doc.Version, doc.Body, nil
}

func (s *HouseholdService) publish(eventType string, payload interface{}) {
	if s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(eventType, payload); err != nil {
		s.logger.Warn().Err(err).Str("type", eventType).Msg("Failed to publish event")
	}
}
