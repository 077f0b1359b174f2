package models

import (
	"fmt"
	"time"
)

const (
	// LaundryWindow is how long a laundry reservation holds its drying rack.
	LaundryWindow = 48 * time.Hour
	// ShowerWindow is the length of a shower slot.
	ShowerWindow = 90 * time.Minute
)

// DefaultGroupName is used when the configuration does not name the household.
const DefaultGroupName = "Corso Montevecchio 66"

// RackLabel names one of the two drying racks.
type RackLabel string

const (
	Rack1 RackLabel = "Rack 1"
	Rack2 RackLabel = "Rack 2"
)

// Racks lists the racks in allocation order.
var Racks = []RackLabel{Rack1, Rack2}

// Zone is a household cleaning area.
type Zone string

const (
	ZoneBathroomSmall Zone = "bathroom-small"
	ZoneBathroomLarge Zone = "bathroom-large"
	ZoneLivingRoom    Zone = "living-room"
	ZoneKitchen       Zone = "kitchen"
)

// Zones lists every cleaning zone in display order.
var Zones = []Zone{ZoneBathroomSmall, ZoneBathroomLarge, ZoneLivingRoom, ZoneKitchen}

// Valid reports whether z is one of the fixed zones.
func (z Zone) Valid() bool {
	for _, known := range Zones {
		if z == known {
			return true
		}
	}
	return false
}

// LaundryReservation holds a drying rack for 48 hours from StartTime.
type LaundryReservation struct {
	ID        string    `json:"id"`
	UserName  string    `json:"userName"`
	StartTime time.Time `json:"startTime"`
	RackLabel RackLabel `json:"rackLabel"`
}

// EndTime returns the instant the rack becomes free again.
func (r LaundryReservation) EndTime() time.Time {
	return r.StartTime.Add(LaundryWindow)
}

// ShowerBooking reserves a 90 minute shower slot.
type ShowerBooking struct {
	ID          string    `json:"id"`
	UserName    string    `json:"userName"`
	StartTime   time.Time `json:"startTime"`
	HasConflict bool      `json:"hasConflict"`
}

// EndTime returns the end of the slot.
func (b ShowerBooking) EndTime() time.Time {
	return b.StartTime.Add(ShowerWindow)
}

// CleaningAssignment records who took a zone for the current week.
type CleaningAssignment struct {
	UserName       string    `json:"userName"`
	PhotoReference string    `json:"photoReference,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// CleaningHistoryEntry is an archived assignment from a previous week.
type CleaningHistoryEntry struct {
	UserName       string    `json:"userName"`
	PhotoReference string    `json:"photoReference,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// ShoppingItem is one line of the shared shopping checklist.
type ShoppingItem struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Checked bool   `json:"checked"`
}

// BoardMessage is a note left on the household blackboard.
type BoardMessage struct {
	Text     string    `json:"text"`
	Author   string    `json:"author"`
	PostedAt time.Time `json:"postedAt"`
}

// GroupState is the single shared document for the household.
type GroupState struct {
	Name                string                          `json:"name"`
	LaundryReservations []LaundryReservation            `json:"laundryReservations"`
	ShowerBookings      []ShowerBooking                 `json:"showerBookings"`
	ShoppingChecklist   []ShoppingItem                  `json:"shoppingChecklist"`
	Board               []BoardMessage                  `json:"board"`
	CleaningAssignments map[Zone]*CleaningAssignment    `json:"cleaningAssignments"`
	CleaningHistory     map[Zone][]CleaningHistoryEntry `json:"cleaningHistory"`
	CleaningWeekKey     string                          `json:"cleaningWeekKey,omitempty"`

	// Version is owned by the document store and never serialised.
	Version int64 `json:"-"`
}

// DefaultShoppingItems seeds an empty checklist.
var DefaultShoppingItems = []string{
	"Salt", "Sugar", "Tissues", "Paper towels", "Toilet paper", "Water", "Degreaser",
	"Dish sponges", "Dish soap", "Bathroom sanitiser", "Floor cleaner", "Cling film",
	"Aluminium foil", "Baking paper", "Compost bags", "Hand soap", "Plastic bags",
	"Surface cleaner", "Bleach",
}

// NewGroupState returns a household document with every default in place.
func NewGroupState(name string) *GroupState {
	if name == "" {
		name = DefaultGroupName
	}
	s := &GroupState{
		Name:                name,
		LaundryReservations: []LaundryReservation{},
		ShowerBookings:      []ShowerBooking{},
		ShoppingChecklist:   defaultChecklist(),
		Board:               []BoardMessage{},
		CleaningAssignments: make(map[Zone]*CleaningAssignment, len(Zones)),
		CleaningHistory:     make(map[Zone][]CleaningHistoryEntry, len(Zones)),
	}
	for _, z := range Zones {
		s.CleaningAssignments[z] = nil
		s.CleaningHistory[z] = []CleaningHistoryEntry{}
	}
	return s
}

func defaultChecklist() []ShoppingItem {
	items := make([]ShoppingItem, len(DefaultShoppingItems))
	for i, label := range DefaultShoppingItems {
		items[i] = ShoppingItem{ID: fmt.Sprintf("pre-%d", i), Label: label}
	}
	return items
}

// Clone returns a deep copy of the document.
func (s *GroupState) Clone() *GroupState {
	if s == nil {
		return nil
	}
	c := *s
	c.LaundryReservations = append([]LaundryReservation{}, s.LaundryReservations...)
	c.ShowerBookings = append([]ShowerBooking{}, s.ShowerBookings...)
	c.ShoppingChecklist = append([]ShoppingItem{}, s.ShoppingChecklist...)
	c.Board = append([]BoardMessage{}, s.Board...)
	c.CleaningAssignments = make(map[Zone]*CleaningAssignment, len(s.CleaningAssignments))
	for z, a := range s.CleaningAssignments {
		if a == nil {
			c.CleaningAssignments[z] = nil
			continue
		}
		cp := *a
		c.CleaningAssignments[z] = &cp
	}
	c.CleaningHistory = make(map[Zone][]CleaningHistoryEntry, len(s.CleaningHistory))
	for z, h := range s.CleaningHistory {
		c.CleaningHistory[z] = append([]CleaningHistoryEntry{}, h...)
	}
	return &c
}
