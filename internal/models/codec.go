package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"montevecchio/internal/clock"
)

// ErrMalformedDocument is returned when the stored document is not a JSON object.
var ErrMalformedDocument = errors.New("malformed group document")

// PartialDecodeError lists the fields that were missing or unreadable and
// were replaced by defaults. The decoded state is still usable.
type PartialDecodeError struct {
	Fields []string
}

func (e *PartialDecodeError) Error() string {
	return fmt.Sprintf("group document decoded with defaults for: %s", strings.Join(e.Fields, ", "))
}

// EncodeGroupState serialises the document. Map keys are sorted by
// encoding/json, so equal states encode to equal bytes.
func EncodeGroupState(s *GroupState) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil group state")
	}
	return json.Marshal(s)
}

type wireLaundry struct {
	ID        json.RawMessage `json:"id"`
	UserName  string          `json:"userName"`
	StartTime json.RawMessage `json:"startTime"`
	RackLabel string          `json:"rackLabel"`
}

type wireShower struct {
	ID          json.RawMessage `json:"id"`
	UserName    string          `json:"userName"`
	StartTime   json.RawMessage `json:"startTime"`
	HasConflict bool            `json:"hasConflict"`
}

type wireCleaning struct {
	UserName       string          `json:"userName"`
	PhotoReference string          `json:"photoReference"`
	Timestamp      json.RawMessage `json:"timestamp"`
}

type wireItem struct {
	ID      json.RawMessage `json:"id"`
	Label   string          `json:"label"`
	Checked bool            `json:"checked"`
}

type wireMessage struct {
	Text     string          `json:"text"`
	Author   string          `json:"author"`
	PostedAt json.RawMessage `json:"postedAt"`
	Date     json.RawMessage `json:"date"`
}

// DecodeGroupState merges a stored document over the defaults field by
// field. Instants without an offset are read in loc. A *PartialDecodeError
// is returned alongside a usable state when some fields were defaulted.
func DecodeGroupState(data []byte, loc *time.Location) (*GroupState, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return nil, ErrMalformedDocument
	}

	d := decoder{top: top, loc: loc}
	s := NewGroupState("")

	if raw, ok := d.field("name"); ok {
		var name string
		if err := json.Unmarshal(raw, &name); err != nil || strings.TrimSpace(name) == "" {
			d.bad("name")
		} else {
			s.Name = name
		}
	}

	if raw, ok := d.field("laundryReservations"); ok {
		s.LaundryReservations = decodeList(&d, "laundryReservations", raw, func(w wireLaundry) (LaundryReservation, bool) {
			return LaundryReservation{
				ID:        decodeID(w.ID),
				UserName:  w.UserName,
				StartTime: d.instant(w.StartTime),
				RackLabel: RackLabel(w.RackLabel),
			}, true
		})
	}

	if raw, ok := d.field("showerBookings"); ok {
		s.ShowerBookings = decodeList(&d, "showerBookings", raw, func(w wireShower) (ShowerBooking, bool) {
			return ShowerBooking{
				ID:          decodeID(w.ID),
				UserName:    w.UserName,
				StartTime:   d.instant(w.StartTime),
				HasConflict: w.HasConflict,
			}, true
		})
	}

	if raw, ok := d.field("shoppingChecklist"); ok {
		items := decodeList(&d, "shoppingChecklist", raw, func(w wireItem) (ShoppingItem, bool) {
			if strings.TrimSpace(w.Label) == "" {
				return ShoppingItem{}, false
			}
			return ShoppingItem{ID: decodeID(w.ID), Label: w.Label, Checked: w.Checked}, true
		})
		if len(items) > 0 {
			s.ShoppingChecklist = items
		}
	}

	if raw, ok := d.field("board"); ok {
		s.Board = decodeList(&d, "board", raw, func(w wireMessage) (BoardMessage, bool) {
			if strings.TrimSpace(w.Text) == "" {
				return BoardMessage{}, false
			}
			posted := d.instant(w.PostedAt)
			if posted.IsZero() {
				posted = d.instant(w.Date)
			}
			return BoardMessage{Text: w.Text, Author: w.Author, PostedAt: posted}, true
		})
	}

	if raw, ok := d.field("cleaningAssignments"); ok {
		var zones map[string]json.RawMessage
		if err := json.Unmarshal(raw, &zones); err != nil {
			d.bad("cleaningAssignments")
		} else {
			for _, z := range Zones {
				zr, present := zones[string(z)]
				if !present || isNull(zr) {
					continue
				}
				var w wireCleaning
				if err := json.Unmarshal(zr, &w); err != nil || w.UserName == "" {
					d.bad("cleaningAssignments." + string(z))
					continue
				}
				s.CleaningAssignments[z] = &CleaningAssignment{
					UserName:       w.UserName,
					PhotoReference: w.PhotoReference,
					Timestamp:      d.instant(w.Timestamp),
				}
			}
		}
	}

	if raw, ok := d.field("cleaningHistory"); ok {
		var zones map[string]json.RawMessage
		if err := json.Unmarshal(raw, &zones); err != nil {
			d.bad("cleaningHistory")
		} else {
			for _, z := range Zones {
				zr, present := zones[string(z)]
				if !present || isNull(zr) {
					continue
				}
				s.CleaningHistory[z] = decodeList(&d, "cleaningHistory."+string(z), zr, func(w wireCleaning) (CleaningHistoryEntry, bool) {
					if w.UserName == "" {
						return CleaningHistoryEntry{}, false
					}
					return CleaningHistoryEntry{
						UserName:       w.UserName,
						PhotoReference: w.PhotoReference,
						Timestamp:      d.instant(w.Timestamp),
					}, true
				})
			}
		}
	}

	if raw, ok := d.top["cleaningWeekKey"]; ok && !isNull(raw) {
		var key string
		if err := json.Unmarshal(raw, &key); err != nil {
			d.bad("cleaningWeekKey")
		} else {
			s.CleaningWeekKey = key
		}
	}

	if len(d.defaulted) > 0 {
		sort.Strings(d.defaulted)
		return s, &PartialDecodeError{Fields: d.defaulted}
	}
	return s, nil
}

type decoder struct {
	top       map[string]json.RawMessage
	loc       *time.Location
	defaulted []string
}

// field returns the raw value of a top level key. Missing and null keys are
// recorded as defaulted.
func (d *decoder) field(name string) (json.RawMessage, bool) {
	raw, ok := d.top[name]
	if !ok || isNull(raw) {
		d.bad(name)
		return nil, false
	}
	return raw, true
}

func (d *decoder) bad(name string) {
	d.defaulted = append(d.defaulted, name)
}

// instant accepts an ISO string or a millisecond epoch number. Anything else
// yields the zero time.
func (d *decoder) instant(raw json.RawMessage) time.Time {
	if len(raw) == 0 || isNull(raw) {
		return time.Time{}
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		t, err := clock.ParseInstant(str, d.loc)
		if err != nil {
			return time.Time{}
		}
		return t
	}
	var ms float64
	if err := json.Unmarshal(raw, &ms); err == nil && ms > 0 {
		return time.UnixMilli(int64(ms)).UTC()
	}
	return time.Time{}
}

func decodeList[W any, T any](d *decoder, name string, raw json.RawMessage, convert func(W) (T, bool)) []T {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		d.bad(name)
		return []T{}
	}
	out := make([]T, 0, len(elems))
	skipped := false
	for _, e := range elems {
		var w W
		if err := json.Unmarshal(e, &w); err != nil {
			skipped = true
			continue
		}
		v, ok := convert(w)
		if !ok {
			skipped = true
			continue
		}
		out = append(out, v)
	}
	if skipped {
		d.bad(name + "[]")
	}
	return out
}

// decodeID accepts both string and numeric identifiers.
func decodeID(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if i, err := n.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		return n.String()
	}
	return ""
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
