package models

import (
	"sort"
	"time"
)

// Group is a study group document.
//
// Invariant: MemberCount == len(Users) after every committed mutation.
// A group whose last member leaves is deleted.
type Group struct {
	// ID is the unique identifier for the group (UUID format).
	ID string `json:"id"`

	// Name is the display name of the group (e.g., "Calculus II").
	Name string `json:"name"`

	Description string `json:"description"`

	// Owner is the user id of the creator. Only the owner may change
	// group settings.
	Owner string `json:"owner"`

	// Users is the list of member user ids.
	Users []string `json:"users"`

	// MemberCount mirrors len(Users); it is maintained with atomic
	// increments alongside the array transforms.
	MemberCount int `json:"memberCount"`

	Resources []Resource `json:"resources"`
	Events    []Event    `json:"events"`

	MeetingDays string   `json:"meetingDays,omitempty"`
	MeetingTime string   `json:"meetingTime,omitempty"`
	Topics      []string `json:"topics,omitempty"`

	// Privacy is "public" or "private".
	Privacy string `json:"privacy,omitempty"`

	// GroupImage is the retrieval URL of the group picture, if any.
	GroupImage string `json:"groupImage,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// HasMember reports whether uid is in Users.
func (g *Group) HasMember(uid string) bool {
	for _, u := range g.Users {
		if u == uid {
			return true
		}
	}
	return false
}

// Resource is a shared file reference.
type Resource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`

	// MimeType is the content type of the uploaded file.
	MimeType string `json:"type"`

	// AddedBy is the user id of the uploader; only they may delete it.
	AddedBy     string    `json:"addedBy"`
	AddedByName string    `json:"addedByName"`
	AddedAt     time.Time `json:"addedAt"`
}

// ItemID returns the resource id.
func (r Resource) ItemID() string { return r.ID }

const (
	// EventDateLayout is the layout of Event.Date.
	EventDateLayout = "2006-01-02"
	// EventTimeLayout is the layout of Event.Time.
	EventTimeLayout = "15:04"
)

// Event is a scheduled group event. Date and Time are wall-clock values
// interpreted in the service's configured location.
type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	CreatedBy     string    `json:"createdBy"`
	CreatedByName string    `json:"createdByName"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ItemID returns the event id.
func (e Event) ItemID() string { return e.ID }

// StartsAt returns the event's date and time in loc.
func (e Event) StartsAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(EventDateLayout+" "+EventTimeLayout, e.Date+" "+e.Time, loc)
}

// SortEvents orders events by (date, time) ascending. Unparseable
// entries sort last, in their original relative order.
func SortEvents(events []Event, loc *time.Location) {
	sort.SliceStable(events, func(i, j int) bool {
		a, errA := events[i].StartsAt(loc)
		b, errB := events[j].StartsAt(loc)
		switch {
		case errA != nil:
			return false
		case errB != nil:
			return true
		}
		return a.Before(b)
	})
}
