package chat

import (
	"time"

	"github.com/mmynk/studygroup/internal/models"
)

// DayGroup is a run of messages sent on the same calendar day.
type DayGroup struct {
	Label    string            `json:"label"`
	Date     string            `json:"date"`
	Messages []*models.Message `json:"messages"`
}

// GroupByDay splits timestamp-ordered messages into day buckets labelled
// "Today", "Yesterday" or the full date, using now's location for
// calendar days.
func GroupByDay(messages []*models.Message, now time.Time) []DayGroup {
	loc := now.Location()
	today := dayStart(now)
	yesterday := today.AddDate(0, 0, -1)

	var groups []DayGroup
	for _, m := range messages {
		day := dayStart(m.Timestamp.In(loc))
		key := day.Format(models.EventDateLayout)
		if n := len(groups); n > 0 && groups[n-1].Date == key {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}

		var label string
		switch {
		case day.Equal(today):
			label = "Today"
		case day.Equal(yesterday):
			label = "Yesterday"
		default:
			label = day.Format("Monday, January 2, 2006")
		}
		groups = append(groups, DayGroup{Label: label, Date: key, Messages: []*models.Message{m}})
	}
	return groups
}

func dayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
