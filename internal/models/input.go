package models

// GroupInput holds the editable group settings.
type GroupInput struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	MeetingDays string   `json:"meetingDays,omitempty" validate:"max=100"`
	MeetingTime string   `json:"meetingTime,omitempty" validate:"max=100"`
	Topics      []string `json:"topics,omitempty" validate:"max=20,dive,required,max=50"`
	Privacy     string   `json:"privacy,omitempty" validate:"omitempty,oneof=public private"`
}

// EventInput is the user-supplied part of an Event.
type EventInput struct {
	Title string `json:"title" validate:"required,max=200"`
	Date  string `json:"date" validate:"required,datetime=2006-01-02"`
	Time  string `json:"time" validate:"required,datetime=15:04"`
}

// ResourceInput is the user-supplied part of a link Resource.
type ResourceInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	URL      string `json:"url" validate:"required,url"`
	MimeType string `json:"type" validate:"max=255"`
}

// FileInput is an uploaded file: a resource or a chat attachment.
type FileInput struct {
	Name     string `json:"name" validate:"required,max=255"`
	MimeType string `json:"type" validate:"max=255"`
	Data     []byte `json:"data"`
}
