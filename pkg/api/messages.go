package api

import (
	"github.com/mmynk/studygroup/internal/chat"
	"github.com/mmynk/studygroup/internal/models"
	"github.com/mmynk/studygroup/internal/session"
)

// Empty is the response of calls that return nothing.
type Empty struct{}

type CreateGroupRequest struct {
	Group models.GroupInput `json:"group"`
}

type GroupResponse struct {
	Group *models.Group `json:"group"`
}

type GroupRequest struct {
	GroupID string `json:"groupId"`
}

type UpdateGroupSettingsRequest struct {
	GroupID  string            `json:"groupId"`
	Settings models.GroupInput `json:"settings"`
	Image    *models.FileInput `json:"image,omitempty"`
}

type DiscoverGroupsResponse struct {
	Joined    []*models.Group `json:"joined"`
	Available []*models.Group `json:"available"`
}

type SearchGroupsRequest struct {
	Term string `json:"term"`
}

type SearchGroupsResponse struct {
	Groups []*models.Group `json:"groups"`
}

type ListMembersResponse struct {
	Members []models.Profile `json:"members"`
}

type SendMessageRequest struct {
	GroupID    string            `json:"groupId"`
	Text       string            `json:"text,omitempty"`
	Attachment *models.FileInput `json:"attachment,omitempty"`
}

type MessageResponse struct {
	Message *models.Message `json:"message"`
}

type ListMessagesResponse struct {
	Messages []*models.Message `json:"messages"`
	Days     []chat.DayGroup   `json:"days"`
}

// MessageBatch is one delivery of a chat subscription: the complete,
// timestamp-ordered message list.
type MessageBatch struct {
	Messages []*models.Message `json:"messages"`
}

// LoadGroupResponse carries the swept group and the menu actions the
// caller may take on its items.
type LoadGroupResponse struct {
	Group           *models.Group       `json:"group"`
	ResourceActions map[string][]string `json:"resourceActions"`
	EventActions    []string            `json:"eventActions"`
}

type AddResourceRequest struct {
	GroupID  string               `json:"groupId"`
	Resource models.ResourceInput `json:"resource"`
}

type UploadResourceRequest struct {
	GroupID string           `json:"groupId"`
	File    models.FileInput `json:"file"`
}

type ResourceResponse struct {
	Resource *models.Resource `json:"resource"`
}

type RemoveResourceRequest struct {
	GroupID    string `json:"groupId"`
	ResourceID string `json:"resourceId"`
}

type AddEventRequest struct {
	GroupID string            `json:"groupId"`
	Event   models.EventInput `json:"event"`
}

type EditEventRequest struct {
	GroupID string            `json:"groupId"`
	EventID string            `json:"eventId"`
	Event   models.EventInput `json:"event"`
}

type EventResponse struct {
	Event *models.Event `json:"event"`
}

type RemoveEventRequest struct {
	GroupID string `json:"groupId"`
	EventID string `json:"eventId"`
}

// StartSessionRequest mounts an activity monitor. Zero durations use the
// server defaults.
type StartSessionRequest struct {
	TimeoutSeconds       int `json:"timeoutSeconds,omitempty"`
	WarningWindowSeconds int `json:"warningWindowSeconds,omitempty"`
}

type StartSessionResponse struct {
	SessionID string           `json:"sessionId"`
	Session   session.Snapshot `json:"session"`
}

type SessionRequest struct {
	SessionID string `json:"sessionId"`
}

type RecordActivityRequest struct {
	SessionID     string `json:"sessionId"`
	Source        string `json:"source"`
	InsideWarning bool   `json:"insideWarning,omitempty"`
}

type SessionStateResponse struct {
	State session.State `json:"state"`
}

type LogoutResponse struct {
	RedirectTo string `json:"redirectTo"`
}

type GetSessionResponse struct {
	Session session.Snapshot `json:"session"`
}

// SessionEvent is one delivery of a session watch. The first event
// carries the current Session; each later one carries a Transition.
// RedirectTo is set once the session has expired.
type SessionEvent struct {
	Session    *session.Snapshot   `json:"session,omitempty"`
	Transition *session.Transition `json:"transition,omitempty"`
	RedirectTo string              `json:"redirectTo,omitempty"`
}
