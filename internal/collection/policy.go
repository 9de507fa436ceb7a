package collection

import "github.com/mmynk/studygroup/internal/models"

// Action is an item operation offered in a context menu.
type Action string

const (
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

// CanDeleteResource reports whether uid may delete r. Only the uploader
// may.
func CanDeleteResource(uid string, r models.Resource) bool {
	return uid != "" && r.AddedBy == uid
}

// CanModifyEvent reports whether uid may edit or delete events of g. Any
// member may.
func CanModifyEvent(uid string, g *models.Group) bool {
	return uid != "" && g.HasMember(uid)
}

// ResourceActions lists the menu actions uid may take on r.
func ResourceActions(uid string, r models.Resource) []Action {
	if CanDeleteResource(uid, r) {
		return []Action{ActionDelete}
	}
	return []Action{}
}

// EventActions lists the menu actions uid may take on events of g.
func EventActions(uid string, g *models.Group) []Action {
	if CanModifyEvent(uid, g) {
		return []Action{ActionEdit, ActionDelete}
	}
	return []Action{}
}
