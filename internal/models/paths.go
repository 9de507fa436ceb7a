package models

import "github.com/mmynk/studygroup/internal/docstore"

const (
	// GroupsCollection holds one document per group.
	GroupsCollection = "groups"
	// UsersCollection holds one Profile document per user.
	UsersCollection = "users"
	// MessagesCollection is the name of a group's message sub-collection.
	MessagesCollection = "messages"
)

// GroupPath returns the document path of group gid.
func GroupPath(gid string) string {
	return docstore.Join(GroupsCollection, gid)
}

// MessagesPath returns the collection path of group gid's messages.
func MessagesPath(gid string) string {
	return docstore.Join(GroupsCollection, gid, MessagesCollection)
}

// UserPath returns the document path of user uid's profile.
func UserPath(uid string) string {
	return docstore.Join(UsersCollection, uid)
}

// GroupFromDocument decodes a group document.
func GroupFromDocument(doc *docstore.Document) (*Group, error) {
	var g Group
	if err := doc.DataTo(&g); err != nil {
		return nil, err
	}
	g.ID = doc.ID()
	if g.Users == nil {
		g.Users = []string{}
	}
	if g.Resources == nil {
		g.Resources = []Resource{}
	}
	if g.Events == nil {
		g.Events = []Event{}
	}
	return &g, nil
}

// MessageFromDocument decodes a message document.
func MessageFromDocument(doc *docstore.Document) (*Message, error) {
	var m Message
	if err := doc.DataTo(&m); err != nil {
		return nil, err
	}
	m.ID = doc.ID()
	return &m, nil
}
