// Package models defines the core domain models for study groups.
//
// # Models
//
//   - Group: the shared group document. Membership (Users, MemberCount)
//     and the two embedded collections (Resources, Events) live in it.
//   - Resource: a shared file reference embedded in Group.Resources.
//   - Event: a scheduled calendar item embedded in Group.Events.
//   - Message: an immutable chat entry stored in the group's messages
//     sub-collection, ordered by its store-assigned Timestamp.
//   - Identity: the authenticated caller, supplied by the auth provider.
//   - Profile: the display record kept for each user.
//
// # Relationships
//
// Members, resource owners and event creators are referenced by user id
// strings. Display names are copied alongside the id at write time so a
// group document can be rendered without extra lookups.
package models
