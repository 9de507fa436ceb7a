package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/collection"
	"github.com/mmynk/studygroup/pkg/api"
)

// CollectionService implements the shared resources and events of a
// group.
type CollectionService struct {
	editor *collection.Editor
}

// NewCollectionService creates a new CollectionService.
func NewCollectionService(editor *collection.Editor) *CollectionService {
	return &CollectionService{editor: editor}
}

// Handler returns the mount path and handler of the service.
func (s *CollectionService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(api.CollectionServiceLoadGroupProcedure, connect.NewUnaryHandler(api.CollectionServiceLoadGroupProcedure, s.LoadGroup, opts...))
	mux.Handle(api.CollectionServiceAddResourceProcedure, connect.NewUnaryHandler(api.CollectionServiceAddResourceProcedure, s.AddResource, opts...))
	mux.Handle(api.CollectionServiceUploadResourceProcedure, connect.NewUnaryHandler(api.CollectionServiceUploadResourceProcedure, s.UploadResource, opts...))
	mux.Handle(api.CollectionServiceRemoveResourceProcedure, connect.NewUnaryHandler(api.CollectionServiceRemoveResourceProcedure, s.RemoveResource, opts...))
	mux.Handle(api.CollectionServiceAddEventProcedure, connect.NewUnaryHandler(api.CollectionServiceAddEventProcedure, s.AddEvent, opts...))
	mux.Handle(api.CollectionServiceEditEventProcedure, connect.NewUnaryHandler(api.CollectionServiceEditEventProcedure, s.EditEvent, opts...))
	mux.Handle(api.CollectionServiceRemoveEventProcedure, connect.NewUnaryHandler(api.CollectionServiceRemoveEventProcedure, s.RemoveEvent, opts...))
	return servicePath(api.CollectionServiceName), mux
}

// LoadGroup sweeps past events and returns the group together with the
// item actions available to the caller, who must be a member.
func (s *CollectionService) LoadGroup(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.LoadGroupResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	group, err := s.editor.Load(ctx, req.Msg.GroupID, id.UID)
	if err != nil {
		return nil, toConnectError("LoadGroup", err)
	}

	resourceActions := make(map[string][]string, len(group.Resources))
	for _, r := range group.Resources {
		resourceActions[r.ID] = actionNames(collection.ResourceActions(id.UID, r))
	}
	return connect.NewResponse(&api.LoadGroupResponse{
		Group:           group,
		ResourceActions: resourceActions,
		EventActions:    actionNames(collection.EventActions(id.UID, group)),
	}), nil
}

func actionNames(actions []collection.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}

// AddResource shares a link with the group.
func (s *CollectionService) AddResource(ctx context.Context, req *connect.Request[api.AddResourceRequest]) (*connect.Response[api.ResourceResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.editor.AddResource(ctx, req.Msg.GroupID, id, req.Msg.Resource)
	if err != nil {
		return nil, toConnectError("AddResource", err)
	}
	return connect.NewResponse(&api.ResourceResponse{Resource: r}), nil
}

// UploadResource stores a file and shares it with the group.
func (s *CollectionService) UploadResource(ctx context.Context, req *connect.Request[api.UploadResourceRequest]) (*connect.Response[api.ResourceResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	r, err := s.editor.UploadResource(ctx, req.Msg.GroupID, id, req.Msg.File)
	if err != nil {
		return nil, toConnectError("UploadResource", err)
	}
	return connect.NewResponse(&api.ResourceResponse{Resource: r}), nil
}

// RemoveResource deletes a resource the caller added.
func (s *CollectionService) RemoveResource(ctx context.Context, req *connect.Request[api.RemoveResourceRequest]) (*connect.Response[api.Empty], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.editor.RemoveResource(ctx, req.Msg.GroupID, id.UID, req.Msg.ResourceID); err != nil {
		return nil, toConnectError("RemoveResource", err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// AddEvent schedules an event.
func (s *CollectionService) AddEvent(ctx context.Context, req *connect.Request[api.AddEventRequest]) (*connect.Response[api.EventResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.editor.AddEvent(ctx, req.Msg.GroupID, id, req.Msg.Event)
	if err != nil {
		return nil, toConnectError("AddEvent", err)
	}
	return connect.NewResponse(&api.EventResponse{Event: ev}), nil
}

// EditEvent replaces the title, date and time of an event.
func (s *CollectionService) EditEvent(ctx context.Context, req *connect.Request[api.EditEventRequest]) (*connect.Response[api.EventResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	ev, err := s.editor.EditEvent(ctx, req.Msg.GroupID, id.UID, req.Msg.EventID, req.Msg.Event)
	if err != nil {
		return nil, toConnectError("EditEvent", err)
	}
	return connect.NewResponse(&api.EventResponse{Event: ev}), nil
}

// RemoveEvent deletes an event.
func (s *CollectionService) RemoveEvent(ctx context.Context, req *connect.Request[api.RemoveEventRequest]) (*connect.Response[api.Empty], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.editor.RemoveEvent(ctx, req.Msg.GroupID, id.UID, req.Msg.EventID); err != nil {
		return nil, toConnectError("RemoveEvent", err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}
