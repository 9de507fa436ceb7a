package service

import (
	"context"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/membership"
	"github.com/mmynk/studygroup/pkg/api"
)

// GroupService implements group membership and settings.
type GroupService struct {
	groups *membership.Manager
}

// NewGroupService creates a new GroupService backed by groups.
func NewGroupService(groups *membership.Manager) *GroupService {
	return &GroupService{groups: groups}
}

// Handler returns the mount path and handler of the service.
func (s *GroupService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(api.GroupServiceCreateGroupProcedure, connect.NewUnaryHandler(api.GroupServiceCreateGroupProcedure, s.CreateGroup, opts...))
	mux.Handle(api.GroupServiceGetGroupProcedure, connect.NewUnaryHandler(api.GroupServiceGetGroupProcedure, s.GetGroup, opts...))
	mux.Handle(api.GroupServiceJoinGroupProcedure, connect.NewUnaryHandler(api.GroupServiceJoinGroupProcedure, s.JoinGroup, opts...))
	mux.Handle(api.GroupServiceLeaveGroupProcedure, connect.NewUnaryHandler(api.GroupServiceLeaveGroupProcedure, s.LeaveGroup, opts...))
	mux.Handle(api.GroupServiceUpdateGroupSettingsProcedure, connect.NewUnaryHandler(api.GroupServiceUpdateGroupSettingsProcedure, s.UpdateGroupSettings, opts...))
	mux.Handle(api.GroupServiceDiscoverGroupsProcedure, connect.NewUnaryHandler(api.GroupServiceDiscoverGroupsProcedure, s.DiscoverGroups, opts...))
	mux.Handle(api.GroupServiceSearchGroupsProcedure, connect.NewUnaryHandler(api.GroupServiceSearchGroupsProcedure, s.SearchGroups, opts...))
	mux.Handle(api.GroupServiceListMembersProcedure, connect.NewUnaryHandler(api.GroupServiceListMembersProcedure, s.ListMembers, opts...))
	return servicePath(api.GroupServiceName), mux
}

// CreateGroup creates a group owned by the caller.
func (s *GroupService) CreateGroup(ctx context.Context, req *connect.Request[api.CreateGroupRequest]) (*connect.Response[api.GroupResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	group, err := s.groups.Create(ctx, id, req.Msg.Group)
	if err != nil {
		return nil, toConnectError("CreateGroup", err)
	}
	return connect.NewResponse(&api.GroupResponse{Group: group}), nil
}

// GetGroup retrieves a group by ID.
func (s *GroupService) GetGroup(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.GroupResponse], error) {
	group, err := s.groups.Get(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("GetGroup", err)
	}
	return connect.NewResponse(&api.GroupResponse{Group: group}), nil
}

// JoinGroup adds the caller to a group.
func (s *GroupService) JoinGroup(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.Empty], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.groups.Join(ctx, req.Msg.GroupID, id.UID); err != nil {
		return nil, toConnectError("JoinGroup", err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// LeaveGroup removes the caller from a group.
func (s *GroupService) LeaveGroup(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.Empty], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.groups.Leave(ctx, req.Msg.GroupID, id.UID); err != nil {
		return nil, toConnectError("LeaveGroup", err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// UpdateGroupSettings changes the settings of a group the caller owns.
func (s *GroupService) UpdateGroupSettings(ctx context.Context, req *connect.Request[api.UpdateGroupSettingsRequest]) (*connect.Response[api.GroupResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	group, err := s.groups.UpdateSettings(ctx, req.Msg.GroupID, id.UID, req.Msg.Settings, req.Msg.Image)
	if err != nil {
		return nil, toConnectError("UpdateGroupSettings", err)
	}
	return connect.NewResponse(&api.GroupResponse{Group: group}), nil
}

// DiscoverGroups lists the caller's groups and a few others they could
// join.
func (s *GroupService) DiscoverGroups(ctx context.Context, req *connect.Request[api.Empty]) (*connect.Response[api.DiscoverGroupsResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	joined, available, err := s.groups.Discover(ctx, id.UID)
	if err != nil {
		return nil, toConnectError("DiscoverGroups", err)
	}
	return connect.NewResponse(&api.DiscoverGroupsResponse{Joined: joined, Available: available}), nil
}

// SearchGroups matches groups by name.
func (s *GroupService) SearchGroups(ctx context.Context, req *connect.Request[api.SearchGroupsRequest]) (*connect.Response[api.SearchGroupsResponse], error) {
	groups, err := s.groups.Search(ctx, req.Msg.Term)
	if err != nil {
		return nil, toConnectError("SearchGroups", err)
	}
	return connect.NewResponse(&api.SearchGroupsResponse{Groups: groups}), nil
}

// ListMembers returns the profiles of a group's members.
func (s *GroupService) ListMembers(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.ListMembersResponse], error) {
	members, err := s.groups.Members(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ListMembers", err)
	}
	return connect.NewResponse(&api.ListMembersResponse{Members: members}), nil
}
