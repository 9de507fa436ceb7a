package api

import (
	"context"
	"strings"

	"connectrpc.com/connect"
)

// Client is a typed client for all four services.
type Client struct {
	createGroup         *connect.Client[CreateGroupRequest, GroupResponse]
	getGroup            *connect.Client[GroupRequest, GroupResponse]
	joinGroup           *connect.Client[GroupRequest, Empty]
	leaveGroup          *connect.Client[GroupRequest, Empty]
	updateGroupSettings *connect.Client[UpdateGroupSettingsRequest, GroupResponse]
	discoverGroups      *connect.Client[Empty, DiscoverGroupsResponse]
	searchGroups        *connect.Client[SearchGroupsRequest, SearchGroupsResponse]
	listMembers         *connect.Client[GroupRequest, ListMembersResponse]

	sendMessage  *connect.Client[SendMessageRequest, MessageResponse]
	listMessages *connect.Client[GroupRequest, ListMessagesResponse]
	subscribe    *connect.Client[GroupRequest, MessageBatch]

	loadGroup      *connect.Client[GroupRequest, LoadGroupResponse]
	addResource    *connect.Client[AddResourceRequest, ResourceResponse]
	uploadResource *connect.Client[UploadResourceRequest, ResourceResponse]
	removeResource *connect.Client[RemoveResourceRequest, Empty]
	addEvent       *connect.Client[AddEventRequest, EventResponse]
	editEvent      *connect.Client[EditEventRequest, EventResponse]
	removeEvent    *connect.Client[RemoveEventRequest, Empty]

	startSession   *connect.Client[StartSessionRequest, StartSessionResponse]
	recordActivity *connect.Client[RecordActivityRequest, SessionStateResponse]
	stayLoggedIn   *connect.Client[SessionRequest, SessionStateResponse]
	logout         *connect.Client[SessionRequest, LogoutResponse]
	endSession     *connect.Client[SessionRequest, Empty]
	getSession     *connect.Client[SessionRequest, GetSessionResponse]
	watchSession   *connect.Client[SessionRequest, SessionEvent]
}

// NewClient creates a client for the server at baseURL. The JSON codec
// is always used; opts may add interceptors such as a bearer token.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		createGroup:         connect.NewClient[CreateGroupRequest, GroupResponse](httpClient, baseURL+GroupServiceCreateGroupProcedure, opts...),
		getGroup:            connect.NewClient[GroupRequest, GroupResponse](httpClient, baseURL+GroupServiceGetGroupProcedure, opts...),
		joinGroup:           connect.NewClient[GroupRequest, Empty](httpClient, baseURL+GroupServiceJoinGroupProcedure, opts...),
		leaveGroup:          connect.NewClient[GroupRequest, Empty](httpClient, baseURL+GroupServiceLeaveGroupProcedure, opts...),
		updateGroupSettings: connect.NewClient[UpdateGroupSettingsRequest, GroupResponse](httpClient, baseURL+GroupServiceUpdateGroupSettingsProcedure, opts...),
		discoverGroups:      connect.NewClient[Empty, DiscoverGroupsResponse](httpClient, baseURL+GroupServiceDiscoverGroupsProcedure, opts...),
		searchGroups:        connect.NewClient[SearchGroupsRequest, SearchGroupsResponse](httpClient, baseURL+GroupServiceSearchGroupsProcedure, opts...),
		listMembers:         connect.NewClient[GroupRequest, ListMembersResponse](httpClient, baseURL+GroupServiceListMembersProcedure, opts...),

		sendMessage:  connect.NewClient[SendMessageRequest, MessageResponse](httpClient, baseURL+ChatServiceSendMessageProcedure, opts...),
		listMessages: connect.NewClient[GroupRequest, ListMessagesResponse](httpClient, baseURL+ChatServiceListMessagesProcedure, opts...),
		subscribe:    connect.NewClient[GroupRequest, MessageBatch](httpClient, baseURL+ChatServiceSubscribeProcedure, opts...),

		loadGroup:      connect.NewClient[GroupRequest, LoadGroupResponse](httpClient, baseURL+CollectionServiceLoadGroupProcedure, opts...),
		addResource:    connect.NewClient[AddResourceRequest, ResourceResponse](httpClient, baseURL+CollectionServiceAddResourceProcedure, opts...),
		uploadResource: connect.NewClient[UploadResourceRequest, ResourceResponse](httpClient, baseURL+CollectionServiceUploadResourceProcedure, opts...),
		removeResource: connect.NewClient[RemoveResourceRequest, Empty](httpClient, baseURL+CollectionServiceRemoveResourceProcedure, opts...),
		addEvent:       connect.NewClient[AddEventRequest, EventResponse](httpClient, baseURL+CollectionServiceAddEventProcedure, opts...),
		editEvent:      connect.NewClient[EditEventRequest, EventResponse](httpClient, baseURL+CollectionServiceEditEventProcedure, opts...),
		removeEvent:    connect.NewClient[RemoveEventRequest, Empty](httpClient, baseURL+CollectionServiceRemoveEventProcedure, opts...),

		startSession:   connect.NewClient[StartSessionRequest, StartSessionResponse](httpClient, baseURL+SessionServiceStartSessionProcedure, opts...),
		recordActivity: connect.NewClient[RecordActivityRequest, SessionStateResponse](httpClient, baseURL+SessionServiceRecordActivityProcedure, opts...),
		stayLoggedIn:   connect.NewClient[SessionRequest, SessionStateResponse](httpClient, baseURL+SessionServiceStayLoggedInProcedure, opts...),
		logout:         connect.NewClient[SessionRequest, LogoutResponse](httpClient, baseURL+SessionServiceLogoutProcedure, opts...),
		endSession:     connect.NewClient[SessionRequest, Empty](httpClient, baseURL+SessionServiceEndSessionProcedure, opts...),
		getSession:     connect.NewClient[SessionRequest, GetSessionResponse](httpClient, baseURL+SessionServiceGetSessionProcedure, opts...),
		watchSession:   connect.NewClient[SessionRequest, SessionEvent](httpClient, baseURL+SessionServiceWatchSessionProcedure, opts...),
	}
}

func unary[Req, Res any](ctx context.Context, c *connect.Client[Req, Res], req *Req) (*Res, error) {
	resp, err := c.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

func (c *Client) CreateGroup(ctx context.Context, req *CreateGroupRequest) (*GroupResponse, error) {
	return unary(ctx, c.createGroup, req)
}

func (c *Client) GetGroup(ctx context.Context, req *GroupRequest) (*GroupResponse, error) {
	return unary(ctx, c.getGroup, req)
}

func (c *Client) JoinGroup(ctx context.Context, req *GroupRequest) error {
	_, err := unary(ctx, c.joinGroup, req)
	return err
}

func (c *Client) LeaveGroup(ctx context.Context, req *GroupRequest) error {
	_, err := unary(ctx, c.leaveGroup, req)
	return err
}

func (c *Client) UpdateGroupSettings(ctx context.Context, req *UpdateGroupSettingsRequest) (*GroupResponse, error) {
	return unary(ctx, c.updateGroupSettings, req)
}

func (c *Client) DiscoverGroups(ctx context.Context) (*DiscoverGroupsResponse, error) {
	return unary(ctx, c.discoverGroups, &Empty{})
}

func (c *Client) SearchGroups(ctx context.Context, req *SearchGroupsRequest) (*SearchGroupsResponse, error) {
	return unary(ctx, c.searchGroups, req)
}

func (c *Client) ListMembers(ctx context.Context, req *GroupRequest) (*ListMembersResponse, error) {
	return unary(ctx, c.listMembers, req)
}

func (c *Client) SendMessage(ctx context.Context, req *SendMessageRequest) (*MessageResponse, error) {
	return unary(ctx, c.sendMessage, req)
}

func (c *Client) ListMessages(ctx context.Context, req *GroupRequest) (*ListMessagesResponse, error) {
	return unary(ctx, c.listMessages, req)
}

// Subscribe opens the live message stream of a group. Close the stream
// to end the subscription.
func (c *Client) Subscribe(ctx context.Context, req *GroupRequest) (*connect.ServerStreamForClient[MessageBatch], error) {
	return c.subscribe.CallServerStream(ctx, connect.NewRequest(req))
}

func (c *Client) LoadGroup(ctx context.Context, req *GroupRequest) (*LoadGroupResponse, error) {
	return unary(ctx, c.loadGroup, req)
}

func (c *Client) AddResource(ctx context.Context, req *AddResourceRequest) (*ResourceResponse, error) {
	return unary(ctx, c.addResource, req)
}

func (c *Client) UploadResource(ctx context.Context, req *UploadResourceRequest) (*ResourceResponse, error) {
	return unary(ctx, c.uploadResource, req)
}

func (c *Client) RemoveResource(ctx context.Context, req *RemoveResourceRequest) error {
	_, err := unary(ctx, c.removeResource, req)
	return err
}

func (c *Client) AddEvent(ctx context.Context, req *AddEventRequest) (*EventResponse, error) {
	return unary(ctx, c.addEvent, req)
}

func (c *Client) EditEvent(ctx context.Context, req *EditEventRequest) (*EventResponse, error) {
	return unary(ctx, c.editEvent, req)
}

func (c *Client) RemoveEvent(ctx context.Context, req *RemoveEventRequest) error {
	_, err := unary(ctx, c.removeEvent, req)
	return err
}

func (c *Client) StartSession(ctx context.Context, req *StartSessionRequest) (*StartSessionResponse, error) {
	return unary(ctx, c.startSession, req)
}

func (c *Client) RecordActivity(ctx context.Context, req *RecordActivityRequest) (*SessionStateResponse, error) {
	return unary(ctx, c.recordActivity, req)
}

func (c *Client) StayLoggedIn(ctx context.Context, req *SessionRequest) (*SessionStateResponse, error) {
	return unary(ctx, c.stayLoggedIn, req)
}

func (c *Client) Logout(ctx context.Context, req *SessionRequest) (*LogoutResponse, error) {
	return unary(ctx, c.logout, req)
}

func (c *Client) EndSession(ctx context.Context, req *SessionRequest) error {
	_, err := unary(ctx, c.endSession, req)
	return err
}

func (c *Client) GetSession(ctx context.Context, req *SessionRequest) (*GetSessionResponse, error) {
	return unary(ctx, c.getSession, req)
}

// WatchSession streams the transitions of a session until it ends.
func (c *Client) WatchSession(ctx context.Context, req *SessionRequest) (*connect.ServerStreamForClient[SessionEvent], error) {
	return c.watchSession.CallServerStream(ctx, connect.NewRequest(req))
}
