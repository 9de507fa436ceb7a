package api

const (
	GroupServiceName      = "studygroup.v1.GroupService"
	ChatServiceName       = "studygroup.v1.ChatService"
	CollectionServiceName = "studygroup.v1.CollectionService"
	SessionServiceName    = "studygroup.v1.SessionService"
)

// GroupService procedures.
const (
	GroupServiceCreateGroupProcedure         = "/" + GroupServiceName + "/CreateGroup"
	GroupServiceGetGroupProcedure            = "/" + GroupServiceName + "/GetGroup"
	GroupServiceJoinGroupProcedure           = "/" + GroupServiceName + "/JoinGroup"
	GroupServiceLeaveGroupProcedure          = "/" + GroupServiceName + "/LeaveGroup"
	GroupServiceUpdateGroupSettingsProcedure = "/" + GroupServiceName + "/UpdateGroupSettings"
	GroupServiceDiscoverGroupsProcedure      = "/" + GroupServiceName + "/DiscoverGroups"
	GroupServiceSearchGroupsProcedure        = "/" + GroupServiceName + "/SearchGroups"
	GroupServiceListMembersProcedure         = "/" + GroupServiceName + "/ListMembers"
)

// ChatService procedures.
const (
	ChatServiceSendMessageProcedure  = "/" + ChatServiceName + "/SendMessage"
	ChatServiceListMessagesProcedure = "/" + ChatServiceName + "/ListMessages"
	ChatServiceSubscribeProcedure    = "/" + ChatServiceName + "/Subscribe"
)

// CollectionService procedures.
const (
	CollectionServiceLoadGroupProcedure      = "/" + CollectionServiceName + "/LoadGroup"
	CollectionServiceAddResourceProcedure    = "/" + CollectionServiceName + "/AddResource"
	CollectionServiceUploadResourceProcedure = "/" + CollectionServiceName + "/UploadResource"
	CollectionServiceRemoveResourceProcedure = "/" + CollectionServiceName + "/RemoveResource"
	CollectionServiceAddEventProcedure       = "/" + CollectionServiceName + "/AddEvent"
	CollectionServiceEditEventProcedure      = "/" + CollectionServiceName + "/EditEvent"
	CollectionServiceRemoveEventProcedure    = "/" + CollectionServiceName + "/RemoveEvent"
)

// SessionService procedures.
const (
	SessionServiceStartSessionProcedure   = "/" + SessionServiceName + "/StartSession"
	SessionServiceRecordActivityProcedure = "/" + SessionServiceName + "/RecordActivity"
	SessionServiceStayLoggedInProcedure   = "/" + SessionServiceName + "/StayLoggedIn"
	SessionServiceLogoutProcedure         = "/" + SessionServiceName + "/Logout"
	SessionServiceEndSessionProcedure     = "/" + SessionServiceName + "/EndSession"
	SessionServiceGetSessionProcedure     = "/" + SessionServiceName + "/GetSession"
	SessionServiceWatchSessionProcedure   = "/" + SessionServiceName + "/WatchSession"
)
