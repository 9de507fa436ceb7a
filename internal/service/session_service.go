package service

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/apperr"
	"github.com/mmynk/studygroup/internal/membership"
	"github.com/mmynk/studygroup/internal/session"
	"github.com/mmynk/studygroup/pkg/api"
)

// SessionService implements the inactivity monitor of authenticated
// views. Every session belongs to the user who started it.
type SessionService struct {
	sessions *session.Registry
	groups   *membership.Manager
}

// NewSessionService creates a new SessionService. If groups is non-nil
// the caller's profile is recorded when a session starts.
func NewSessionService(sessions *session.Registry, groups *membership.Manager) *SessionService {
	return &SessionService{sessions: sessions, groups: groups}
}

// Handler returns the mount path and handler of the service.
func (s *SessionService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(api.SessionServiceStartSessionProcedure, connect.NewUnaryHandler(api.SessionServiceStartSessionProcedure, s.StartSession, opts...))
	mux.Handle(api.SessionServiceRecordActivityProcedure, connect.NewUnaryHandler(api.SessionServiceRecordActivityProcedure, s.RecordActivity, opts...))
	mux.Handle(api.SessionServiceStayLoggedInProcedure, connect.NewUnaryHandler(api.SessionServiceStayLoggedInProcedure, s.StayLoggedIn, opts...))
	mux.Handle(api.SessionServiceLogoutProcedure, connect.NewUnaryHandler(api.SessionServiceLogoutProcedure, s.Logout, opts...))
	mux.Handle(api.SessionServiceEndSessionProcedure, connect.NewUnaryHandler(api.SessionServiceEndSessionProcedure, s.EndSession, opts...))
	mux.Handle(api.SessionServiceGetSessionProcedure, connect.NewUnaryHandler(api.SessionServiceGetSessionProcedure, s.GetSession, opts...))
	mux.Handle(api.SessionServiceWatchSessionProcedure, connect.NewServerStreamHandler(api.SessionServiceWatchSessionProcedure, s.WatchSession, opts...))
	return servicePath(api.SessionServiceName), mux
}

// StartSession mounts a monitor for the caller.
func (s *SessionService) StartSession(ctx context.Context, req *connect.Request[api.StartSessionRequest]) (*connect.Response[api.StartSessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if req.Msg.TimeoutSeconds < 0 {
		return nil, toConnectError("StartSession", apperr.Invalid("timeoutSeconds", "must not be negative"))
	}
	if req.Msg.WarningWindowSeconds < 0 {
		return nil, toConnectError("StartSession", apperr.Invalid("warningWindowSeconds", "must not be negative"))
	}

	if s.groups != nil {
		if err := s.groups.RecordProfile(ctx, id); err != nil {
			slog.Warn("Failed to record profile", "uid", id.UID, "error", err)
		}
	}

	sid, snap, err := s.sessions.Start(id.UID, session.Config{
		Timeout:       time.Duration(req.Msg.TimeoutSeconds) * time.Second,
		WarningWindow: time.Duration(req.Msg.WarningWindowSeconds) * time.Second,
	})
	if err != nil {
		return nil, toConnectError("StartSession", err)
	}
	return connect.NewResponse(&api.StartSessionResponse{SessionID: sid, Session: snap}), nil
}

// RecordActivity reports user input.
func (s *SessionService) RecordActivity(ctx context.Context, req *connect.Request[api.RecordActivityRequest]) (*connect.Response[api.SessionStateResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.sessions.Activity(req.Msg.SessionID, id.UID, session.Source(req.Msg.Source), req.Msg.InsideWarning)
	if err != nil {
		return nil, toConnectError("RecordActivity", err)
	}
	return connect.NewResponse(&api.SessionStateResponse{State: state}), nil
}

// StayLoggedIn dismisses the warning.
func (s *SessionService) StayLoggedIn(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.SessionStateResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	state, err := s.sessions.StayLoggedIn(req.Msg.SessionID, id.UID)
	if err != nil {
		return nil, toConnectError("StayLoggedIn", err)
	}
	return connect.NewResponse(&api.SessionStateResponse{State: state}), nil
}

// Logout signs the caller out now.
func (s *SessionService) Logout(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.LogoutResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.Logout(req.Msg.SessionID, id.UID); err != nil {
		return nil, toConnectError("Logout", err)
	}
	return connect.NewResponse(&api.LogoutResponse{RedirectTo: session.RedirectTarget}), nil
}

// EndSession unmounts the monitor without signing out.
func (s *SessionService) EndSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.Empty], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.sessions.End(req.Msg.SessionID, id.UID); err != nil {
		return nil, toConnectError("EndSession", err)
	}
	return connect.NewResponse(&api.Empty{}), nil
}

// GetSession returns the state and deadlines of a session.
func (s *SessionService) GetSession(ctx context.Context, req *connect.Request[api.SessionRequest]) (*connect.Response[api.GetSessionResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := s.sessions.Snapshot(req.Msg.SessionID, id.UID)
	if err != nil {
		return nil, toConnectError("GetSession", err)
	}
	return connect.NewResponse(&api.GetSessionResponse{Session: snap}), nil
}

// WatchSession streams the current state of a session followed by its
// transitions. The stream ends after expiry or when the session is
// ended.
func (s *SessionService) WatchSession(ctx context.Context, req *connect.Request[api.SessionRequest], stream *connect.ServerStream[api.SessionEvent]) error {
	id, err := caller(ctx)
	if err != nil {
		return err
	}
	sid := req.Msg.SessionID
	events, err := s.sessions.Watch(ctx, sid, id.UID)
	if err != nil {
		return toConnectError("WatchSession", err)
	}

	// The session may expire between Watch and Snapshot; the expiry is
	// then already queued on events.
	if snap, err := s.sessions.Snapshot(sid, id.UID); err == nil {
		if err := stream.Send(&api.SessionEvent{Session: &snap}); err != nil {
			return err
		}
	}

	for ev := range events {
		out := &api.SessionEvent{Transition: &ev.Transition}
		if ev.Transition.To == session.StateExpired {
			out.RedirectTo = session.RedirectTarget
		}
		if err := stream.Send(out); err != nil {
			return err
		}
	}
	return nil
}
