package service

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/chat"
	"github.com/mmynk/studygroup/internal/clock"
	"github.com/mmynk/studygroup/internal/models"
	"github.com/mmynk/studygroup/pkg/api"
)

var errSubscriptionEnded = errors.New("message subscription ended")

// ChatService implements group chat. Reading a group's messages
// requires membership, as does sending.
type ChatService struct {
	stream *chat.Stream
	clock  clock.Clock
}

// NewChatService creates a new ChatService.
func NewChatService(stream *chat.Stream, clk clock.Clock) *ChatService {
	if clk == nil {
		clk = clock.Real()
	}
	return &ChatService{stream: stream, clock: clk}
}

// Handler returns the mount path and handler of the service.
func (s *ChatService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = handlerOptions(opts)
	mux := http.NewServeMux()
	mux.Handle(api.ChatServiceSendMessageProcedure, connect.NewUnaryHandler(api.ChatServiceSendMessageProcedure, s.SendMessage, opts...))
	mux.Handle(api.ChatServiceListMessagesProcedure, connect.NewUnaryHandler(api.ChatServiceListMessagesProcedure, s.ListMessages, opts...))
	mux.Handle(api.ChatServiceSubscribeProcedure, connect.NewServerStreamHandler(api.ChatServiceSubscribeProcedure, s.Subscribe, opts...))
	return servicePath(api.ChatServiceName), mux
}

// SendMessage posts a text message or a single attachment.
func (s *ChatService) SendMessage(ctx context.Context, req *connect.Request[api.SendMessageRequest]) (*connect.Response[api.MessageResponse], error) {
	id, err := caller(ctx)
	if err != nil {
		return nil, err
	}
	msg, err := s.stream.Send(ctx, req.Msg.GroupID, id, req.Msg.Text, req.Msg.Attachment)
	if err != nil {
		return nil, toConnectError("SendMessage", err)
	}
	return connect.NewResponse(&api.MessageResponse{Message: msg}), nil
}

// ListMessages returns the group's messages in order and bucketed by day.
func (s *ChatService) ListMessages(ctx context.Context, req *connect.Request[api.GroupRequest]) (*connect.Response[api.ListMessagesResponse], error) {
	if err := s.requireMember(ctx, req.Msg.GroupID); err != nil {
		return nil, toConnectError("ListMessages", err)
	}
	msgs, err := s.stream.List(ctx, req.Msg.GroupID)
	if err != nil {
		return nil, toConnectError("ListMessages", err)
	}
	return connect.NewResponse(&api.ListMessagesResponse{
		Messages: msgs,
		Days:     chat.GroupByDay(msgs, s.clock.Now()),
	}), nil
}

// Subscribe streams the full message list of a group, first as it is
// and then after every change. If the client reads slower than messages
// arrive, intermediate lists are skipped.
func (s *ChatService) Subscribe(ctx context.Context, req *connect.Request[api.GroupRequest], stream *connect.ServerStream[api.MessageBatch]) error {
	gid := req.Msg.GroupID
	if err := s.requireMember(ctx, gid); err != nil {
		return toConnectError("Subscribe", err)
	}

	// Holds at most the latest undelivered list. Only the subscription
	// callback sends, one call at a time, so the send never blocks.
	latest := make(chan []*models.Message, 1)
	sub, err := s.stream.Subscribe(ctx, gid, func(msgs []*models.Message) {
		select {
		case <-latest:
		default:
		}
		latest <- msgs
	})
	if err != nil {
		return toConnectError("Subscribe", err)
	}
	defer sub.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sub.Done():
			if ctx.Err() != nil {
				return nil
			}
			return connect.NewError(connect.CodeUnavailable, errSubscriptionEnded)
		case msgs := <-latest:
			if err := stream.Send(&api.MessageBatch{Messages: msgs}); err != nil {
				slog.Debug("Subscribe send failed", "group_id", gid, "error", err)
				return err
			}
		}
	}
}

func (s *ChatService) requireMember(ctx context.Context, gid string) error {
	id, err := caller(ctx)
	if err != nil {
		return err
	}
	return s.stream.RequireMember(ctx, gid, id.UID)
}
