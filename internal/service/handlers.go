package service

import (
	"context"

	"connectrpc.com/connect"

	"github.com/mmynk/studygroup/internal/middleware"
	"github.com/mmynk/studygroup/internal/models"
	"github.com/mmynk/studygroup/pkg/api"
)

// handlerOptions puts the JSON codec in front of the caller's options.
func handlerOptions(opts []connect.HandlerOption) []connect.HandlerOption {
	return append([]connect.HandlerOption{connect.WithCodec(api.Codec{})}, opts...)
}

// servicePath is the mount point of a service on an http.ServeMux.
func servicePath(name string) string {
	return "/" + name + "/"
}

// caller returns the authenticated identity of the request.
func caller(ctx context.Context) (models.Identity, error) {
	id, ok := middleware.IdentityFrom(ctx)
	if !ok {
		return models.Identity{}, connect.NewError(connect.CodeUnauthenticated, errUnauthenticated)
	}
	return id, nil
}
