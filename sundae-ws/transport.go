package sundaews

import (
	"context"
	"errors"
)

// ErrGone means the remote end of a connection no longer exists. It is final:
// retrying a send that failed with ErrGone will never succeed.
var ErrGone = errors.New("connection gone")

// Transport pushes bytes to live connections. The Controller and Relay only ever
// talk to connections through a Transport, so the API Gateway and in-process
// socket deployments share every code path above this interface.
type Transport interface {
	Send(ctx context.Context, connectionID string, data []byte) error
	Close(ctx context.Context, connectionID string) error
}
