package sundaews

import (
	"context"

	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/messagedao"
)

// Registry maps connection ids to identity and metadata. It is satisfied by
// connectiondao.DAO and connectiondao.Memory.
type Registry interface {
	Add(ctx context.Context, conn connectiondao.Connection) error
	Get(ctx context.Context, connectionID string) (connectiondao.Connection, error)
	Merge(ctx context.Context, connectionID string, metadata map[string]string) (connectiondao.Connection, error)
	Remove(ctx context.Context, connectionID string) error
	List(ctx context.Context, limit int) ([]connectiondao.Connection, error)
	FindByMetadata(ctx context.Context, key, value string, limit int) ([]connectiondao.Connection, error)
	Expired(ctx context.Context, limit int) ([]connectiondao.Connection, error)
}

// MessageStore is satisfied by messagedao.DAO and messagedao.Memory.
type MessageStore interface {
	Put(ctx context.Context, msg messagedao.Message) error
	BySession(ctx context.Context, sessionID string, limit int) ([]messagedao.Message, error)
}
