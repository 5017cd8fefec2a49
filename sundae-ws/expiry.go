package sundaews

import (
	"context"
	"fmt"

	sundaeddb "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ddb"
	"github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-ws/connectiondao"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/rs/zerolog"
)

// Expiry consumes the connections table stream and hangs up sockets whose rows
// have been removed, whether by ttl, disconnect or pruning. Closing an already
// closed connection is a no-op.
type Expiry struct {
	Transport Transport
	Logger    zerolog.Logger
}

func (e *Expiry) OnRemove(ctx context.Context, oldValue map[string]*dynamodb.AttributeValue) error {
	var conn connectiondao.Connection
	if err := sundaeddb.ParseItem(oldValue, &conn); err != nil {
		return err
	}
	if conn.ConnectionID == "" {
		return nil
	}

	if err := e.Transport.Close(ctx, conn.ConnectionID); err != nil {
		return fmt.Errorf("closing removed connection %v: %w", conn.ConnectionID, err)
	}
	e.Logger.Debug().
		Str("connection_id", conn.ConnectionID).
		Str("subject", conn.Subject).
		Msg("closed removed connection")
	return nil
}
