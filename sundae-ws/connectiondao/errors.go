package connectiondao

import (
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
)

var errNotFound = sundaeerr.NotFound(sundaeerr.CodeConnectionNotFound, "connection not found")

func notFound(connectionID string) error {
	return errNotFound.WithConnection(connectionID)
}

func registryError(connectionID string, err error) error {
	return sundaeerr.Connection(sundaeerr.CodeRegistryError, "connection registry unavailable").
		Wrap(err).
		WithConnection(connectionID)
}

// IsNotFound reports whether err means the connection is absent or expired.
func IsNotFound(err error) bool {
	e, ok := sundaeerr.As(err)
	return ok && e.Code == sundaeerr.CodeConnectionNotFound
}
