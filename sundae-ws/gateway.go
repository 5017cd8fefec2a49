package sundaews

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi"
	"github.com/aws/aws-sdk-go/service/apigatewaymanagementapi/apigatewaymanagementapiiface"
)

// GatewayTransport delivers through the API Gateway Management API.
type GatewayTransport struct {
	api apigatewaymanagementapiiface.ApiGatewayManagementApiAPI
}

func NewGatewayTransport(api apigatewaymanagementapiiface.ApiGatewayManagementApiAPI) *GatewayTransport {
	return &GatewayTransport{api: api}
}

// BuildGatewayTransport creates the management client once for the stage's
// callback url, e.g. https://{api-id}.execute-api.{region}.amazonaws.com/{stage}.
func BuildGatewayTransport(sess *session.Session, callbackURL string) (*GatewayTransport, error) {
	if callbackURL == "" {
		return nil, fmt.Errorf("no websocket callback url configured: set --%v", CallbackURLFlag.Name)
	}
	api := apigatewaymanagementapi.New(sess, aws.NewConfig().WithEndpoint(callbackURL))
	return NewGatewayTransport(api), nil
}

func (g *GatewayTransport) Send(ctx context.Context, connectionID string, data []byte) error {
	_, err := g.api.PostToConnectionWithContext(ctx, &apigatewaymanagementapi.PostToConnectionInput{
		ConnectionId: aws.String(connectionID),
		Data:         data,
	})
	if err != nil {
		if isGoneException(err) {
			return fmt.Errorf("%w: %v", ErrGone, connectionID)
		}
		return fmt.Errorf("posting to connection %v: %w", connectionID, err)
	}
	return nil
}

// Close hangs up the connection. Closing a connection that is already gone is
// not an error.
func (g *GatewayTransport) Close(ctx context.Context, connectionID string) error {
	_, err := g.api.DeleteConnectionWithContext(ctx, &apigatewaymanagementapi.DeleteConnectionInput{
		ConnectionId: aws.String(connectionID),
	})
	if err != nil && !isGoneException(err) {
		return fmt.Errorf("deleting connection %v: %w", connectionID, err)
	}
	return nil
}

// isGoneException checks for GoneException (HTTP 410), meaning the websocket
// connection no longer exists.
func isGoneException(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) && aerr.Code() == apigatewaymanagementapi.ErrCodeGoneException {
		return true
	}
	var rerr awserr.RequestFailure
	return errors.As(err, &rerr) && rerr.StatusCode() == http.StatusGone
}
