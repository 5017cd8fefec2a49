// Package sundaews implements the websocket session gateway: connection
// lifecycle, message relay and room fan-out over either API Gateway websockets
// or sockets held in process.
package sundaews

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	sundaecli "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-cli"
	sundaeerr "github.com/SundaeSwap-finance/sundae-ws-gateway/sundae-err"
	"github.com/aws/aws-lambda-go/events"
)

// HandleEvent routes an API Gateway websocket event. Each invocation is
// independent; all session state comes from the registry.
func (c *Controller) HandleEvent(ctx context.Context, req events.APIGatewayWebsocketProxyRequest) (events.APIGatewayProxyResponse, error) {
	connectionID := req.RequestContext.ConnectionID
	logger := c.Logger.With().
		Str("connection_id", connectionID).
		Str("route", req.RequestContext.RouteKey).
		Logger()
	ctx = logger.WithContext(ctx)
	defer c.Metrics.Timing(ctx, sundaecli.ResponseTimeMetric, time.Now(), map[sundaecli.DimensionName]string{
		sundaecli.OperationNameDimension: req.RequestContext.RouteKey,
	})

	switch req.RequestContext.RouteKey {
	case "$connect":
		s, err := c.Connect(ctx, ConnectRequest{
			ConnectionID: connectionID,
			Headers:      websocketHeaders(req),
			Query:        req.QueryStringParameters,
		})
		if err != nil {
			return c.rejection(err, connectionID, s.RequestID), nil
		}
		return events.APIGatewayProxyResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{"x-request-id": s.RequestID},
		}, nil

	case "$disconnect":
		c.Disconnect(ctx, connectionID)
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil

	case "$default":
		if err := c.Receive(ctx, connectionID, req.Body); err != nil {
			return c.rejection(err, connectionID, ""), nil
		}
		return events.APIGatewayProxyResponse{StatusCode: http.StatusOK}, nil

	default:
		logger.Warn().Msg("unknown route")
		err := sundaeerr.Validation(sundaeerr.CodeInvalidEvent, "unknown route "+req.RequestContext.RouteKey)
		return c.rejection(err, connectionID, ""), nil
	}
}

func (c *Controller) rejection(err error, connectionID, requestID string) events.APIGatewayProxyResponse {
	payload := sundaeerr.From(err).WithConnection(connectionID).Payload(requestID, c.now())
	body, _ := json.Marshal(payload)

	headers := map[string]string{"Content-Type": "application/json"}
	if requestID != "" {
		headers["x-request-id"] = requestID
	}
	return events.APIGatewayProxyResponse{
		StatusCode: payload.Status,
		Headers:    headers,
		Body:       string(body),
	}
}

// websocketHeaders flattens the event headers, joining repeated Cookie values so
// they parse as one header.
func websocketHeaders(req events.APIGatewayWebsocketProxyRequest) map[string]string {
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		headers[k] = v
	}
	for k, vs := range req.MultiValueHeaders {
		if strings.EqualFold(k, "Cookie") && len(vs) > 1 {
			headers[k] = strings.Join(vs, "; ")
		}
	}
	return headers
}
