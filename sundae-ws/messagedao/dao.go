package messagedao

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO stores messages in DynamoDB. Messages are written once and only ever
// removed by the table's ttl.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
	now       func() time.Time
}

func New(api dynamodbiface.DynamoDBAPI, tableName string, opts ...Option) *DAO {
	o := buildOptions(opts)
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Message{}),
		api:       api,
		tableName: tableName,
		now:       o.now,
	}
}

// Put writes msg. It returns only once DynamoDB has acknowledged the write.
func (d *DAO) Put(ctx context.Context, msg Message) error {
	if err := d.table.Put(msg).RunWithContext(ctx); err != nil {
		return fmt.Errorf("failed to put message %v: %w", msg.ID, err)
	}
	return nil
}

// BySession returns up to limit messages of a session, oldest first. Rows past
// their ttl that DynamoDB has not yet removed are skipped.
func (d *DAO) BySession(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	input := &dynamodb.QueryInput{
		TableName:              aws.String(d.tableName),
		IndexName:              aws.String(SessionIndex),
		KeyConditionExpression: aws.String("#session = :session"),
		FilterExpression:       aws.String("#ttl >= :now"),
		ExpressionAttributeNames: map[string]*string{
			"#session": aws.String("session_id"),
			"#ttl":     aws.String("ttl"),
		},
		ExpressionAttributeValues: map[string]*dynamodb.AttributeValue{
			":session": {S: aws.String(sessionID)},
			":now":     {N: aws.String(strconv.FormatInt(d.now().Unix(), 10))},
		},
		ScanIndexForward: aws.Bool(true),
	}
	if limit > 0 {
		input.Limit = aws.Int64(int64(limit))
	}

	var (
		messages  []Message
		decodeErr error
	)
	err := d.api.QueryPagesWithContext(ctx, input, func(page *dynamodb.QueryOutput, lastPage bool) bool {
		var items []Message
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); err != nil {
			decodeErr = err
			return false
		}
		messages = append(messages, items...)
		return limit <= 0 || len(messages) < limit
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query messages for session %v: %w", sessionID, err)
	}

	if limit > 0 && len(messages) > limit {
		messages = messages[:limit]
	}
	return messages, nil
}
