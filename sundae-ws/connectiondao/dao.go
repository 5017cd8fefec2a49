package connectiondao

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/savaki/ddb"
)

// DAO is the DynamoDB backed connection registry.
type DAO struct {
	table     *ddb.Table
	api       dynamodbiface.DynamoDBAPI
	tableName string
	ttl       time.Duration
	now       func() time.Time
}

func New(api dynamodbiface.DynamoDBAPI, tableName string, opts ...Option) *DAO {
	o := buildOptions(opts)
	return &DAO{
		table:     ddb.New(api).MustTable(tableName, Connection{}),
		api:       api,
		tableName: tableName,
		ttl:       o.ttl,
		now:       o.now,
	}
}

// Add upserts conn and sets its ttl.
func (d *DAO) Add(ctx context.Context, conn Connection) error {
	now := d.now()
	if conn.EstablishedAt == 0 {
		conn.EstablishedAt = now.Unix()
	}
	if conn.Metadata == nil {
		conn.Metadata = map[string]string{}
	}
	conn.TTL = now.Add(d.ttl).Unix()

	// metadata must be stored as a map, even when empty, for Merge to set keys in it
	item, err := marshalConnection(conn)
	if err != nil {
		return registryError(conn.ConnectionID, fmt.Errorf("failed to marshal connection %v: %w", conn.ConnectionID, err))
	}

	_, err = d.api.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(d.tableName),
		Item:      item,
	})
	if err != nil {
		return registryError(conn.ConnectionID, fmt.Errorf("failed to put connection %v: %w", conn.ConnectionID, err))
	}
	return nil
}

func marshalConnection(conn Connection) (map[string]*dynamodb.AttributeValue, error) {
	encoder := dynamodbattribute.NewEncoder(func(e *dynamodbattribute.Encoder) {
		e.EnableEmptyCollections = true
	})
	av, err := encoder.Encode(conn)
	if err != nil {
		return nil, err
	}
	return av.M, nil
}

// Get returns the live connection. Rows past their ttl are reported as not found
// even if DynamoDB has not yet expired them.
func (d *DAO) Get(ctx context.Context, connectionID string) (Connection, error) {
	var conn Connection
	if err := d.table.Get(connectionID).ConsistentRead(true).ScanWithContext(ctx, &conn); err != nil {
		if ddb.IsItemNotFoundError(err) {
			return Connection{}, notFound(connectionID)
		}
		return Connection{}, registryError(connectionID, fmt.Errorf("failed to get connection %v: %w", connectionID, err))
	}
	if conn.Expired(d.now()) {
		return Connection{}, notFound(connectionID)
	}
	return conn, nil
}

// Merge applies metadata to a live connection and refreshes its ttl. An empty
// value removes the key.
func (d *DAO) Merge(ctx context.Context, connectionID string, metadata map[string]string) (Connection, error) {
	now := d.now()

	var (
		sets    = []string{"#ttl = :ttl"}
		removes []string
		names   = map[string]*string{
			"#metadata": aws.String("metadata"),
			"#ttl":      aws.String("ttl"),
		}
		values = map[string]*dynamodb.AttributeValue{
			":ttl": unixValue(now.Add(d.ttl)),
			":now": unixValue(now),
		}
		i int
	)
	for k, v := range metadata {
		name := "#k" + strconv.Itoa(i)
		names[name] = aws.String(k)
		if v == "" {
			removes = append(removes, "#metadata."+name)
		} else {
			value := ":v" + strconv.Itoa(i)
			values[value] = &dynamodb.AttributeValue{S: aws.String(v)}
			sets = append(sets, "#metadata."+name+" = "+value)
		}
		i++
	}

	expr := "SET " + strings.Join(sets, ", ")
	if len(removes) > 0 {
		expr += " REMOVE " + strings.Join(removes, ", ")
	}

	key, err := dynamodbattribute.MarshalMap(map[string]string{"pk": connectionID})
	if err != nil {
		return Connection{}, registryError(connectionID, err)
	}

	out, err := d.api.UpdateItemWithContext(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(d.tableName),
		Key:                       key,
		UpdateExpression:          aws.String(expr),
		ConditionExpression:       aws.String("attribute_exists(pk) AND #ttl >= :now"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              aws.String(dynamodb.ReturnValueAllNew),
	})
	if err != nil {
		if aerr, ok := err.(awserr.Error); ok && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException {
			return Connection{}, notFound(connectionID)
		}
		return Connection{}, registryError(connectionID, fmt.Errorf("failed to merge metadata into connection %v: %w", connectionID, err))
	}

	var conn Connection
	if err := dynamodbattribute.UnmarshalMap(out.Attributes, &conn); err != nil {
		return Connection{}, registryError(connectionID, fmt.Errorf("failed to decode connection %v: %w", connectionID, err))
	}
	return conn, nil
}

// Remove deletes the connection. Removing an absent connection is not an error.
func (d *DAO) Remove(ctx context.Context, connectionID string) error {
	if err := d.table.Delete(connectionID).RunWithContext(ctx); err != nil {
		return registryError(connectionID, fmt.Errorf("failed to delete connection %v: %w", connectionID, err))
	}
	return nil
}

// List returns up to limit live connections. It is a scan and offers no
// consistency with concurrent writers. limit <= 0 returns everything.
func (d *DAO) List(ctx context.Context, limit int) ([]Connection, error) {
	return d.scan(ctx, "#ttl >= :now",
		map[string]*string{"#ttl": aws.String("ttl")},
		map[string]*dynamodb.AttributeValue{":now": unixValue(d.now())},
		limit,
	)
}

// FindByMetadata returns live connections whose metadata[key] equals value.
//
// This is a full table scan with a filter. A secondary index would be the right
// fix but requires promoting the key to a top level attribute.
func (d *DAO) FindByMetadata(ctx context.Context, key, value string, limit int) ([]Connection, error) {
	return d.scan(ctx, "#metadata.#key = :value AND #ttl >= :now",
		map[string]*string{
			"#metadata": aws.String("metadata"),
			"#key":      aws.String(key),
			"#ttl":      aws.String("ttl"),
		},
		map[string]*dynamodb.AttributeValue{
			":value": {S: aws.String(value)},
			":now":   unixValue(d.now()),
		},
		limit,
	)
}

// Expired returns rows whose ttl has passed but which DynamoDB has not yet
// removed.
func (d *DAO) Expired(ctx context.Context, limit int) ([]Connection, error) {
	return d.scan(ctx, "#ttl < :now",
		map[string]*string{"#ttl": aws.String("ttl")},
		map[string]*dynamodb.AttributeValue{":now": unixValue(d.now())},
		limit,
	)
}

func (d *DAO) scan(ctx context.Context, filter string, names map[string]*string, values map[string]*dynamodb.AttributeValue, limit int) ([]Connection, error) {
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(d.tableName),
		FilterExpression:          aws.String(filter),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	var (
		conns     []Connection
		decodeErr error
	)
	err := d.api.ScanPagesWithContext(ctx, input, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		var items []Connection
		if err := dynamodbattribute.UnmarshalListOfMaps(page.Items, &items); err != nil {
			decodeErr = err
			return false
		}
		conns = append(conns, items...)
		return limit <= 0 || len(conns) < limit
	})
	if err == nil {
		err = decodeErr
	}
	if err != nil {
		return nil, registryError("", fmt.Errorf("failed to scan connections table %v: %w", d.tableName, err))
	}

	if limit > 0 && len(conns) > limit {
		conns = conns[:limit]
	}
	return conns, nil
}

func unixValue(t time.Time) *dynamodb.AttributeValue {
	return &dynamodb.AttributeValue{N: aws.String(strconv.FormatInt(t.Unix(), 10))}
}
