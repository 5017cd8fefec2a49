package messagedao

import "github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"

// Build creates a messages DAO using the standard table name for env.
func Build(api dynamodbiface.DynamoDBAPI, env string, opts ...Option) *DAO {
	return New(api, TableName(env), opts...)
}

func TableName(env string) string {
	return env + "-sundae-ws--messages"
}
