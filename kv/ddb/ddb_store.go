// Package ddb provides a DynamoDB implementation of the kv.Store
// interface.
//
// DynamoDB conditional writes supply the atomic compare-and-swap that
// plain object storage lacks, which makes this the substrate of choice
// when multiple registry processes share one content store.
//
// Table schema:
//   - Partition key: k (string), the sharded registry key
//   - Attribute:     v (string), the current value
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name arke-tips \
//	  --attribute-definitions AttributeName=k,AttributeType=S \
//	  --key-schema AttributeName=k,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
package ddb

import (
	"context"
	"errors"
	"fmt"

	"github.com/Arke-Institute/arke/kv"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Client is the interface for the DynamoDB operations the store uses.
// It exists so tests can substitute a mock.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// Store implements kv.Store backed by a DynamoDB table.
type Store struct {
	client    Client
	tableName string
}

// NewStore creates a DynamoDB-backed CAS store.
func NewStore(client Client, tableName string) *Store {
	return &Store{client: client, tableName: tableName}
}

// Get returns the current value using a strongly consistent read.
func (s *Store) Get(ctx context.Context, key string) (string, error) {
	resp, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return "", fmt.Errorf("ddb: get %s: %w", key, err)
	}
	if resp.Item == nil {
		return "", kv.ErrNotFound
	}
	return itemValue(resp.Item)
}

// CompareAndSwap atomically sets key to next if the current value
// equals expected, using a DynamoDB conditional write.
func (s *Store) CompareAndSwap(ctx context.Context, key, expected, next string) error {
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"k": &types.AttributeValueMemberS{Value: key},
			"v": &types.AttributeValueMemberS{Value: next},
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	}

	if expected == "" {
		input.ConditionExpression = aws.String("attribute_not_exists(k)")
	} else {
		input.ConditionExpression = aws.String("v = :expected")
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberS{Value: expected},
		}
	}

	_, err := s.client.PutItem(ctx, input)
	if err == nil {
		return nil
	}

	var condErr *types.ConditionalCheckFailedException
	if !errors.As(err, &condErr) {
		return fmt.Errorf("ddb: put %s: %w", key, err)
	}

	actual := ""
	if condErr.Item != nil {
		if v, verr := itemValue(condErr.Item); verr == nil {
			actual = v
		}
	} else {
		// Older table configurations do not return the old item with
		// the exception; fall back to a consistent read.
		if v, gerr := s.Get(ctx, key); gerr == nil {
			actual = v
		}
	}
	return &kv.CASError{Key: key, Expected: expected, Actual: actual}
}

func itemValue(item map[string]types.AttributeValue) (string, error) {
	attr, ok := item["v"].(*types.AttributeValueMemberS)
	if !ok {
		return "", errors.New("ddb: invalid v attribute")
	}
	return attr.Value, nil
}
