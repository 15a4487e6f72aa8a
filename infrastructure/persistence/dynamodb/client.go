// Package dynamodb stores agents and leads in two DynamoDB tables.
package dynamodb

import (
	"context"
	"errors"

	apperrors "referralnet-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"
)

// maxTransactItems is the DynamoDB limit on a single TransactWriteItems call
const maxTransactItems = 100

// API is the subset of the DynamoDB client the repositories use
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, params *dynamodb.TransactWriteItemsInput, optFns ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

var _ API = (*dynamodb.Client)(nil)

// Tables names the two tables the repositories read and write
type Tables struct {
	Agents      string
	Leads       string
	RegionIndex string
}

func errorCode(err error) string {
	var ae smithy.APIError
	if errors.As(err, &ae) {
		return ae.ErrorCode()
	}
	return ""
}

func isConditionalFailure(err error) bool {
	return errorCode(err) == "ConditionalCheckFailedException"
}

func isTransactionCanceled(err error) bool {
	return errorCode(err) == "TransactionCanceledException"
}

// classify turns SDK errors into typed application errors
func classify(operation string, err error) error {
	switch errorCode(err) {
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
		return apperrors.NewUnavailableError("dynamodb").WithCode("THROTTLED").WithCause(err)
	case "ResourceNotFoundException":
		return apperrors.NewDatabaseError(operation, err).WithCode("TABLE_NOT_FOUND")
	}
	return apperrors.NewDatabaseError(operation, err)
}
