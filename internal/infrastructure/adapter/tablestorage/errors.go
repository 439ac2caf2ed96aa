package tablestorage

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"

	errs "github.com/amirhossein-jamali/workscope/internal/domain/error"
)

// mapError translates DynamoDB errors into domain errors, keeping the original reachable
func mapError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for _, reason := range canceled.CancellationReasons {
			if aws.ToString(reason.Code) == "ConditionalCheckFailed" {
				return fmt.Errorf("%w: %s: %w", errs.ErrDuplicateEntity, operation, err)
			}
		}
		return fmt.Errorf("%w: %s: %w", errs.ErrConstraintViolation, operation, err)
	}

	var conditional *types.ConditionalCheckFailedException
	if errors.As(err, &conditional) {
		return fmt.Errorf("%w: %s: %w", errs.ErrDuplicateEntity, operation, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ValidationException":
			return fmt.Errorf("%w: %s: %w", errs.ErrInvalidRequest, operation, err)
		case "ItemCollectionSizeLimitExceededException":
			return fmt.Errorf("%w: %s: %w", errs.ErrConstraintViolation, operation, err)
		}
	}

	return fmt.Errorf("%w: %s: %w", errs.ErrBackendUnavailable, operation, err)
}

func isTableNotFound(err error) bool {
	var notFound *types.ResourceNotFoundException
	return errors.As(err, &notFound)
}
