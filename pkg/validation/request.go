package validation

import (
	"fmt"
	"strings"

	"github.com/dock-ai/registry/pkg/apperrors"
	"github.com/dock-ai/registry/pkg/models"
)

const (
	msgInvalidRequest = "Invalid request"
	msgRequired       = "Required"
)

// CheckSyncRequest performs the request-level checks of a full sync. It fails
// when the entities array is missing or any entity lacks entity_id or name;
// nothing in the batch is processed in that case.
func CheckSyncRequest(entities []models.EntityInput) error {
	verr := apperrors.NewValidationError(msgInvalidRequest)
	if entities == nil {
		verr.Add("entities", msgRequired)
		return verr
	}
	for i := range entities {
		checkIdentity(verr, fmt.Sprintf("entities[%d]", i), &entities[i])
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

// CheckOperations performs the request-level checks of an operations API
// call: array present, at most maxOps entries, known actions, and required
// identity fields per action.
func CheckOperations(ops []models.Operation, maxOps int) error {
	if ops == nil {
		verr := apperrors.NewValidationError(msgInvalidRequest)
		verr.Add("operations", msgRequired)
		return verr
	}
	if len(ops) > maxOps {
		verr := apperrors.NewValidationError("Too many operations")
		verr.Add("operations", fmt.Sprintf("Maximum %d operations per request, got %d", maxOps, len(ops)))
		verr.Cause = apperrors.ErrTooManyOperations
		return verr
	}

	verr := apperrors.NewValidationError(msgInvalidRequest)
	for i := range ops {
		op := &ops[i]
		field := fmt.Sprintf("operations[%d]", i)
		switch op.Action {
		case models.SyncActionUpsert:
			if op.Entity == nil {
				verr.Add(field+".entity", msgRequired)
				continue
			}
			checkIdentity(verr, field+".entity", op.Entity)
		case models.SyncActionDelete:
			if strings.TrimSpace(op.TargetEntityID()) == "" {
				verr.Add(field+".entity_id", msgRequired)
			}
		default:
			verr.Add(field+".action", `Must be one of: "upsert", "delete"`)
		}
	}
	if verr.HasErrors() {
		return verr
	}
	return nil
}

func checkIdentity(verr *apperrors.ValidationError, prefix string, in *models.EntityInput) {
	if strings.TrimSpace(in.EntityID) == "" {
		verr.Add(prefix+".entity_id", msgRequired)
	}
	if strings.TrimSpace(in.Name) == "" {
		verr.Add(prefix+".name", msgRequired)
	}
}

// CheckSubmitRequest validates the body of /v1/submit and returns the
// normalized domain.
func CheckSubmitRequest(domain string) (string, error) {
	if strings.TrimSpace(domain) == "" {
		verr := apperrors.NewValidationError(msgInvalidRequest)
		verr.Add("domain", msgRequired)
		return "", verr
	}
	normalized, err := NormalizeDomain(domain)
	if err != nil {
		verr := apperrors.NewValidationError(msgInvalidRequest)
		verr.Add("domain", "Invalid domain")
		verr.Cause = err
		return "", verr
	}
	return normalized, nil
}
