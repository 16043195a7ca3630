package workflow

import (
	"errors"
	"strings"

	"github.com/garyjia/agreement-validation/internal/domain/entity"
)

// Submissions is the submission lifecycle:
//
//	SUBMITTED -> AUTO_APPROVED -> ATTESTED
//	SUBMITTED -> PENDING_CFO_APPROVAL -> APPROVED -> ATTESTED
//	PENDING_CFO_APPROVAL -> REJECTED
var Submissions = NewBuilder().
	Permit(entity.SubmissionStatusSubmitted, TriggerAutoApprove, entity.SubmissionStatusAutoApproved).
	Permit(entity.SubmissionStatusSubmitted, TriggerEscalate, entity.SubmissionStatusPendingCFO).
	PermitIf(entity.SubmissionStatusPendingCFO, TriggerApprove, entity.SubmissionStatusApproved, requireReviewer).
	PermitIf(entity.SubmissionStatusPendingCFO, TriggerReject, entity.SubmissionStatusRejected, requireReviewer).
	PermitIf(entity.SubmissionStatusAutoApproved, TriggerAttest, entity.SubmissionStatusAttested, requireTxHash).
	PermitIf(entity.SubmissionStatusApproved, TriggerAttest, entity.SubmissionStatusAttested, requireTxHash).
	Build()

// Transition fires trigger on the submission lifecycle
func Transition(sub *entity.Submission, trigger Trigger) (entity.SubmissionStatus, error) {
	return Submissions.Fire(sub, trigger)
}

// Actions lists what can still happen to a submission in status
func Actions(status entity.SubmissionStatus) []Trigger {
	return Submissions.Actions(status)
}

// IsFinal reports whether a submission in status is settled
func IsFinal(status entity.SubmissionStatus) bool {
	return Submissions.IsFinal(status)
}

func requireReviewer(sub *entity.Submission) error {
	if strings.TrimSpace(sub.ReviewedBy) == "" {
		return errors.New("a reviewer is required")
	}
	return nil
}

func requireTxHash(sub *entity.Submission) error {
	if sub.TxHash == "" {
		return errors.New("no attestation transaction")
	}
	return nil
}
