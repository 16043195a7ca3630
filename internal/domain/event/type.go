package event

// Type identifies a domain event
type Type string

// Submission lifecycle events. The subject is the submission ID.
const (
	TypeSubmissionCreated      Type = "submission.created"
	TypeSubmissionAutoApproved Type = "submission.auto_approved"
	TypeSubmissionEscalated    Type = "submission.escalated"
	TypeSubmissionApproved     Type = "submission.approved"
	TypeSubmissionRejected     Type = "submission.rejected"
	TypeSubmissionAttested     Type = "submission.attested"
)

// Receipt extraction events. The subject is the session ID.
const (
	TypeExtractionCompleted Type = "extraction.completed"
	TypeExtractionFailed    Type = "extraction.failed"
)

func (t Type) String() string {
	return string(t)
}
