package workflow

// Trigger is an action that moves a submission between statuses
type Trigger string

const (
	TriggerAutoApprove Trigger = "auto_approve"
	TriggerEscalate    Trigger = "escalate"
	TriggerApprove     Trigger = "approve"
	TriggerReject      Trigger = "reject"
	TriggerAttest      Trigger = "attest"
)

func (t Trigger) String() string {
	return string(t)
}
