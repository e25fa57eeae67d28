package domain

// Exam status values recorded while a job moves through the worker
const (
	ExamStatusProcessing = "PROCESSING"
	ExamStatusCompleted  = "COMPLETED"
)

// Notification outcome kinds
const (
	OutcomeDelivered      OutcomeKind = "delivered"
	OutcomeFailedStatus   OutcomeKind = "failed_status"
	OutcomeTransportError OutcomeKind = "transport_error"
)
