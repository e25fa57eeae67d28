package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ID is an opaque identifier. Producers send either JSON numbers or strings;
// both decode to the same textual form. Integral numbers are written in
// canonical form, so 1.0 and 1e2 become "1" and "100".
type ID string

// UnmarshalJSON accepts a JSON string, number or null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = ID(canonicalNumber(n))
	return nil
}

func canonicalNumber(n json.Number) string {
	if _, err := n.Int64(); err == nil {
		return n.String()
	}
	r, ok := new(big.Rat).SetString(n.String())
	if !ok || !r.IsInt() {
		return n.String()
	}
	return r.Num().String()
}

// String returns the identifier text
func (id ID) String() string {
	return string(id)
}

// Job is one exam to analyse, decoded from a queue message
type Job struct {
	ExamID ID       `json:"exam_id"`
	UserID ID       `json:"user_id"`
	Images []string `json:"images"`
}

// DecodeJob validates and decodes a raw message body. Validation failures
// wrap ErrInvalidPayload.
func DecodeJob(body []byte) (*Job, error) {
	if err := validateJobBody(body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if strings.TrimSpace(job.ExamID.String()) == "" {
		return nil, fmt.Errorf("%w: exam_id is empty", ErrInvalidPayload)
	}

	if job.Images == nil {
		job.Images = []string{}
	}

	return &job, nil
}

// CompletionResult is the outcome of processing a Job
type CompletionResult struct {
	ExamID          ID
	Success         bool
	Message         string
	ImagesProcessed int
	Duration        time.Duration
}

// OutcomeKind classifies a notification attempt
type OutcomeKind string

// NotificationOutcome describes how the job-complete callback went
type NotificationOutcome struct {
	Kind       OutcomeKind
	StatusCode int
	Body       string
	Err        error
}

// Delivered reports whether the endpoint answered with 200
func (o NotificationOutcome) Delivered() bool {
	return o.Kind == OutcomeDelivered
}
