package domain

import "errors"

var (
	// ErrInvalidPayload is returned when a message body cannot be decoded into a Job
	ErrInvalidPayload = errors.New("invalid job payload")

	// ErrDeliveriesClosed is returned when the broker closes the delivery stream
	ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")
)
