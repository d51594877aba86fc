package meem

import "errors"

// Errors returned by the adapter. Check for them with errors.Is.
var (
	// ErrConnectionFailed is returned when the transport refuses or fails the connect step.
	ErrConnectionFailed = errors.New("meem: connection failed")

	// ErrNotConnected is returned when publishing without a broker connection.
	ErrNotConnected = errors.New("meem: not connected")

	// ErrConnected is returned when the identity is changed on a live connection.
	ErrConnected = errors.New("meem: adapter is connected")

	// ErrPublishFailed is returned when the transport fails a publish.
	ErrPublishFailed = errors.New("meem: publish failed")

	// ErrSubscribeFailed wraps transport subscribe errors. Connect logs it and carries on.
	ErrSubscribeFailed = errors.New("meem: subscribe failed")

	// ErrFacetIndex is returned for a facet index outside the registry.
	ErrFacetIndex = errors.New("meem: facet index out of range")

	// ErrInvalidFacet is returned when a facet descriptor cannot be used in a topic.
	ErrInvalidFacet = errors.New("meem: invalid facet")

	// ErrInvalidTopic is returned when a topic segment is empty or holds a separator or wildcard.
	ErrInvalidTopic = errors.New("meem: invalid topic segment")

	// ErrTopicTooLong is returned when a topic would not fit the scratch buffer.
	ErrTopicTooLong = errors.New("meem: topic exceeds buffer capacity")

	// ErrPayloadTooLarge is returned when a payload would not fit the scratch buffer.
	ErrPayloadTooLarge = errors.New("meem: payload exceeds buffer capacity")

	// ErrScratchBusy is returned when the scratch buffer is already held by another operation.
	ErrScratchBusy = errors.New("meem: scratch buffer in use")

	// ErrTransportBound is returned when a transport already delivers to another adapter.
	ErrTransportBound = errors.New("meem: transport already bound to an adapter")

	// ErrNoTransport is returned by New without a transport.
	ErrNoTransport = errors.New("meem: no transport")

	// ErrNoHandler is returned by New without an inbound handler.
	ErrNoHandler = errors.New("meem: no inbound handler")
)
