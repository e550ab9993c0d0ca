package session

import "errors"

var (
	// ErrNoVoiceTarget means the join requester has no voice target to
	// connect to.
	ErrNoVoiceTarget = errors.New("requester has no voice target")

	// ErrNotJoined means the tenant has no live voice session.
	ErrNotJoined = errors.New("tenant has no live voice session")

	// ErrNothingToSkip means the queue was empty and nothing was playing.
	ErrNothingToSkip = errors.New("nothing to skip")
)
