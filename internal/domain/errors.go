package domain

import "errors"

// Sentinel errors for the chat engine. These provide consistent, checkable
// errors for the failure modes callers are expected to branch on.
var (
	// ErrLoginRequired is returned when the user tries to open the chat
	// surface without being logged in.
	ErrLoginRequired = errors.New("login required")

	// ErrAuthMissing indicates no bearer token was available for an
	// operation that needs one (connect, directory fetch).
	ErrAuthMissing = errors.New("no access token available")

	// ErrConnectFailed indicates the underlying transport rejected the
	// connection attempt.
	ErrConnectFailed = errors.New("transport connect failed")

	// ErrSubscribeFailed indicates a room subscription could not be
	// established, usually because the connection is not in the
	// Connected state.
	ErrSubscribeFailed = errors.New("room subscribe failed")

	// ErrSendFailed is localized to a single message: the optimistic
	// entry stays in the log marked failed.
	ErrSendFailed = errors.New("message send failed")

	// ErrFetchFailed covers directory and history fetch failures.
	ErrFetchFailed = errors.New("fetch failed")

	// ErrSuperseded is internal: a suspended operation's result was
	// discarded because state moved on. It is never surfaced to the user.
	ErrSuperseded = errors.New("operation superseded")
)
