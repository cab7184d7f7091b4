package models

import "errors"

var (
	// ErrStorageUnavailable means the storage health probe failed before a
	// bulk operation; nothing was written and the attempt may be retried.
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrAuthExpired means the server rejected our credentials (HTTP 401).
	// Stored credentials are cleared before this is returned; retrying is
	// pointless until the user signs in again.
	ErrAuthExpired = errors.New("authentication expired")

	// ErrSessionActive is returned when a new session is started while one
	// is already open for the same family.
	ErrSessionActive = errors.New("a session is already active")

	// ErrNoSession is returned by session-scoped operations outside an
	// active session.
	ErrNoSession = errors.New("no active session")

	// ErrUnknownFamily is returned for a family name the engine does not track.
	ErrUnknownFamily = errors.New("unknown record family")

	// ErrOffline means the connectivity probe reported no network before any
	// request was attempted. The work stays queued for a later pass.
	ErrOffline = errors.New("device is offline")
)
