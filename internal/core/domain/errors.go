package domain

import "errors"

var (
	ErrSessionNotFound  = errors.New("session code not found")
	ErrDuplicateCode    = errors.New("session code already pending")
	ErrPeerBusy         = errors.New("peer already paired")
	ErrNotConnected     = errors.New("identity has no peer")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrTargetNotLive    = errors.New("target identity is not live")
	ErrNoActiveSession  = errors.New("no active session")
	ErrAudioUnavailable = errors.New("audio capability not negotiated")
)
