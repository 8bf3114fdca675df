package domain

import "errors"

var (
	ErrMissingIdentity = errors.New("identity required")
	ErrInvalidIdentity = errors.New("invalid identity format")
	ErrAlreadyActive   = errors.New("identity already holds the active turn")
	ErrNotInLine       = errors.New("identity not in waiting line")
	ErrNoActiveTurn    = errors.New("no active turn")
	ErrNotYourTurn     = errors.New("not your turn")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnknownIntent   = errors.New("unknown device intent")
)
