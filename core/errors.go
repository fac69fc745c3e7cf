package core

import "errors"

// Domain validation errors
var (
	// ErrInvalidIntentNode indicates an IntentNode failed validation.
	ErrInvalidIntentNode = errors.New("invalid intent node")

	// ErrEmptyCode indicates the Code field is empty.
	ErrEmptyCode = errors.New("intent code cannot be empty")

	// ErrEmptyName indicates the Name field is empty.
	ErrEmptyName = errors.New("intent name cannot be empty")

	// ErrInvalidLevel indicates an unknown IntentLevel value.
	ErrInvalidLevel = errors.New("invalid intent level")

	// ErrInvalidKind indicates an unknown IntentKind value.
	ErrInvalidKind = errors.New("invalid intent kind")

	// ErrParentMismatch indicates the parent code does not agree with the level.
	ErrParentMismatch = errors.New("parent does not match level")
)
