package model

import "errors"

var (
	// ErrNotFound возвращается хранилищами, когда сценарий или задача не найдены.
	ErrNotFound = errors.New("not found")

	ErrInvalidDifficulty  = errors.New("invalid difficulty: expected easy, medium or hard")
	ErrInvalidProtagonist = errors.New("invalid protagonist profile")
	ErrEmptyPhishingType  = errors.New("phishing type is required")
)
