package repository

import "errors"

var (
	// ErrInvalidDrawingID indicates an empty or unsafe drawing identifier
	ErrInvalidDrawingID = errors.New("invalid drawing ID")

	// ErrArtifactNotFound indicates the artifact was never saved
	ErrArtifactNotFound = errors.New("artifact not found")

	// ErrArtifactCorrupted indicates a stored artifact could not be decoded
	ErrArtifactCorrupted = errors.New("artifact corrupted")

	// ErrRepositoryUnavailable indicates the backing store failed
	ErrRepositoryUnavailable = errors.New("repository unavailable")
)
