// Package storage defines the Storage interface: a contract that any
// database backend must satisfy to work with this application.
//
// The registration and chat-support actions depend only on this
// interface, so tests can run them against a temporary SQLite file and a
// different database only needs a new implementation.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/studyabroad-api/internal/types"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("storage: not found")

	// ErrDuplicate is returned when an insert violates a unique key
	// (applicant email, chat message id).
	ErrDuplicate = errors.New("storage: duplicate")
)

// Storage is the database contract.
type Storage interface {
	// CreateApplicant inserts a new applicant and returns the generated ID.
	// Returns ErrDuplicate if the email is already registered.
	CreateApplicant(ctx context.Context, a types.Applicant) (int64, error)

	// GetApplicantByID returns ErrNotFound if there is no such applicant.
	GetApplicantByID(ctx context.Context, id int64) (types.Applicant, error)

	// GetApplicantByEmail returns ErrNotFound if there is no such applicant.
	GetApplicantByEmail(ctx context.Context, email string) (types.Applicant, error)

	// GetApplicants returns every applicant, oldest first.
	// Returns an empty slice (not nil) if there are none.
	GetApplicants(ctx context.Context) ([]types.Applicant, error)

	// SaveChatMessage stores a chat message. Returns ErrDuplicate if a
	// message with the same ID was already stored.
	SaveChatMessage(ctx context.Context, m types.ChatMessage) error

	// GetChatMessages returns the messages of a client's conversation in
	// the order they were stored.
	GetChatMessages(ctx context.Context, clientID string) ([]types.ChatMessage, error)
}
