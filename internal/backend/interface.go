package backend

import (
	"context"

	"slipdash/internal/services"
	"slipdash/internal/session"
	"slipdash/internal/sheets"
	"slipdash/internal/storage"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult is the persistence stack the commands run on.
type BackendResult struct {
	Type BackendType

	// Ledger records saved reviews and their export state.
	Ledger storage.Ledger
	// Credentials is the persistent session tier.
	Credentials session.Store
	// Publisher is nil when AMQP is not configured or unreachable.
	Publisher services.Publisher
	// Writer is the sheet exporter, or an in-memory one without a spreadsheet.
	Writer sheets.ReviewWriter

	Ping    func(ctx context.Context) error
	Cleanup CleanupFunc
}

// Shared reports whether other processes see the same ledger, so a separate
// worker can sync it.
func (r *BackendResult) Shared() bool { return r.Type == SQLiteBackend }

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
