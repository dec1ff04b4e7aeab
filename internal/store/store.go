// Package store keeps catalog snapshots and the records they were inferred
// from, so past analyses can be listed, reopened and re-run.
package store

import (
	"errors"

	"github.com/yourorg/apiscout/pkg/types"
)

// Session statuses.
const (
	StatusImported = "imported"
	StatusAnalyzed = "analyzed"
	StatusFailed   = "failed"
)

var ErrNotFound = errors.New("session not found")

type Store interface {
	CreateSession(source, host string) (*types.Session, error)
	GetSession(id string) (*types.Session, error)
	UpdateSessionStatus(id, status string) error
	ListSessions() ([]types.Session, error)
	DeleteSession(id string) error

	SaveRecords(sessionID string, records []types.TrafficRecord) error
	GetRecords(sessionID string) ([]types.TrafficRecord, error)

	SaveCatalog(sessionID string, catalog *types.Catalog) error
	GetCatalog(sessionID string) (*types.Catalog, error)

	Close() error
}
