// Package file provides file-based persistence for compositions, executions
// and schedules. Each record is one JSON document under the root directory.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/stepflow/stepflow/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local file system.
type Persistence struct {
	root            string
	compositionRepo *CompositionRepository
	executionRepo   *ExecutionRepository
	scheduleRepo    *ScheduleRepository
}

// NewPersistence creates a file persistence rooted at the given directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:            cleanRoot,
		compositionRepo: NewCompositionRepository(cleanRoot),
		executionRepo:   NewExecutionRepository(cleanRoot),
		scheduleRepo:    NewScheduleRepository(cleanRoot),
	}
}

// Close performs any necessary cleanup. Nothing to release for files.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) CompositionRepository() persistence.CompositionRepository {
	return fp.compositionRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return fp.scheduleRepo
}

// validateRecordID rejects identifiers that could escape the storage root.
func validateRecordID(id string) error {
	if id == "" {
		return persistence.ErrInvalidRecordID
	}

	if strings.Contains(id, "..") || strings.Contains(id, "/") || strings.Contains(id, "\\") {
		return persistence.ErrInvalidRecordID
	}

	return nil
}
