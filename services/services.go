package services

import (
	"errors"
	"fmt"

	"github.com/surveyforge/surveyforge/storage"
	"gorm.io/gorm"
)

var (
	Associations *AssociationService
	Submissions  *SubmissionService
	Analytics    *AnalyticsService
	Search       *SearchIndexer
)

// Init wires the service singletons. Called once from main after the
// database, cache and file store are up; tests call it with their own
// backends.
func Init(gdb *gorm.DB, files storage.Store) {
	Associations = NewAssociationService(gdb)
	Submissions = NewSubmissionService(gdb, files)
	Analytics = NewAnalyticsService(gdb)
	if Search != nil {
		Search.Stop()
	}
	Search = NewSearchIndexer(gdb)
	Search.Start()
}

var (
	ErrNotFound           = errors.New("not found")
	ErrSurveyNotAccepting = errors.New("survey is not accepting responses")
)

// ValidationError carries per-field messages for 422 responses.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}
