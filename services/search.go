package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SearchIndexer maintains the search_documents table from a buffered queue.
// Best effort: the triggering request never waits, a full queue drops the
// job, and no ordering is guaranteed relative to the write that enqueued it.
type SearchIndexer struct {
	db   *gorm.DB
	jobs chan indexJob
	done chan struct{}
}

type indexJob struct {
	entityType string
	entityID   string
	content    string
	remove     bool
}

func NewSearchIndexer(gdb *gorm.DB) *SearchIndexer {
	return &SearchIndexer{
		db:   gdb,
		jobs: make(chan indexJob, 256),
		done: make(chan struct{}),
	}
}

func (ix *SearchIndexer) Start() {
	go ix.run()
}

// Stop drains the queue and waits for the worker to exit.
func (ix *SearchIndexer) Stop() {
	close(ix.jobs)
	<-ix.done
}

// Enqueue schedules an index refresh for an entity. Content parts are
// flattened into one searchable string.
func (ix *SearchIndexer) Enqueue(entityType, entityID string, parts ...string) {
	ix.push(indexJob{
		entityType: entityType,
		entityID:   entityID,
		content:    strings.TrimSpace(strings.Join(parts, " ")),
	})
}

// Remove schedules deletion of an entity's index row.
func (ix *SearchIndexer) Remove(entityType, entityID string) {
	ix.push(indexJob{entityType: entityType, entityID: entityID, remove: true})
}

func (ix *SearchIndexer) push(job indexJob) {
	select {
	case ix.jobs <- job:
	default:
		logrus.WithFields(logrus.Fields{
			"entity_type": job.entityType,
			"entity_id":   job.entityID,
		}).Warn("search index queue full, dropping job")
	}
}

func (ix *SearchIndexer) run() {
	defer close(ix.done)
	for job := range ix.jobs {
		var err error
		if job.remove {
			err = ix.db.Where("entity_type = ? AND entity_id = ?", job.entityType, job.entityID).
				Delete(&models.SearchDocument{}).Error
		} else {
			doc := models.SearchDocument{
				EntityType: job.entityType,
				EntityID:   job.entityID,
				Content:    job.content,
				UpdatedAt:  time.Now(),
			}
			err = ix.db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_type"}, {Name: "entity_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"content", "updated_at"}),
			}).Create(&doc).Error
		}
		if err != nil {
			logrus.WithError(err).WithFields(logrus.Fields{
				"entity_type": job.entityType,
				"entity_id":   job.entityID,
			}).Warn("search index update failed")
		}
	}
}

// Query runs a case-insensitive substring match over the index.
func (ix *SearchIndexer) Query(ctx context.Context, q string) ([]models.SearchDocument, error) {
	var docs []models.SearchDocument
	err := ix.db.WithContext(ctx).
		Where("lower(content) LIKE ?", "%"+strings.ToLower(q)+"%").
		Order("updated_at DESC").
		Limit(50).
		Find(&docs).Error
	return docs, err
}
