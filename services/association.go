package services

import (
	"context"

	"github.com/surveyforge/surveyforge/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AssociationService maintains the survey-question many-to-many link, its
// per-survey ordering and the derived counters on both sides.
type AssociationService struct {
	db *gorm.DB
}

func NewAssociationService(gdb *gorm.DB) *AssociationService {
	return &AssociationService{db: gdb}
}

// AttachOptions override the defaults of "append at end, active, no
// settings".
type AttachOptions struct {
	Order    *int
	IsActive *bool
	Settings datatypes.JSON
}

// Attach links a question into a survey. Attaching an already linked pair is
// a no-op.
func (s *AssociationService) Attach(ctx context.Context, surveyPublicID, questionPublicID string, opts AttachOptions) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey, err := findSurveyTx(tx, surveyPublicID)
		if err != nil {
			return err
		}
		question, err := findQuestionTx(tx, questionPublicID)
		if err != nil {
			return err
		}
		return attachTx(tx, survey, question, opts)
	})
}

// BulkAttach links several questions in one atomic unit. Any missing survey
// or question rejects the whole batch, nothing is persisted.
func (s *AssociationService) BulkAttach(ctx context.Context, surveyPublicID string, questionPublicIDs []string, settings map[string]AttachOptions) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey, err := findSurveyTx(tx, surveyPublicID)
		if err != nil {
			return err
		}
		for _, qid := range questionPublicIDs {
			question, err := findQuestionTx(tx, qid)
			if err != nil {
				return err
			}
			if err := attachTx(tx, survey, question, settings[qid]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Detach removes the pair and restores both counters from relational truth.
func (s *AssociationService) Detach(ctx context.Context, surveyPublicID, questionPublicID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey, err := findSurveyTx(tx, surveyPublicID)
		if err != nil {
			return err
		}
		question, err := findQuestionTx(tx, questionPublicID)
		if err != nil {
			return err
		}
		res := tx.Where("survey_id = ? AND question_id = ?", survey.ID, question.ID).
			Delete(&models.SurveyQuestion{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := refreshUsageCounts(tx, question.ID); err != nil {
			return err
		}
		return refreshQuestionCount(tx, survey.ID)
	})
}

// BulkDeleteQuestions removes the questions themselves, cascading their
// associations and fixing question_count on every survey that referenced
// them. Rejects the whole batch if any id is unknown.
func (s *AssociationService) BulkDeleteQuestions(ctx context.Context, questionPublicIDs []string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		affected := map[uint]bool{}
		for _, qid := range questionPublicIDs {
			question, err := findQuestionTx(tx, qid)
			if err != nil {
				return err
			}

			var surveyIDs []uint
			if err := tx.Model(&models.SurveyQuestion{}).
				Where("question_id = ?", question.ID).
				Pluck("survey_id", &surveyIDs).Error; err != nil {
				return err
			}
			for _, id := range surveyIDs {
				affected[id] = true
			}

			if err := tx.Where("question_id = ?", question.ID).
				Delete(&models.SurveyQuestion{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(question).Error; err != nil {
				return err
			}
		}
		for surveyID := range affected {
			if err := refreshQuestionCount(tx, surveyID); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteSurvey cascades a survey removal: answers and associations go away
// for real, previously attached questions get their usage recomputed.
func (s *AssociationService) DeleteSurvey(ctx context.Context, surveyPublicID string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey, err := findSurveyTx(tx, surveyPublicID)
		if err != nil {
			return err
		}

		var questionIDs []uint
		if err := tx.Model(&models.SurveyQuestion{}).
			Where("survey_id = ?", survey.ID).
			Pluck("question_id", &questionIDs).Error; err != nil {
			return err
		}

		if err := tx.Where("survey_id = ?", survey.ID).
			Delete(&models.SurveyQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("survey_id = ?", survey.ID).
			Delete(&models.Answer{}).Error; err != nil {
			return err
		}
		if err := tx.Delete(survey).Error; err != nil {
			return err
		}
		return refreshUsageCounts(tx, questionIDs...)
	})
}

// ListSurveyQuestions returns the associations in render order with their
// question definitions.
func (s *AssociationService) ListSurveyQuestions(ctx context.Context, surveyPublicID string) ([]models.SurveyQuestion, error) {
	survey, err := findSurveyTx(s.db.WithContext(ctx), surveyPublicID)
	if err != nil {
		return nil, err
	}
	var assocs []models.SurveyQuestion
	if err := s.db.WithContext(ctx).
		Where("survey_id = ?", survey.ID).
		Order("display_order ASC").
		Preload("Question.QuestionType").
		Find(&assocs).Error; err != nil {
		return nil, err
	}
	return assocs, nil
}

func attachTx(tx *gorm.DB, survey *models.Survey, question *models.Question, opts AttachOptions) error {
	var existing models.SurveyQuestion
	err := tx.Where("survey_id = ? AND question_id = ?", survey.ID, question.ID).
		First(&existing).Error
	if err == nil {
		// Already attached, keep the single row and the counters as they are.
		return nil
	}
	if err != gorm.ErrRecordNotFound {
		return err
	}

	order := 0
	if opts.Order != nil {
		order = *opts.Order
	} else {
		var max int
		if err := tx.Model(&models.SurveyQuestion{}).
			Where("survey_id = ?", survey.ID).
			Select("COALESCE(MAX(display_order), 0)").
			Scan(&max).Error; err != nil {
			return err
		}
		order = max + 1
	}

	active := true
	if opts.IsActive != nil {
		active = *opts.IsActive
	}

	assoc := models.SurveyQuestion{
		SurveyID:   survey.ID,
		QuestionID: question.ID,
		Order:      order,
		IsActive:   active,
		Settings:   opts.Settings,
	}
	if err := tx.Create(&assoc).Error; err != nil {
		return err
	}
	if err := refreshUsageCounts(tx, question.ID); err != nil {
		return err
	}
	return refreshQuestionCount(tx, survey.ID)
}

// refreshQuestionCount rewrites survey.question_count from the live count of
// active associations. Derived, never incremented in place.
func refreshQuestionCount(tx *gorm.DB, surveyID uint) error {
	var count int64
	if err := tx.Model(&models.SurveyQuestion{}).
		Where("survey_id = ? AND is_active = ?", surveyID, true).
		Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&models.Survey{}).Where("id = ?", surveyID).
		UpdateColumn("question_count", count).Error
}

// refreshUsageCounts rewrites usage_count for each question from the number
// of surveys currently referencing it. Cannot go negative by construction.
func refreshUsageCounts(tx *gorm.DB, questionIDs ...uint) error {
	for _, id := range questionIDs {
		var count int64
		if err := tx.Model(&models.SurveyQuestion{}).
			Where("question_id = ?", id).
			Count(&count).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Question{}).Where("id = ?", id).
			UpdateColumn("usage_count", count).Error; err != nil {
			return err
		}
	}
	return nil
}

// refreshResponseCount rewrites survey.response_count from the answers table.
func refreshResponseCount(tx *gorm.DB, surveyID uint) error {
	var count int64
	if err := tx.Model(&models.Answer{}).
		Where("survey_id = ?", surveyID).
		Count(&count).Error; err != nil {
		return err
	}
	return tx.Model(&models.Survey{}).Where("id = ?", surveyID).
		UpdateColumn("response_count", count).Error
}

func findSurveyTx(tx *gorm.DB, publicID string) (*models.Survey, error) {
	var survey models.Survey
	if err := tx.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &survey, nil
}

func findQuestionTx(tx *gorm.DB, publicID string) (*models.Question, error) {
	var question models.Question
	if err := tx.Where("public_id = ?", publicID).First(&question).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &question, nil
}
