package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Survey lifecycle statuses. Only an active survey accepts submissions.
const (
	SurveyStatusDraft     = "draft"
	SurveyStatusActive    = "active"
	SurveyStatusPaused    = "paused"
	SurveyStatusCompleted = "completed"
	SurveyStatusArchived  = "archived"
)

const RespondentTypeAnonymous = "anonymous"

type User struct {
	gorm.Model
	Email        string  `gorm:"uniqueIndex" json:"email"`
	Name         string  `json:"name"`
	GoogleID     *string `gorm:"uniqueIndex" json:"-"`
	Picture      string  `json:"picture"`
	PasswordHash string  `json:"-"`
	Surveys      []Survey   `json:"-"`
	Questions    []Question `json:"-"`
}

// QuestionType is a closed reference set seeded at migration time. Config
// carries type-specific bounds (min/max length, option limits, allowed file
// extensions and sizes).
type QuestionType struct {
	gorm.Model
	Name                  string         `gorm:"uniqueIndex" json:"name"`
	DisplayName           string         `json:"display_name"`
	Description           string         `json:"description"`
	Config                datatypes.JSON `json:"config"`
	AllowsImages          bool           `json:"allows_images"`
	AllowsMultipleAnswers bool           `json:"allows_multiple_answers"`
}

type Survey struct {
	gorm.Model
	PublicID    string         `gorm:"uniqueIndex;size:36" json:"public_id"`
	UserID      uint           `gorm:"index" json:"user_id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Status      string         `gorm:"size:16;default:'draft'" json:"status"`
	IsPublic    bool           `json:"is_public"`
	Settings    datatypes.JSON `json:"settings"`
	StartsAt    *time.Time     `json:"starts_at"`
	EndsAt      *time.Time     `json:"ends_at"`

	// Derived counters, always recomputed from the association and answer
	// tables rather than incremented independently.
	QuestionCount int `json:"question_count"`
	ResponseCount int `json:"response_count"`

	SurveyQuestions []SurveyQuestion `json:"-"`
	Answers         []Answer         `json:"-"`
}

func (s *Survey) BeforeCreate(tx *gorm.DB) error {
	if s.PublicID == "" {
		s.PublicID = uuid.NewString()
	}
	if s.Status == "" {
		s.Status = SurveyStatusDraft
	}
	return nil
}

func (s *Survey) AcceptsResponses() bool {
	return s.Status == SurveyStatusActive
}

// Question is a reusable definition; the same question can be attached to any
// number of surveys through SurveyQuestion.
type Question struct {
	gorm.Model
	PublicID        string         `gorm:"uniqueIndex;size:36" json:"public_id"`
	UserID          uint           `gorm:"index" json:"user_id"`
	Name            string         `json:"name"`
	QuestionText    string         `json:"question_text"`
	QuestionTypeID  uint           `json:"question_type_id"`
	QuestionType    QuestionType   `json:"question_type"`
	Options         datatypes.JSON `json:"options"`
	ValidationRules datatypes.JSON `json:"validation_rules"`
	ImageURL        string         `json:"image_url"`
	Attachments     datatypes.JSON `json:"attachments"`
	IsRequired      bool           `json:"is_required"`
	IsActive        bool           `json:"is_active"`
	Metadata        datatypes.JSON `json:"metadata"`

	// How many surveys currently reference this question.
	UsageCount int `json:"usage_count"`
}

func (q *Question) BeforeCreate(tx *gorm.DB) error {
	if q.PublicID == "" {
		q.PublicID = uuid.NewString()
	}
	return nil
}

// OptionList decodes the ordered options into strings. Meaningful only for
// choice-like types; returns nil for anything else.
func (q *Question) OptionList() []string {
	if len(q.Options) == 0 {
		return nil
	}
	var opts []string
	if err := json.Unmarshal(q.Options, &opts); err != nil {
		return nil
	}
	return opts
}

// SurveyQuestion links a reusable question into a survey, with a per-survey
// render order, an activation toggle and survey-specific settings. No soft
// delete here: detach must free the unique (survey, question) slot for real.
type SurveyQuestion struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	SurveyID   uint           `gorm:"uniqueIndex:idx_survey_question" json:"survey_id"`
	QuestionID uint           `gorm:"uniqueIndex:idx_survey_question" json:"question_id"`
	Order      int            `gorm:"column:display_order" json:"order"`
	IsActive   bool           `json:"is_active"`
	Settings   datatypes.JSON `json:"settings"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`

	Question Question `json:"question"`
}

type Answer struct {
	gorm.Model
	PublicID       string         `gorm:"uniqueIndex;size:36" json:"public_id"`
	SurveyID       uint           `gorm:"index" json:"survey_id"`
	QuestionID     uint           `gorm:"index" json:"question_id"`
	RespondentID   string         `gorm:"index;size:36" json:"respondent_id"`
	RespondentType string         `gorm:"size:16;default:'anonymous'" json:"respondent_type"`
	AnswerText     *string        `json:"answer_text"`
	AnswerData     datatypes.JSON `json:"answer_data"`
	FileURL        *string        `json:"file_url"`
	Attachments    datatypes.JSON `json:"attachments"`
	IPAddress      string         `json:"ip_address"`
	UserAgent      string         `json:"user_agent"`
	Metadata       datatypes.JSON `json:"metadata"`

	// When the respondent submitted, distinct from row creation time.
	SubmittedAt time.Time `json:"submitted_at"`
}

func (a *Answer) BeforeCreate(tx *gorm.DB) error {
	if a.PublicID == "" {
		a.PublicID = uuid.NewString()
	}
	if a.RespondentType == "" {
		a.RespondentType = RespondentTypeAnonymous
	}
	if a.SubmittedAt.IsZero() {
		a.SubmittedAt = time.Now()
	}
	return nil
}

type Webhook struct {
	gorm.Model
	UserID   uint   `json:"user_id"`
	SurveyID uint   `json:"survey_id"`
	URL      string `json:"url"`
	Events   string `json:"events"`
	Secret   string `json:"-"`
}

// SearchDocument is the flattened text index row maintained by the background
// indexer. Best effort only.
type SearchDocument struct {
	ID         uint      `gorm:"primaryKey" json:"-"`
	EntityType string    `gorm:"size:16;uniqueIndex:idx_search_entity" json:"entity_type"`
	EntityID   string    `gorm:"size:36;uniqueIndex:idx_search_entity" json:"entity_id"`
	Content    string    `json:"content"`
	UpdatedAt  time.Time `json:"updated_at"`
}
