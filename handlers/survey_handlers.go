package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type surveyRequest struct {
	Name        string         `json:"name" validate:"required,max=255"`
	Description string         `json:"description"`
	Status      string         `json:"status" validate:"omitempty,oneof=draft active paused completed archived"`
	IsPublic    *bool          `json:"is_public"`
	Settings    map[string]any `json:"settings"`
	StartsAt    *time.Time     `json:"starts_at"`
	EndsAt      *time.Time     `json:"ends_at"`
}

func (req *surveyRequest) scheduleFields() map[string]string {
	if req.StartsAt != nil && req.EndsAt != nil && !req.EndsAt.After(*req.StartsAt) {
		return map[string]string{"ends_at": "must be after starts_at"}
	}
	return nil
}

func CreateSurvey(w http.ResponseWriter, r *http.Request) {
	var req surveyRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}
	if fields := req.scheduleFields(); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	userID := r.Context().Value("userID").(uint)
	survey := models.Survey{
		UserID:      userID,
		Name:        req.Name,
		Description: req.Description,
		Status:      req.Status,
		StartsAt:    req.StartsAt,
		EndsAt:      req.EndsAt,
		Settings:    marshalJSON(req.Settings),
	}
	if req.IsPublic != nil {
		survey.IsPublic = *req.IsPublic
	}

	if err := db.DB.Create(&survey).Error; err != nil {
		httpx.Internal(w, "db.create_survey", err, logrus.Fields{"user_id": userID})
		return
	}

	cache.InvalidateSurvey(r.Context(), survey.PublicID, userID)
	services.Search.Enqueue("survey", survey.PublicID, survey.Name, survey.Description)

	httpx.JSON(w, http.StatusCreated, survey)
}

func ListSurveys(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)

	var surveys []models.Survey
	key := cache.SurveyListKey(userID)
	if !cache.GetJSON(r.Context(), key, &surveys) {
		if err := db.DB.Where("user_id = ?", userID).
			Order("created_at DESC").
			Find(&surveys).Error; err != nil {
			httpx.Internal(w, "db.list_surveys", err, logrus.Fields{"user_id": userID})
			return
		}
		cache.SetJSON(r.Context(), key, surveys, cache.LookupTTL)
	}

	httpx.JSON(w, http.StatusOK, surveys)
}

func GetSurvey(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	survey, err := fetchSurvey(r.Context(), publicID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			httpx.NotFound(w, "survey not found")
			return
		}
		httpx.Internal(w, "db.get_survey", err, logrus.Fields{"survey": publicID})
		return
	}
	httpx.JSON(w, http.StatusOK, survey)
}

func UpdateSurvey(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var req surveyRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}
	if fields := req.scheduleFields(); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	survey.Name = req.Name
	survey.Description = req.Description
	if req.Status != "" {
		survey.Status = req.Status
	}
	if req.IsPublic != nil {
		survey.IsPublic = *req.IsPublic
	}
	if req.Settings != nil {
		survey.Settings = marshalJSON(req.Settings)
	}
	survey.StartsAt = req.StartsAt
	survey.EndsAt = req.EndsAt

	if err := db.DB.Save(&survey).Error; err != nil {
		httpx.Internal(w, "db.update_survey", err, logrus.Fields{"survey": publicID})
		return
	}

	cache.InvalidateSurvey(r.Context(), survey.PublicID, survey.UserID)
	services.Search.Enqueue("survey", survey.PublicID, survey.Name, survey.Description)

	httpx.JSON(w, http.StatusOK, survey)
}

func DeleteSurvey(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	if err := services.Associations.DeleteSurvey(r.Context(), publicID); err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "survey not found")
			return
		}
		httpx.Internal(w, "db.delete_survey", err, logrus.Fields{"survey": publicID})
		return
	}

	cache.InvalidateSurvey(r.Context(), publicID, survey.UserID)
	services.Search.Remove("survey", publicID)

	w.WriteHeader(http.StatusNoContent)
}

func PublishSurvey(w http.ResponseWriter, r *http.Request) {
	setSurveyStatus(w, r, models.SurveyStatusActive)
}

func UnpublishSurvey(w http.ResponseWriter, r *http.Request) {
	setSurveyStatus(w, r, models.SurveyStatusPaused)
}

func setSurveyStatus(w http.ResponseWriter, r *http.Request, status string) {
	publicID := mux.Vars(r)["id"]

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	survey.Status = status
	if err := db.DB.Save(&survey).Error; err != nil {
		httpx.Internal(w, "db.set_survey_status", err, logrus.Fields{"survey": publicID, "status": status})
		return
	}

	cache.InvalidateSurvey(r.Context(), survey.PublicID, survey.UserID)
	httpx.JSON(w, http.StatusOK, survey)
}

func DuplicateSurvey(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	userID := r.Context().Value("userID").(uint)

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	assocs, err := services.Associations.ListSurveyQuestions(r.Context(), publicID)
	if err != nil {
		httpx.Internal(w, "db.duplicate_survey.questions", err, logrus.Fields{"survey": publicID})
		return
	}

	dup := models.Survey{
		UserID:      userID,
		Name:        "Copy of " + survey.Name,
		Description: survey.Description,
		Status:      models.SurveyStatusDraft,
		IsPublic:    survey.IsPublic,
		Settings:    survey.Settings,
		StartsAt:    survey.StartsAt,
		EndsAt:      survey.EndsAt,
	}
	if err := db.DB.Create(&dup).Error; err != nil {
		httpx.Internal(w, "db.duplicate_survey", err, logrus.Fields{"survey": publicID})
		return
	}

	questionIDs := make([]string, 0, len(assocs))
	settings := make(map[string]services.AttachOptions, len(assocs))
	for _, assoc := range assocs {
		order := assoc.Order
		active := assoc.IsActive
		questionIDs = append(questionIDs, assoc.Question.PublicID)
		settings[assoc.Question.PublicID] = services.AttachOptions{
			Order:    &order,
			IsActive: &active,
			Settings: assoc.Settings,
		}
	}
	if len(questionIDs) > 0 {
		if err := services.Associations.BulkAttach(r.Context(), dup.PublicID, questionIDs, settings); err != nil {
			httpx.Internal(w, "db.duplicate_survey.attach", err, logrus.Fields{"survey": publicID})
			return
		}
	}

	cache.InvalidateSurvey(r.Context(), dup.PublicID, userID)
	services.Search.Enqueue("survey", dup.PublicID, dup.Name, dup.Description)

	httpx.JSON(w, http.StatusCreated, dup)
}

// AccessPublicSurvey serves the respondent-facing definition: the survey plus
// its active questions in render order. Only public, active surveys resolve.
func AccessPublicSurvey(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["publicId"]

	survey, err := fetchSurvey(r.Context(), publicID)
	if err != nil || !survey.IsPublic || !survey.AcceptsResponses() {
		httpx.NotFound(w, "survey not available")
		return
	}

	assocs, err := services.Associations.ListSurveyQuestions(r.Context(), publicID)
	if err != nil {
		httpx.Internal(w, "db.public_survey.questions", err, logrus.Fields{"survey": publicID})
		return
	}
	questions := make([]models.SurveyQuestion, 0, len(assocs))
	for _, assoc := range assocs {
		if assoc.IsActive && assoc.Question.IsActive {
			questions = append(questions, assoc)
		}
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"survey":    survey,
		"questions": questions,
	})
}

func ListSurveyQuestions(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]
	assocs, err := services.Associations.ListSurveyQuestions(r.Context(), publicID)
	if err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "survey not found")
			return
		}
		httpx.Internal(w, "db.list_survey_questions", err, logrus.Fields{"survey": publicID})
		return
	}
	httpx.JSON(w, http.StatusOK, assocs)
}

type assignSettings struct {
	Order    *int           `json:"order"`
	IsActive *bool          `json:"is_active"`
	Settings map[string]any `json:"settings"`
}

type bulkAssignRequest struct {
	QuestionIDs []string                  `json:"question_ids" validate:"required,min=1"`
	Settings    map[string]assignSettings `json:"settings"`
}

func BulkAssignQuestions(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var req bulkAssignRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	opts := make(map[string]services.AttachOptions, len(req.Settings))
	for qid, s := range req.Settings {
		opts[qid] = services.AttachOptions{
			Order:    s.Order,
			IsActive: s.IsActive,
			Settings: marshalJSON(s.Settings),
		}
	}

	if err := services.Associations.BulkAttach(r.Context(), publicID, req.QuestionIDs, opts); err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "survey or question not found")
			return
		}
		httpx.Internal(w, "db.bulk_assign", err, logrus.Fields{"survey": publicID})
		return
	}

	invalidateAssociationCaches(r.Context(), publicID, req.QuestionIDs)
	httpx.JSON(w, http.StatusOK, map[string]string{"message": "questions assigned"})
}

func DetachQuestion(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	surveyID, questionID := vars["id"], vars["questionId"]

	if err := services.Associations.Detach(r.Context(), surveyID, questionID); err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "association not found")
			return
		}
		httpx.Internal(w, "db.detach_question", err, logrus.Fields{
			"survey":   surveyID,
			"question": questionID,
		})
		return
	}

	invalidateAssociationCaches(r.Context(), surveyID, []string{questionID})
	w.WriteHeader(http.StatusNoContent)
}

// fetchSurvey is the read-through lookup by public id.
func fetchSurvey(ctx context.Context, publicID string) (*models.Survey, error) {
	var survey models.Survey
	if cache.GetJSON(ctx, cache.SurveyKey(publicID), &survey) {
		return &survey, nil
	}
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		return nil, err
	}
	cache.SetJSON(ctx, cache.SurveyKey(publicID), survey, cache.LookupTTL)
	return &survey, nil
}

// invalidateAssociationCaches drops both sides of an attach/detach: the
// survey (question_count changed) and each question (usage_count changed).
func invalidateAssociationCaches(ctx context.Context, surveyPublicID string, questionPublicIDs []string) {
	var survey models.Survey
	if err := db.DB.Where("public_id = ?", surveyPublicID).First(&survey).Error; err == nil {
		cache.InvalidateSurvey(ctx, survey.PublicID, survey.UserID)
	}
	for _, qid := range questionPublicIDs {
		var question models.Question
		if err := db.DB.Where("public_id = ?", qid).First(&question).Error; err == nil {
			cache.InvalidateQuestion(ctx, question.PublicID, question.UserID)
		}
	}
}

func marshalJSON(m map[string]any) datatypes.JSON {
	if m == nil {
		return nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
