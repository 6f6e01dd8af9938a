package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
	"gorm.io/datatypes"
)

type questionRequest struct {
	Name            string         `json:"name" validate:"required,max=255"`
	QuestionText    string         `json:"question_text" validate:"required"`
	Type            string         `json:"type" validate:"required"`
	Options         []string       `json:"options"`
	ValidationRules map[string]any `json:"validation_rules"`
	ImageURL        string         `json:"image_url" validate:"omitempty,url"`
	IsRequired      bool           `json:"is_required"`
	IsActive        *bool          `json:"is_active"`
	Metadata        map[string]any `json:"metadata"`
}

func CreateQuestion(w http.ResponseWriter, r *http.Request) {
	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	var qtype models.QuestionType
	if err := db.DB.Where("name = ?", req.Type).First(&qtype).Error; err != nil {
		httpx.ValidationFailed(w, map[string]string{"type": "unknown question type"})
		return
	}

	userID := r.Context().Value("userID").(uint)
	question := models.Question{
		UserID:          userID,
		Name:            req.Name,
		QuestionText:    req.QuestionText,
		QuestionTypeID:  qtype.ID,
		Options:         marshalOptions(req.Options),
		ValidationRules: marshalJSON(req.ValidationRules),
		ImageURL:        req.ImageURL,
		IsRequired:      req.IsRequired,
		IsActive:        true,
		Metadata:        marshalJSON(req.Metadata),
	}
	if req.IsActive != nil {
		question.IsActive = *req.IsActive
	}

	if err := db.DB.Create(&question).Error; err != nil {
		httpx.Internal(w, "db.create_question", err, logrus.Fields{"user_id": userID})
		return
	}
	question.QuestionType = qtype

	cache.InvalidateQuestion(r.Context(), question.PublicID, userID)
	services.Search.Enqueue("question", question.PublicID, question.Name, question.QuestionText)

	httpx.JSON(w, http.StatusCreated, question)
}

func ListQuestions(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)

	var questions []models.Question
	key := cache.QuestionListKey(userID)
	if !cache.GetJSON(r.Context(), key, &questions) {
		if err := db.DB.Preload("QuestionType").
			Where("user_id = ?", userID).
			Order("created_at DESC").
			Find(&questions).Error; err != nil {
			httpx.Internal(w, "db.list_questions", err, logrus.Fields{"user_id": userID})
			return
		}
		cache.SetJSON(r.Context(), key, questions, cache.LookupTTL)
	}

	httpx.JSON(w, http.StatusOK, questions)
}

func GetQuestion(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var question models.Question
	if cache.GetJSON(r.Context(), cache.QuestionKey(publicID), &question) {
		httpx.JSON(w, http.StatusOK, question)
		return
	}
	if err := db.DB.Preload("QuestionType").
		Where("public_id = ?", publicID).
		First(&question).Error; err != nil {
		httpx.NotFound(w, "question not found")
		return
	}
	cache.SetJSON(r.Context(), cache.QuestionKey(publicID), question, cache.LookupTTL)

	httpx.JSON(w, http.StatusOK, question)
}

func UpdateQuestion(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var req questionRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	var question models.Question
	if err := db.DB.Where("public_id = ?", publicID).First(&question).Error; err != nil {
		httpx.NotFound(w, "question not found")
		return
	}

	var qtype models.QuestionType
	if err := db.DB.Where("name = ?", req.Type).First(&qtype).Error; err != nil {
		httpx.ValidationFailed(w, map[string]string{"type": "unknown question type"})
		return
	}

	question.Name = req.Name
	question.QuestionText = req.QuestionText
	question.QuestionTypeID = qtype.ID
	question.Options = marshalOptions(req.Options)
	question.ValidationRules = marshalJSON(req.ValidationRules)
	question.ImageURL = req.ImageURL
	question.IsRequired = req.IsRequired
	if req.IsActive != nil {
		question.IsActive = *req.IsActive
	}
	if req.Metadata != nil {
		question.Metadata = marshalJSON(req.Metadata)
	}

	if err := db.DB.Save(&question).Error; err != nil {
		httpx.Internal(w, "db.update_question", err, logrus.Fields{"question": publicID})
		return
	}
	question.QuestionType = qtype

	cache.InvalidateQuestion(r.Context(), question.PublicID, question.UserID)
	services.Search.Enqueue("question", question.PublicID, question.Name, question.QuestionText)

	httpx.JSON(w, http.StatusOK, question)
}

func DeleteQuestion(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var question models.Question
	if err := db.DB.Where("public_id = ?", publicID).First(&question).Error; err != nil {
		httpx.NotFound(w, "question not found")
		return
	}

	if err := services.Associations.BulkDeleteQuestions(r.Context(), []string{publicID}); err != nil {
		httpx.Internal(w, "db.delete_question", err, logrus.Fields{"question": publicID})
		return
	}

	cache.InvalidateQuestion(r.Context(), publicID, question.UserID)
	services.Search.Remove("question", publicID)

	w.WriteHeader(http.StatusNoContent)
}

type bulkDeleteRequest struct {
	QuestionIDs []string `json:"question_ids" validate:"required,min=1"`
}

func BulkDeleteQuestions(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	var questions []models.Question
	if err := db.DB.Where("public_id IN ?", req.QuestionIDs).Find(&questions).Error; err != nil {
		httpx.Internal(w, "db.bulk_delete_questions.lookup", err, nil)
		return
	}

	if err := services.Associations.BulkDeleteQuestions(r.Context(), req.QuestionIDs); err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "question not found")
			return
		}
		httpx.Internal(w, "db.bulk_delete_questions", err, nil)
		return
	}

	for _, q := range questions {
		cache.InvalidateQuestion(r.Context(), q.PublicID, q.UserID)
		services.Search.Remove("question", q.PublicID)
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"message": "questions deleted",
		"deleted": len(questions),
	})
}

func ListQuestionTypes(w http.ResponseWriter, r *http.Request) {
	var types []models.QuestionType
	if err := db.DB.Order("id").Find(&types).Error; err != nil {
		httpx.Internal(w, "db.list_question_types", err, nil)
		return
	}
	httpx.JSON(w, http.StatusOK, types)
}

func marshalOptions(opts []string) datatypes.JSON {
	if opts == nil {
		return nil
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return nil
	}
	return datatypes.JSON(data)
}
