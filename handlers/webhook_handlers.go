package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
)

type webhookRequest struct {
	SurveyID string `json:"survey_id" validate:"required"`
	URL      string `json:"url" validate:"required,url"`
	Events   string `json:"events"`
	Secret   string `json:"secret"`
}

func CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if fields := validateStruct(&req); fields != nil {
		httpx.ValidationFailed(w, fields)
		return
	}

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", req.SurveyID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	userID := r.Context().Value("userID").(uint)
	webhook := models.Webhook{
		UserID:   userID,
		SurveyID: survey.ID,
		URL:      req.URL,
		Events:   req.Events,
		Secret:   req.Secret,
	}

	if err := db.DB.Create(&webhook).Error; err != nil {
		httpx.Internal(w, "db.create_webhook", err, logrus.Fields{"user_id": userID})
		return
	}

	httpx.JSON(w, http.StatusCreated, webhook)
}

func ListWebhooks(w http.ResponseWriter, r *http.Request) {
	userID := r.Context().Value("userID").(uint)

	var webhooks []models.Webhook
	if err := db.DB.Where("user_id = ?", userID).Find(&webhooks).Error; err != nil {
		httpx.Internal(w, "db.list_webhooks", err, logrus.Fields{"user_id": userID})
		return
	}

	httpx.JSON(w, http.StatusOK, webhooks)
}

func UpdateWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid webhook id")
		return
	}

	var req webhookRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}

	var webhook models.Webhook
	if err := db.DB.First(&webhook, id).Error; err != nil {
		httpx.NotFound(w, "webhook not found")
		return
	}

	webhook.URL = req.URL
	webhook.Events = req.Events
	webhook.Secret = req.Secret

	if err := db.DB.Save(&webhook).Error; err != nil {
		httpx.Internal(w, "db.update_webhook", err, logrus.Fields{"webhook": id})
		return
	}

	httpx.JSON(w, http.StatusOK, webhook)
}

func DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		httpx.BadRequest(w, "invalid webhook id")
		return
	}

	if err := db.DB.Delete(&models.Webhook{}, id).Error; err != nil {
		httpx.Internal(w, "db.delete_webhook", err, logrus.Fields{"webhook": id})
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// TriggerWebhooks posts a response_submitted event to every webhook of the
// survey. Fire and forget; a dead endpoint never affects the submission.
func TriggerWebhooks(survey *models.Survey, result *services.SubmitResult) {
	var webhooks []models.Webhook
	db.DB.Where("survey_id = ?", survey.ID).Find(&webhooks)

	for _, webhook := range webhooks {
		go func(hook models.Webhook) {
			payload, _ := json.Marshal(map[string]any{
				"event":           "response_submitted",
				"survey_id":       survey.PublicID,
				"respondent_id":   result.RespondentID,
				"answers_created": result.AnswersCreated,
			})

			req, err := http.NewRequest(http.MethodPost, hook.URL, bytes.NewBuffer(payload))
			if err != nil {
				logrus.WithError(err).WithField("url", hook.URL).Warn("webhook request build failed")
				return
			}
			req.Header.Set("Content-Type", "application/json")
			if hook.Secret != "" {
				req.Header.Set("X-Webhook-Secret", hook.Secret)
			}

			client := &http.Client{Timeout: 10 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				logrus.WithError(err).WithField("url", hook.URL).Warn("webhook delivery failed")
				return
			}
			defer resp.Body.Close()
			logrus.WithFields(logrus.Fields{
				"url":    hook.URL,
				"status": resp.Status,
			}).Info("webhook delivered")
		}(webhook)
	}
}
