package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
)

const maxUploadMemory = 32 << 20

// SubmitAnswers accepts a response batch as either plain JSON or a multipart
// form. Multipart clients put the JSON document in a "payload" field (or fall
// back to individual form values) with uploads alongside it.
func SubmitAnswers(w http.ResponseWriter, r *http.Request) {
	req, err := decodeSubmitRequest(r)
	if err != nil {
		httpx.BadRequest(w, "invalid request body")
		return
	}
	if req.SurveyID == "" {
		httpx.ValidationFailed(w, map[string]string{"survey_id": "failed on the \"required\" rule"})
		return
	}

	meta := services.RequestMeta{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}

	result, err := services.Submissions.Submit(r.Context(), req, meta, services.NewFileResolver(r))
	if err != nil {
		switch e := err.(type) {
		case *services.ValidationError:
			httpx.ValidationFailed(w, e.Fields)
			return
		}
		switch err {
		case services.ErrNotFound:
			httpx.NotFound(w, "survey not found")
		case services.ErrSurveyNotAccepting:
			httpx.Forbidden(w, "survey is not accepting responses")
		default:
			httpx.Internal(w, "submission.submit", err, logrus.Fields{"survey": req.SurveyID})
		}
		return
	}

	cache.InvalidateAnalytics(r.Context(), req.SurveyID)

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", req.SurveyID).First(&survey).Error; err == nil {
		TriggerWebhooks(&survey, result)
	}

	httpx.JSON(w, http.StatusCreated, result)
}

func decodeSubmitRequest(r *http.Request) (*services.SubmitRequest, error) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(ct, "multipart/form-data") {
		var req services.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		return nil, err
	}

	var req services.SubmitRequest
	if payload := r.FormValue("payload"); payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return nil, err
		}
		return &req, nil
	}

	// No payload document; pick the fields out of the form directly.
	req.SurveyID = r.FormValue("survey_id")
	req.RespondentID = r.FormValue("respondent_id")
	if raw := r.FormValue("responses"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Responses); err != nil {
			return nil, err
		}
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			return nil, err
		}
	}
	return &req, nil
}

// ListSurveyResponses returns every answer of a survey grouped per respondent,
// newest batch first.
func ListSurveyResponses(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	var answers []models.Answer
	if err := db.DB.Where("survey_id = ?", survey.ID).
		Order("submitted_at DESC, id ASC").
		Find(&answers).Error; err != nil {
		httpx.Internal(w, "db.list_responses", err, logrus.Fields{"survey": publicID})
		return
	}

	grouped := make(map[string][]models.Answer)
	order := make([]string, 0)
	for _, a := range answers {
		if _, seen := grouped[a.RespondentID]; !seen {
			order = append(order, a.RespondentID)
		}
		grouped[a.RespondentID] = append(grouped[a.RespondentID], a)
	}

	type respondentBatch struct {
		RespondentID string          `json:"respondent_id"`
		Answers      []models.Answer `json:"answers"`
	}
	batches := make([]respondentBatch, 0, len(order))
	for _, rid := range order {
		batches = append(batches, respondentBatch{RespondentID: rid, Answers: grouped[rid]})
	}

	httpx.JSON(w, http.StatusOK, map[string]any{
		"survey_id":   survey.PublicID,
		"respondents": len(batches),
		"responses":   batches,
	})
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return host
}
