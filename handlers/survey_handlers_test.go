package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/models"
)

func postJSON(t *testing.T, router *mux.Router, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreateSurvey(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{
		"name":        "Customer Feedback",
		"description": "Quarterly pulse",
	})
	require.Equal(t, 201, rec.Code)

	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)
	assert.Equal(t, "Customer Feedback", survey.Name)
	assert.Equal(t, models.SurveyStatusDraft, survey.Status)
	assert.NotEmpty(t, survey.PublicID)
	assert.Equal(t, user.ID, survey.UserID)
}

func TestCreateSurveyValidation(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": ""})
	require.Equal(t, 422, rec.Code)

	var body struct {
		Error  string            `json:"error"`
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Equal(t, "validation failed", body.Error)
	assert.Contains(t, body.Fields, "name")
}

func TestCreateSurveyRejectsBadSchedule(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{
		"name":      "Scheduled",
		"starts_at": "2026-09-01T00:00:00Z",
		"ends_at":   "2026-08-01T00:00:00Z",
	})
	require.Equal(t, 422, rec.Code)

	var body struct {
		Fields map[string]string `json:"fields"`
	}
	decodeBody(t, rec.Body.Bytes(), &body)
	assert.Contains(t, body.Fields, "ends_at")
}

func TestGetSurveyCachesLookup(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": "Cached"})
	require.Equal(t, 201, rec.Code)
	var created models.Survey
	decodeBody(t, rec.Body.Bytes(), &created)

	req := httptest.NewRequest("GET", "/api/surveys/"+created.PublicID, nil)
	first := httptest.NewRecorder()
	router.ServeHTTP(first, req)
	require.Equal(t, 200, first.Code)

	// Mutate behind the cache; the second read still serves the cached copy.
	require.NoError(t, db.DB.Model(&models.Survey{}).
		Where("id = ?", created.ID).
		UpdateColumn("name", "changed directly").Error)

	req = httptest.NewRequest("GET", "/api/surveys/"+created.PublicID, nil)
	second := httptest.NewRecorder()
	router.ServeHTTP(second, req)
	require.Equal(t, 200, second.Code)

	var fetched models.Survey
	decodeBody(t, second.Body.Bytes(), &fetched)
	assert.Equal(t, "Cached", fetched.Name)
}

func TestGetSurveyNotFound(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	req := httptest.NewRequest("GET", "/api/surveys/missing", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, 404, rec.Code)
}

func TestPublishAndUnpublishSurvey(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": "Lifecycle"})
	require.Equal(t, 201, rec.Code)
	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/publish", nil)
	require.Equal(t, 200, rec.Code)
	var published models.Survey
	decodeBody(t, rec.Body.Bytes(), &published)
	assert.Equal(t, models.SurveyStatusActive, published.Status)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/unpublish", nil)
	require.Equal(t, 200, rec.Code)
	var paused models.Survey
	decodeBody(t, rec.Body.Bytes(), &paused)
	assert.Equal(t, models.SurveyStatusPaused, paused.Status)
}

func TestBulkAssignAndDetachQuestions(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": "With Questions"})
	require.Equal(t, 201, rec.Code)
	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)

	rec = postJSON(t, router, "/api/questions", map[string]any{
		"name":          "Color",
		"question_text": "Favorite color?",
		"type":          "multiple_choice",
		"options":       []string{"Red", "Blue"},
	})
	require.Equal(t, 201, rec.Code)
	var question models.Question
	decodeBody(t, rec.Body.Bytes(), &question)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/questions/bulk-assign", map[string]any{
		"question_ids": []string{question.PublicID},
	})
	require.Equal(t, 200, rec.Code)

	req := httptest.NewRequest("GET", "/api/surveys/"+survey.PublicID+"/questions", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, req)
	require.Equal(t, 200, listRec.Code)
	var assocs []models.SurveyQuestion
	decodeBody(t, listRec.Body.Bytes(), &assocs)
	require.Len(t, assocs, 1)
	assert.Equal(t, 1, assocs[0].Order)
	assert.Equal(t, question.PublicID, assocs[0].Question.PublicID)

	req = httptest.NewRequest("DELETE",
		"/api/surveys/"+survey.PublicID+"/questions/"+question.PublicID, nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, req)
	assert.Equal(t, 204, delRec.Code)

	// Detaching the already detached pair is a 404.
	req = httptest.NewRequest("DELETE",
		"/api/surveys/"+survey.PublicID+"/questions/"+question.PublicID, nil)
	againRec := httptest.NewRecorder()
	router.ServeHTTP(againRec, req)
	assert.Equal(t, 404, againRec.Code)
}

func TestDuplicateSurveyCopiesQuestions(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": "Original"})
	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)

	rec = postJSON(t, router, "/api/questions", map[string]any{
		"name":          "Q1",
		"question_text": "First?",
		"type":          "text",
	})
	var question models.Question
	decodeBody(t, rec.Body.Bytes(), &question)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/questions/bulk-assign", map[string]any{
		"question_ids": []string{question.PublicID},
	})
	require.Equal(t, 200, rec.Code)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/duplicate", nil)
	require.Equal(t, 201, rec.Code)
	var dup models.Survey
	decodeBody(t, rec.Body.Bytes(), &dup)
	assert.Equal(t, "Copy of Original", dup.Name)
	assert.Equal(t, models.SurveyStatusDraft, dup.Status)
	assert.NotEqual(t, survey.PublicID, dup.PublicID)

	req := httptest.NewRequest("GET", "/api/surveys/"+dup.PublicID+"/questions", nil)
	listRec := httptest.NewRecorder()
	router.ServeHTTP(listRec, req)
	var assocs []models.SurveyQuestion
	decodeBody(t, listRec.Body.Bytes(), &assocs)
	require.Len(t, assocs, 1)
	assert.Equal(t, question.PublicID, assocs[0].Question.PublicID)
}

func TestPublicSurveyAccess(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{
		"name":      "Public",
		"is_public": true,
	})
	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)

	// Draft surveys stay hidden even when public.
	req := httptest.NewRequest("GET", "/s/"+survey.PublicID, nil)
	hidden := httptest.NewRecorder()
	router.ServeHTTP(hidden, req)
	assert.Equal(t, 404, hidden.Code)

	rec = postJSON(t, router, "/api/surveys/"+survey.PublicID+"/publish", nil)
	require.Equal(t, 200, rec.Code)

	req = httptest.NewRequest("GET", "/s/"+survey.PublicID, nil)
	visible := httptest.NewRecorder()
	router.ServeHTTP(visible, req)
	assert.Equal(t, 200, visible.Code)
}

func TestDeleteSurvey(t *testing.T) {
	user := setupTest(t)
	router := testRouter(user.ID)

	rec := postJSON(t, router, "/api/surveys", map[string]any{"name": "Doomed"})
	var survey models.Survey
	decodeBody(t, rec.Body.Bytes(), &survey)

	req := httptest.NewRequest("DELETE", "/api/surveys/"+survey.PublicID, nil)
	delRec := httptest.NewRecorder()
	router.ServeHTTP(delRec, req)
	require.Equal(t, 204, delRec.Code)

	req = httptest.NewRequest("GET", "/api/surveys/"+survey.PublicID, nil)
	getRec := httptest.NewRecorder()
	router.ServeHTTP(getRec, req)
	assert.Equal(t, 404, getRec.Code)
}
