package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
	"github.com/surveyforge/surveyforge/storage"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTest points the package globals at hermetic backends and returns the
// fixture user whose id the fake auth wrapper injects.
func setupTest(t *testing.T) *models.User {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gdb))
	db.DB = gdb

	mr := miniredis.RunT(t)
	cache.Init(mr.Addr(), "")
	t.Cleanup(func() { cache.Client = nil })

	services.Init(gdb, storage.NewDiskStore(t.TempDir(), "http://files.test"))

	user := &models.User{Email: "author@example.com", Name: "Author"}
	require.NoError(t, gdb.Create(user).Error)
	return user
}

// asUser stands in for the session middleware during tests.
func asUser(userID uint, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), "userID", userID)
		next(w, r.WithContext(ctx))
	}
}

func testRouter(userID uint) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/api/surveys", asUser(userID, CreateSurvey)).Methods("POST")
	r.HandleFunc("/api/surveys", asUser(userID, ListSurveys)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}", asUser(userID, GetSurvey)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}", asUser(userID, UpdateSurvey)).Methods("PUT")
	r.HandleFunc("/api/surveys/{id}", asUser(userID, DeleteSurvey)).Methods("DELETE")
	r.HandleFunc("/api/surveys/{id}/publish", asUser(userID, PublishSurvey)).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/unpublish", asUser(userID, UnpublishSurvey)).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/duplicate", asUser(userID, DuplicateSurvey)).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/questions", asUser(userID, ListSurveyQuestions)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/questions/bulk-assign", asUser(userID, BulkAssignQuestions)).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/questions/{questionId}", asUser(userID, DetachQuestion)).Methods("DELETE")
	r.HandleFunc("/api/surveys/{id}/responses", asUser(userID, ListSurveyResponses)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/analytics", asUser(userID, GetSurveyAnalytics)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/questions/{questionId}/breakdown", asUser(userID, GetQuestionBreakdown)).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/export", asUser(userID, ExportSurveyData)).Methods("GET")

	r.HandleFunc("/api/questions", asUser(userID, CreateQuestion)).Methods("POST")
	r.HandleFunc("/api/questions", asUser(userID, ListQuestions)).Methods("GET")
	r.HandleFunc("/api/questions/bulk-delete", asUser(userID, BulkDeleteQuestions)).Methods("POST")
	r.HandleFunc("/api/questions/{id}", asUser(userID, GetQuestion)).Methods("GET")
	r.HandleFunc("/api/questions/{id}", asUser(userID, UpdateQuestion)).Methods("PUT")
	r.HandleFunc("/api/questions/{id}", asUser(userID, DeleteQuestion)).Methods("DELETE")
	r.HandleFunc("/api/question-types", asUser(userID, ListQuestionTypes)).Methods("GET")

	r.HandleFunc("/api/answers", SubmitAnswers).Methods("POST")
	r.HandleFunc("/api/search", asUser(userID, SearchContent)).Methods("GET")
	r.HandleFunc("/s/{publicId}", AccessPublicSurvey).Methods("GET")

	return r
}

func decodeBody(t *testing.T, body []byte, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(body, dst))
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return bytes.NewReader(data)
}
