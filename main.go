package main

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/auth"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/config"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/handlers"
	"github.com/surveyforge/surveyforge/middleware"
	"github.com/surveyforge/surveyforge/services"
	"github.com/surveyforge/surveyforge/storage"
)

func main() {
	cfg := config.Load()

	db.InitDB()
	cache.Init(cfg.RedisAddr, cfg.RedisPassword)
	auth.InitStore()

	files := storage.NewDiskStore(cfg.UploadDir, cfg.BaseURL)
	services.Init(db.DB, files)
	defer services.Search.Stop()

	r := mux.NewRouter()

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})
	handler := c.Handler(r)

	// Auth routes
	r.HandleFunc("/login", handlers.LoginHandler)
	r.HandleFunc("/auth/google/callback", handlers.GoogleCallbackHandler)
	r.HandleFunc("/logout", handlers.LogoutHandler)
	r.HandleFunc("/api/register", middleware.WriteLimit(handlers.RegisterHandler)).Methods("POST")
	r.HandleFunc("/api/login", middleware.WriteLimit(handlers.LoginHandlerEmail)).Methods("POST")
	r.HandleFunc("/api/me", auth.AuthMiddleware(middleware.ReadLimit(handlers.GetCurrentUser))).Methods("GET")

	// Surveys
	r.HandleFunc("/api/surveys", auth.AuthMiddleware(middleware.WriteLimit(handlers.CreateSurvey))).Methods("POST")
	r.HandleFunc("/api/surveys", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListSurveys))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}", auth.AuthMiddleware(middleware.ReadLimit(handlers.GetSurvey))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.UpdateSurvey))).Methods("PUT")
	r.HandleFunc("/api/surveys/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.DeleteSurvey))).Methods("DELETE")
	r.HandleFunc("/api/surveys/{id}/publish", auth.AuthMiddleware(middleware.WriteLimit(handlers.PublishSurvey))).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/unpublish", auth.AuthMiddleware(middleware.WriteLimit(handlers.UnpublishSurvey))).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/duplicate", auth.AuthMiddleware(middleware.BulkLimit(handlers.DuplicateSurvey))).Methods("POST")

	// Survey question associations
	r.HandleFunc("/api/surveys/{id}/questions", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListSurveyQuestions))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/questions/bulk-assign", auth.AuthMiddleware(middleware.BulkLimit(handlers.BulkAssignQuestions))).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/questions/{questionId}", auth.AuthMiddleware(middleware.WriteLimit(handlers.DetachQuestion))).Methods("DELETE")

	// Questions
	r.HandleFunc("/api/questions", auth.AuthMiddleware(middleware.WriteLimit(handlers.CreateQuestion))).Methods("POST")
	r.HandleFunc("/api/questions", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListQuestions))).Methods("GET")
	r.HandleFunc("/api/questions/bulk-delete", auth.AuthMiddleware(middleware.BulkLimit(handlers.BulkDeleteQuestions))).Methods("POST")
	r.HandleFunc("/api/questions/{id}", auth.AuthMiddleware(middleware.ReadLimit(handlers.GetQuestion))).Methods("GET")
	r.HandleFunc("/api/questions/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.UpdateQuestion))).Methods("PUT")
	r.HandleFunc("/api/questions/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.DeleteQuestion))).Methods("DELETE")
	r.HandleFunc("/api/question-types", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListQuestionTypes))).Methods("GET")

	// Responses and analytics
	r.HandleFunc("/api/answers", middleware.WriteLimit(handlers.SubmitAnswers)).Methods("POST")
	r.HandleFunc("/api/surveys/{id}/responses", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListSurveyResponses))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/analytics", auth.AuthMiddleware(middleware.ReadLimit(handlers.GetSurveyAnalytics))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/questions/{questionId}/breakdown", auth.AuthMiddleware(middleware.ReadLimit(handlers.GetQuestionBreakdown))).Methods("GET")
	r.HandleFunc("/api/surveys/{id}/export", auth.AuthMiddleware(middleware.BulkLimit(handlers.ExportSurveyData))).Methods("GET")

	// Webhooks
	r.HandleFunc("/api/webhooks", auth.AuthMiddleware(middleware.WriteLimit(handlers.CreateWebhook))).Methods("POST")
	r.HandleFunc("/api/webhooks", auth.AuthMiddleware(middleware.ReadLimit(handlers.ListWebhooks))).Methods("GET")
	r.HandleFunc("/api/webhooks/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.UpdateWebhook))).Methods("PUT")
	r.HandleFunc("/api/webhooks/{id}", auth.AuthMiddleware(middleware.WriteLimit(handlers.DeleteWebhook))).Methods("DELETE")

	// Search
	r.HandleFunc("/api/search", auth.AuthMiddleware(middleware.ReadLimit(handlers.SearchContent))).Methods("GET")

	// Public respondent surface
	r.HandleFunc("/s/{publicId}", middleware.ReadLimit(handlers.AccessPublicSurvey)).Methods("GET")
	r.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))

	logrus.WithField("addr", cfg.Addr).Info("server starting")
	logrus.Fatal(http.ListenAndServe(cfg.Addr, handler))
}
