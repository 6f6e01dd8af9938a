package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/httpx"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/services"
)

func GetSurveyAnalytics(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	summary, err := services.Analytics.Summary(r.Context(), publicID)
	if err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "survey not found")
			return
		}
		httpx.Internal(w, "analytics.summary", err, logrus.Fields{"survey": publicID})
		return
	}

	httpx.JSON(w, http.StatusOK, summary)
}

func GetQuestionBreakdown(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	surveyID, questionID := vars["id"], vars["questionId"]

	breakdown, err := services.Analytics.Breakdown(r.Context(), surveyID, questionID)
	if err != nil {
		if err == services.ErrNotFound {
			httpx.NotFound(w, "survey or question not found")
			return
		}
		httpx.Internal(w, "analytics.breakdown", err, logrus.Fields{
			"survey":   surveyID,
			"question": questionID,
		})
		return
	}

	httpx.JSON(w, http.StatusOK, breakdown)
}

// ExportSurveyData streams the survey's responses as CSV, one row per
// respondent with a column per attached question in render order.
func ExportSurveyData(w http.ResponseWriter, r *http.Request) {
	publicID := mux.Vars(r)["id"]

	var survey models.Survey
	if err := db.DB.Where("public_id = ?", publicID).First(&survey).Error; err != nil {
		httpx.NotFound(w, "survey not found")
		return
	}

	assocs, err := services.Associations.ListSurveyQuestions(r.Context(), publicID)
	if err != nil {
		httpx.Internal(w, "db.export.questions", err, logrus.Fields{"survey": publicID})
		return
	}

	var answers []models.Answer
	if err := db.DB.Where("survey_id = ?", survey.ID).
		Order("submitted_at ASC, id ASC").
		Find(&answers).Error; err != nil {
		httpx.Internal(w, "db.export.answers", err, logrus.Fields{"survey": publicID})
		return
	}

	// Pivot answers into one row per respondent.
	type row struct {
		submittedAt time.Time
		byQuestion  map[uint]string
	}
	rows := make(map[string]*row)
	order := make([]string, 0)
	for _, a := range answers {
		rec, ok := rows[a.RespondentID]
		if !ok {
			rec = &row{submittedAt: a.SubmittedAt, byQuestion: make(map[uint]string)}
			rows[a.RespondentID] = rec
			order = append(order, a.RespondentID)
		}
		value := ""
		if a.AnswerText != nil {
			value = *a.AnswerText
		} else if a.FileURL != nil {
			value = *a.FileURL
		}
		rec.byQuestion[a.QuestionID] = value
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "survey-"+survey.PublicID+".csv"))

	cw := csv.NewWriter(w)
	header := []string{"respondent_id", "submitted_at"}
	for _, assoc := range assocs {
		header = append(header, assoc.Question.Name)
	}
	cw.Write(header)

	for _, rid := range order {
		rec := rows[rid]
		line := []string{rid, rec.submittedAt.Format(time.RFC3339)}
		for _, assoc := range assocs {
			line = append(line, rec.byQuestion[assoc.QuestionID])
		}
		cw.Write(line)
	}
	cw.Flush()

	if err := cw.Error(); err != nil {
		logrus.WithError(err).WithField("survey", publicID).Error("csv export write failed")
	}
}
