package services

import (
	"context"
	"time"

	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/models"
	"gorm.io/gorm"
)

// AnalyticsService computes read-only rollups over the answers table. Each
// rollup is cached independently for a few minutes and dropped whenever a
// new answer lands on the survey.
type AnalyticsService struct {
	db *gorm.DB
}

func NewAnalyticsService(gdb *gorm.DB) *AnalyticsService {
	return &AnalyticsService{db: gdb}
}

type TrendPoint struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

type SurveySummary struct {
	TotalResponses    int64        `json:"total_responses"`
	UniqueRespondents int64        `json:"unique_respondents"`
	CompletionRate    float64      `json:"completion_rate"`
	FirstResponseAt   *time.Time   `json:"first_response_at"`
	LastResponseAt    *time.Time   `json:"last_response_at"`
	ResponseTrend     []TrendPoint `json:"response_trend"`
}

type QuestionBreakdown struct {
	ResponseCount  int64   `json:"response_count"`
	DistinctValues int64   `json:"distinct_values"`
	TopOption      *string `json:"top_option"`
	TopOptionCount int64   `json:"top_option_count"`
}

func (s *AnalyticsService) Summary(ctx context.Context, surveyPublicID string) (*SurveySummary, error) {
	survey, err := findSurveyTx(s.db.WithContext(ctx), surveyPublicID)
	if err != nil {
		return nil, err
	}

	total, err := s.totalResponses(ctx, survey)
	if err != nil {
		return nil, err
	}
	respondents, err := s.uniqueRespondents(ctx, survey)
	if err != nil {
		return nil, err
	}
	rate, err := s.completionRate(ctx, survey, total, respondents)
	if err != nil {
		return nil, err
	}
	first, last, err := s.timespan(ctx, survey)
	if err != nil {
		return nil, err
	}
	trend, err := s.trend(ctx, survey)
	if err != nil {
		return nil, err
	}

	return &SurveySummary{
		TotalResponses:    total,
		UniqueRespondents: respondents,
		CompletionRate:    rate,
		FirstResponseAt:   first,
		LastResponseAt:    last,
		ResponseTrend:     trend,
	}, nil
}

func (s *AnalyticsService) totalResponses(ctx context.Context, survey *models.Survey) (int64, error) {
	key := cache.AnalyticsKey(survey.PublicID, "totals")
	var cached int64
	if cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("survey_id = ?", survey.ID).
		Count(&count).Error; err != nil {
		return 0, err
	}
	cache.SetJSON(ctx, key, count, cache.AnalyticsTTL)
	return count, nil
}

func (s *AnalyticsService) uniqueRespondents(ctx context.Context, survey *models.Survey) (int64, error) {
	key := cache.AnalyticsKey(survey.PublicID, "respondents")
	var cached int64
	if cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("survey_id = ?", survey.ID).
		Distinct("respondent_id").
		Count(&count).Error; err != nil {
		return 0, err
	}
	cache.SetJSON(ctx, key, count, cache.AnalyticsTTL)
	return count, nil
}

// completionRate is answers over the theoretical maximum (respondents times
// active questions), as a percentage clamped to [0, 100]. Zero respondents
// or zero active questions yield 0, never a division fault.
func (s *AnalyticsService) completionRate(ctx context.Context, survey *models.Survey, total, respondents int64) (float64, error) {
	key := cache.AnalyticsKey(survey.PublicID, "completion")
	var cached float64
	if cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	var activeQuestions int64
	if err := s.db.WithContext(ctx).Model(&models.SurveyQuestion{}).
		Where("survey_id = ? AND is_active = ?", survey.ID, true).
		Count(&activeQuestions).Error; err != nil {
		return 0, err
	}

	rate := 0.0
	if respondents > 0 && activeQuestions > 0 {
		rate = float64(total) / float64(respondents*activeQuestions) * 100
		if rate > 100 {
			rate = 100
		}
	}
	cache.SetJSON(ctx, key, rate, cache.AnalyticsTTL)
	return rate, nil
}

type answerTimespan struct {
	First *time.Time `json:"first"`
	Last  *time.Time `json:"last"`
}

func (s *AnalyticsService) timespan(ctx context.Context, survey *models.Survey) (*time.Time, *time.Time, error) {
	key := cache.AnalyticsKey(survey.PublicID, "timespan")
	var cached answerTimespan
	if cache.GetJSON(ctx, key, &cached) {
		return cached.First, cached.Last, nil
	}

	var span answerTimespan
	var first, last models.Answer
	err := s.db.WithContext(ctx).
		Where("survey_id = ?", survey.ID).
		Order("submitted_at ASC").
		First(&first).Error
	if err == nil {
		span.First = &first.SubmittedAt
	} else if err != gorm.ErrRecordNotFound {
		return nil, nil, err
	}
	if span.First != nil {
		if err := s.db.WithContext(ctx).
			Where("survey_id = ?", survey.ID).
			Order("submitted_at DESC").
			First(&last).Error; err != nil {
			return nil, nil, err
		}
		span.Last = &last.SubmittedAt
	}

	cache.SetJSON(ctx, key, span, cache.AnalyticsTTL)
	return span.First, span.Last, nil
}

// trend buckets the last 30 days of answers per day. Bucketing happens in Go
// so the same query runs on both postgres and the sqlite used in tests.
func (s *AnalyticsService) trend(ctx context.Context, survey *models.Survey) ([]TrendPoint, error) {
	key := cache.AnalyticsKey(survey.PublicID, "trend")
	var cached []TrendPoint
	if cache.GetJSON(ctx, key, &cached) {
		return cached, nil
	}

	since := time.Now().AddDate(0, 0, -30)
	var timestamps []time.Time
	if err := s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("survey_id = ? AND submitted_at >= ?", survey.ID, since).
		Order("submitted_at ASC").
		Pluck("submitted_at", &timestamps).Error; err != nil {
		return nil, err
	}

	counts := map[string]int64{}
	var days []string
	for _, ts := range timestamps {
		day := ts.Format("2006-01-02")
		if _, seen := counts[day]; !seen {
			days = append(days, day)
		}
		counts[day]++
	}

	trend := make([]TrendPoint, 0, len(days))
	for _, day := range days {
		trend = append(trend, TrendPoint{Day: day, Count: counts[day]})
	}
	cache.SetJSON(ctx, key, trend, cache.AnalyticsTTL)
	return trend, nil
}

// Breakdown is viewed rarely enough that it stays uncached.
func (s *AnalyticsService) Breakdown(ctx context.Context, surveyPublicID, questionPublicID string) (*QuestionBreakdown, error) {
	survey, err := findSurveyTx(s.db.WithContext(ctx), surveyPublicID)
	if err != nil {
		return nil, err
	}
	question, err := findQuestionTx(s.db.WithContext(ctx), questionPublicID)
	if err != nil {
		return nil, err
	}

	scope := s.db.WithContext(ctx).Model(&models.Answer{}).
		Where("survey_id = ? AND question_id = ?", survey.ID, question.ID)

	var breakdown QuestionBreakdown
	if err := scope.Session(&gorm.Session{}).Count(&breakdown.ResponseCount).Error; err != nil {
		return nil, err
	}
	if err := scope.Session(&gorm.Session{}).
		Distinct("answer_text").
		Count(&breakdown.DistinctValues).Error; err != nil {
		return nil, err
	}

	var top struct {
		AnswerText *string
		Total      int64
	}
	err = scope.Session(&gorm.Session{}).
		Select("answer_text, count(*) as total").
		Group("answer_text").
		Order("total DESC").
		Limit(1).
		Scan(&top).Error
	if err != nil {
		return nil, err
	}
	breakdown.TopOption = top.AnswerText
	breakdown.TopOptionCount = top.Total

	return &breakdown, nil
}
