package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surveyforge/surveyforge/models"
)

func TestAttachAssignsSequentialOrder(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	q1 := createTestQuestion(t, gdb, user.ID, "text")
	q2 := createTestQuestion(t, gdb, user.ID, "textarea")
	q3 := createTestQuestion(t, gdb, user.ID, "rating")

	for _, q := range []*models.Question{q1, q2, q3} {
		require.NoError(t, svc.Attach(ctx, survey.PublicID, q.PublicID, AttachOptions{}))
	}

	assocs, err := svc.ListSurveyQuestions(ctx, survey.PublicID)
	require.NoError(t, err)
	require.Len(t, assocs, 3)
	assert.Equal(t, 1, assocs[0].Order)
	assert.Equal(t, 2, assocs[1].Order)
	assert.Equal(t, 3, assocs[2].Order)

	assert.Equal(t, 3, reloadSurvey(t, gdb, survey.ID).QuestionCount)
	assert.Equal(t, 1, reloadQuestion(t, gdb, q1.ID).UsageCount)
}

func TestAttachIsIdempotent(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	question := createTestQuestion(t, gdb, user.ID, "text")

	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{}))
	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{}))

	var count int64
	require.NoError(t, gdb.Model(&models.SurveyQuestion{}).
		Where("survey_id = ?", survey.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
	assert.Equal(t, 1, reloadSurvey(t, gdb, survey.ID).QuestionCount)
	assert.Equal(t, 1, reloadQuestion(t, gdb, question.ID).UsageCount)
}

func TestAttachHonorsExplicitSettings(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	question := createTestQuestion(t, gdb, user.ID, "text")

	order := 7
	inactive := false
	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{
		Order:    &order,
		IsActive: &inactive,
	}))

	assocs, err := svc.ListSurveyQuestions(ctx, survey.PublicID)
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	assert.Equal(t, 7, assocs[0].Order)
	assert.False(t, assocs[0].IsActive)

	// Inactive associations do not count toward question_count.
	assert.Equal(t, 0, reloadSurvey(t, gdb, survey.ID).QuestionCount)
}

func TestBulkAttachRejectsWholeBatchOnUnknownQuestion(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	question := createTestQuestion(t, gdb, user.ID, "text")

	err := svc.BulkAttach(ctx, survey.PublicID,
		[]string{question.PublicID, "does-not-exist"}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	var count int64
	require.NoError(t, gdb.Model(&models.SurveyQuestion{}).
		Where("survey_id = ?", survey.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
	assert.Equal(t, 0, reloadSurvey(t, gdb, survey.ID).QuestionCount)
}

func TestDetachRecomputesCounters(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	q1 := createTestQuestion(t, gdb, user.ID, "text")
	q2 := createTestQuestion(t, gdb, user.ID, "rating")

	require.NoError(t, svc.Attach(ctx, survey.PublicID, q1.PublicID, AttachOptions{}))
	require.NoError(t, svc.Attach(ctx, survey.PublicID, q2.PublicID, AttachOptions{}))

	require.NoError(t, svc.Detach(ctx, survey.PublicID, q1.PublicID))

	assert.Equal(t, 1, reloadSurvey(t, gdb, survey.ID).QuestionCount)
	assert.Equal(t, 0, reloadQuestion(t, gdb, q1.ID).UsageCount)
	assert.Equal(t, 1, reloadQuestion(t, gdb, q2.ID).UsageCount)

	// Detaching again reports not found and the counters never go negative.
	assert.ErrorIs(t, svc.Detach(ctx, survey.PublicID, q1.PublicID), ErrNotFound)
	assert.Equal(t, 0, reloadQuestion(t, gdb, q1.ID).UsageCount)
}

func TestDetachFreesUniqueSlotForReattach(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	question := createTestQuestion(t, gdb, user.ID, "text")

	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{}))
	require.NoError(t, svc.Detach(ctx, survey.PublicID, question.PublicID))
	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{}))

	assert.Equal(t, 1, reloadSurvey(t, gdb, survey.ID).QuestionCount)
}

func TestBulkDeleteQuestionsCascades(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	s1 := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	s2 := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	shared := createTestQuestion(t, gdb, user.ID, "text")
	only := createTestQuestion(t, gdb, user.ID, "rating")

	require.NoError(t, svc.Attach(ctx, s1.PublicID, shared.PublicID, AttachOptions{}))
	require.NoError(t, svc.Attach(ctx, s2.PublicID, shared.PublicID, AttachOptions{}))
	require.NoError(t, svc.Attach(ctx, s1.PublicID, only.PublicID, AttachOptions{}))

	require.NoError(t, svc.BulkDeleteQuestions(ctx, []string{shared.PublicID}))

	assert.Equal(t, 1, reloadSurvey(t, gdb, s1.ID).QuestionCount)
	assert.Equal(t, 0, reloadSurvey(t, gdb, s2.ID).QuestionCount)

	var q models.Question
	assert.ErrorContains(t, gdb.Where("id = ?", shared.ID).First(&q).Error, "record not found")
}

func TestDeleteSurveyRecomputesQuestionUsage(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewAssociationService(gdb)
	ctx := context.Background()

	user := createTestUser(t, gdb)
	survey := createTestSurvey(t, gdb, user.ID, models.SurveyStatusActive)
	other := createTestSurvey(t, gdb, user.ID, models.SurveyStatusDraft)
	question := createTestQuestion(t, gdb, user.ID, "text")

	require.NoError(t, svc.Attach(ctx, survey.PublicID, question.PublicID, AttachOptions{}))
	require.NoError(t, svc.Attach(ctx, other.PublicID, question.PublicID, AttachOptions{}))

	text := "hello"
	require.NoError(t, gdb.Create(&models.Answer{
		SurveyID:     survey.ID,
		QuestionID:   question.ID,
		RespondentID: "11111111-1111-1111-1111-111111111111",
		AnswerText:   &text,
	}).Error)

	require.NoError(t, svc.DeleteSurvey(ctx, survey.PublicID))

	assert.Equal(t, 1, reloadQuestion(t, gdb, question.ID).UsageCount)

	var answers int64
	require.NoError(t, gdb.Unscoped().Model(&models.Answer{}).
		Where("survey_id = ?", survey.ID).Count(&answers).Error)
	assert.EqualValues(t, 0, answers)

	var deleted models.Survey
	assert.ErrorContains(t, gdb.Where("id = ?", survey.ID).First(&deleted).Error, "record not found")
}
