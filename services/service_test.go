package services

import (
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
	"github.com/surveyforge/surveyforge/cache"
	"github.com/surveyforge/surveyforge/db"
	"github.com/surveyforge/surveyforge/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// A single connection keeps every query on the same in-memory database.
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func setupTestCache(t *testing.T) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache.Init(mr.Addr(), "")
	t.Cleanup(func() { cache.Client = nil })
}

func createTestUser(t *testing.T, gdb *gorm.DB) *models.User {
	t.Helper()
	user := &models.User{Email: "author@example.com", Name: "Author"}
	require.NoError(t, gdb.Create(user).Error)
	return user
}

func createTestSurvey(t *testing.T, gdb *gorm.DB, userID uint, status string) *models.Survey {
	t.Helper()
	survey := &models.Survey{
		UserID: userID,
		Name:   "Customer Feedback",
		Status: status,
	}
	require.NoError(t, gdb.Create(survey).Error)
	return survey
}

func createTestQuestion(t *testing.T, gdb *gorm.DB, userID uint, typeName string, options ...string) *models.Question {
	t.Helper()

	var qtype models.QuestionType
	require.NoError(t, gdb.Where("name = ?", typeName).First(&qtype).Error)

	question := &models.Question{
		UserID:         userID,
		Name:           "q-" + typeName,
		QuestionText:   "A " + typeName + " question",
		QuestionTypeID: qtype.ID,
		IsActive:       true,
	}
	if len(options) > 0 {
		data, err := json.Marshal(options)
		require.NoError(t, err)
		question.Options = datatypes.JSON(data)
	}
	require.NoError(t, gdb.Create(question).Error)
	question.QuestionType = qtype
	return question
}

func reloadSurvey(t *testing.T, gdb *gorm.DB, id uint) *models.Survey {
	t.Helper()
	var survey models.Survey
	require.NoError(t, gdb.First(&survey, id).Error)
	return &survey
}

func reloadQuestion(t *testing.T, gdb *gorm.DB, id uint) *models.Question {
	t.Helper()
	var question models.Question
	require.NoError(t, gdb.First(&question, id).Error)
	return &question
}
