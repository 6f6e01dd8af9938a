package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var Client *redis.Client

const (
	// Entity lookups by public id.
	LookupTTL = 30 * time.Minute
	// Analytics rollups are cheap to recompute, keep them short lived.
	AnalyticsTTL = 5 * time.Minute
)

// AnalyticsRollups enumerates the independently cached per-survey rollups so
// invalidation can clear them all without a key scan.
var AnalyticsRollups = []string{"totals", "respondents", "completion", "timespan", "trend"}

func Init(addr, password string) {
	Client = redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}

func SurveyKey(publicID string) string {
	return fmt.Sprintf("survey:%s", publicID)
}

func QuestionKey(publicID string) string {
	return fmt.Sprintf("question:%s", publicID)
}

func SurveyListKey(userID uint) string {
	return fmt.Sprintf("surveys:user:%d", userID)
}

func QuestionListKey(userID uint) string {
	return fmt.Sprintf("questions:user:%d", userID)
}

func AnalyticsKey(surveyPublicID, rollup string) string {
	return fmt.Sprintf("analytics:%s:%s", surveyPublicID, rollup)
}

// GetJSON reads a key into dest, reporting whether it was present. Cache
// errors degrade to a miss; the database remains the source of truth.
func GetJSON(ctx context.Context, key string, dest any) bool {
	if Client == nil {
		return false
	}
	data, err := Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache read failed")
		return false
	}
	if err := json.Unmarshal([]byte(data), dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache entry corrupt")
		return false
	}
	return true
}

func SetJSON(ctx context.Context, key string, val any, ttl time.Duration) {
	if Client == nil {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache marshal failed")
		return
	}
	if err := Client.Set(ctx, key, data, ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

func Delete(ctx context.Context, keys ...string) {
	if Client == nil || len(keys) == 0 {
		return
	}
	if err := Client.Del(ctx, keys...).Err(); err != nil {
		logrus.WithError(err).WithField("keys", keys).Warn("cache delete failed")
	}
}

// InvalidateSurvey drops the survey's lookup entry, its owner's listing and
// every analytics rollup.
func InvalidateSurvey(ctx context.Context, publicID string, userID uint) {
	keys := []string{SurveyKey(publicID), SurveyListKey(userID)}
	for _, rollup := range AnalyticsRollups {
		keys = append(keys, AnalyticsKey(publicID, rollup))
	}
	Delete(ctx, keys...)
}

func InvalidateQuestion(ctx context.Context, publicID string, userID uint) {
	Delete(ctx, QuestionKey(publicID), QuestionListKey(userID))
}

// InvalidateAnalytics drops only the rollups, for the new-answer path where
// the survey definition itself did not change but its response counter did.
func InvalidateAnalytics(ctx context.Context, surveyPublicID string) {
	keys := make([]string, 0, len(AnalyticsRollups)+1)
	keys = append(keys, SurveyKey(surveyPublicID))
	for _, rollup := range AnalyticsRollups {
		keys = append(keys, AnalyticsKey(surveyPublicID, rollup))
	}
	Delete(ctx, keys...)
}
