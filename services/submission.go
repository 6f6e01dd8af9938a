package services

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/storage"
	"gorm.io/gorm"
)

var fileQuestionTypes = map[string]bool{
	"file":        true,
	"attachment":  true,
	"file_upload": true,
}

// FileResolver locates the upload for a question across the channels a
// client may have used to encode its multipart form. Channels are tried in
// order, first hit wins; different front ends namespace the same logical
// upload differently, so all three stay.
type FileResolver struct {
	form *multipart.Form
}

func NewFileResolver(r *http.Request) *FileResolver {
	if r == nil || r.MultipartForm == nil {
		return &FileResolver{}
	}
	return &FileResolver{form: r.MultipartForm}
}

func (fr *FileResolver) Resolve(questionID string) *multipart.FileHeader {
	for _, resolve := range []func(string) *multipart.FileHeader{
		fr.fromResponseField,
		fr.fromNamespacedField,
		fr.fromKeyScan,
	} {
		if fh := resolve(questionID); fh != nil {
			return fh
		}
	}
	return nil
}

// Channel 1: the file sits directly in the question's response slot.
func (fr *FileResolver) fromResponseField(questionID string) *multipart.FileHeader {
	return fr.first("responses[" + questionID + "]")
}

// Channel 2: a dedicated files field namespaced by question id.
func (fr *FileResolver) fromNamespacedField(questionID string) *multipart.FileHeader {
	return fr.first("files[" + questionID + "]")
}

// Channel 3: scan every upload key for the question id as a substring.
func (fr *FileResolver) fromKeyScan(questionID string) *multipart.FileHeader {
	if fr.form == nil {
		return nil
	}
	keys := make([]string, 0, len(fr.form.File))
	for key := range fr.form.File {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if strings.Contains(key, questionID) {
			if fhs := fr.form.File[key]; len(fhs) > 0 {
				return fhs[0]
			}
		}
	}
	return nil
}

func (fr *FileResolver) first(key string) *multipart.FileHeader {
	if fr.form == nil {
		return nil
	}
	if fhs := fr.form.File[key]; len(fhs) > 0 {
		return fhs[0]
	}
	return nil
}

// SubmissionService turns a batch of raw per-question responses into answer
// rows. The whole batch runs in one transaction: a hard failure (required
// file missing, storage error) persists nothing.
type SubmissionService struct {
	db    *gorm.DB
	files storage.Store
}

func NewSubmissionService(gdb *gorm.DB, files storage.Store) *SubmissionService {
	return &SubmissionService{db: gdb, files: files}
}

type SubmitRequest struct {
	SurveyID     string         `json:"survey_id"`
	RespondentID string         `json:"respondent_id"`
	Responses    map[string]any `json:"responses"`
	Metadata     map[string]any `json:"metadata"`
}

type RequestMeta struct {
	IP        string
	UserAgent string
}

type SubmitResult struct {
	RespondentID   string `json:"respondent_id"`
	AnswersCreated int    `json:"answers_created"`
}

func (s *SubmissionService) Submit(ctx context.Context, req *SubmitRequest, meta RequestMeta, files *FileResolver) (*SubmitResult, error) {
	if files == nil {
		files = &FileResolver{}
	}

	// One respondent token groups every answer of the batch.
	respondentID := req.RespondentID
	if respondentID == "" {
		respondentID = uuid.NewString()
	} else if _, err := uuid.Parse(respondentID); err != nil {
		return nil, NewValidationError("respondent_id", "must be a valid UUID")
	}

	var metadata []byte
	if len(req.Metadata) > 0 {
		metadata, _ = json.Marshal(req.Metadata)
	}

	created := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		survey, err := findSurveyTx(tx, req.SurveyID)
		if err != nil {
			return err
		}
		if !survey.AcceptsResponses() {
			return ErrSurveyNotAccepting
		}

		// Responses for questions not attached here are silently ignored;
		// stale client-side question lists are not an error.
		var assocs []models.SurveyQuestion
		if err := tx.Where("survey_id = ? AND is_active = ?", survey.ID, true).
			Order("display_order ASC").
			Preload("Question.QuestionType").
			Find(&assocs).Error; err != nil {
			return err
		}

		for _, assoc := range assocs {
			question := assoc.Question
			raw, hasResponse := req.Responses[question.PublicID]
			isFile := fileQuestionTypes[question.QuestionType.Name]
			if !hasResponse && !isFile {
				continue
			}

			encoded, err := encoderFor(question.QuestionType.Name)(&EncodeInput{
				Survey:   survey,
				Question: &question,
				Raw:      raw,
				Files:    files,
				Store:    s.files,
			})
			if err != nil {
				if _, ok := err.(*ValidationError); !ok {
					logrus.WithError(err).WithFields(logrus.Fields{
						"survey":   survey.PublicID,
						"question": question.PublicID,
					}).Error("answer encoding failed")
				}
				return err
			}
			if encoded == nil {
				// Optional file question with nothing uploaded.
				continue
			}

			answer := models.Answer{
				SurveyID:       survey.ID,
				QuestionID:     question.ID,
				RespondentID:   respondentID,
				RespondentType: models.RespondentTypeAnonymous,
				AnswerText:     encoded.Text,
				AnswerData:     encoded.Data,
				FileURL:        encoded.FileURL,
				IPAddress:      meta.IP,
				UserAgent:      meta.UserAgent,
				Metadata:       metadata,
			}
			if err := tx.Create(&answer).Error; err != nil {
				return fmt.Errorf("persist answer for question %s: %w", question.PublicID, err)
			}
			created++
		}

		if created > 0 {
			return refreshResponseCount(tx, survey.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &SubmitResult{RespondentID: respondentID, AnswersCreated: created}, nil
}
