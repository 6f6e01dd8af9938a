package services

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/surveyforge/surveyforge/models"
	"github.com/surveyforge/surveyforge/storage"
	"gorm.io/datatypes"
)

// Encoded is the normalized persistable form of one raw response. A nil
// *Encoded with a nil error means "no answer row" (optional file questions
// with nothing uploaded).
type Encoded struct {
	Text    *string
	Data    datatypes.JSON
	FileURL *string
}

// EncodeInput is everything an encoder may need: the question definition,
// the raw response value as decoded from the request, and the upload
// channels for file questions.
type EncodeInput struct {
	Survey   *models.Survey
	Question *models.Question
	Raw      any
	Files    *FileResolver
	Store    storage.Store
}

type EncoderFunc func(in *EncodeInput) (*Encoded, error)

// encoders maps question type names to their normalization. Adding a type is
// a table entry, not a control-flow change. Unlisted types fall through to
// encodeFallback, which preserves the raw shape verbatim.
var encoders = map[string]EncoderFunc{
	"text":            encodeText,
	"textarea":        encodeText,
	"email":           encodeText,
	"url":             encodeText,
	"yes_no":          encodeText,
	"number":          encodeNumeric,
	"rating":          encodeNumeric,
	"multiple_choice": encodeChoice,
	"radio":           encodeChoice,
	"dropdown":        encodeChoice,
	"select":          encodeChoice,
	"checkbox":        encodeCheckbox,
	"file":            encodeFile,
	"attachment":      encodeFile,
	"file_upload":     encodeFile,
}

func encoderFor(typeName string) EncoderFunc {
	if enc, ok := encoders[typeName]; ok {
		return enc
	}
	return encodeFallback
}

func encodeText(in *EncodeInput) (*Encoded, error) {
	text := stringValue(in.Raw)
	return &Encoded{Text: &text}, nil
}

func encodeNumeric(in *EncodeInput) (*Encoded, error) {
	// Non-numeric input coerces to 0 rather than failing the batch.
	val := floatValue(in.Raw)
	text := strconv.FormatFloat(val, 'f', -1, 64)
	return &Encoded{
		Text: &text,
		Data: mustJSON(map[string]any{"numeric_value": val}),
	}, nil
}

func encodeChoice(in *EncodeInput) (*Encoded, error) {
	selected := stringValue(in.Raw)
	options := in.Question.OptionList()

	var index any // null when the value is not among the configured options
	for i, opt := range options {
		if opt == selected {
			index = i
			break
		}
	}
	return &Encoded{
		Text: &selected,
		Data: mustJSON(map[string]any{
			"selected_option": selected,
			"option_index":    index,
		}),
	}, nil
}

func encodeCheckbox(in *EncodeInput) (*Encoded, error) {
	selected := stringSlice(in.Raw)
	options := in.Question.OptionList()

	indices := make([]any, 0, len(selected))
	for _, val := range selected {
		var index any
		for i, opt := range options {
			if opt == val {
				index = i
				break
			}
		}
		indices = append(indices, index)
	}

	text := strings.Join(selected, ", ")
	return &Encoded{
		Text: &text,
		Data: mustJSON(map[string]any{
			"selected_options": selected,
			"option_indices":   indices,
		}),
	}, nil
}

func encodeFile(in *EncodeInput) (*Encoded, error) {
	fh := in.Files.Resolve(in.Question.PublicID)
	if fh == nil {
		if in.Question.IsRequired {
			return nil, NewValidationError(in.Question.PublicID, "required file is missing")
		}
		// Optional and absent: no answer row at all.
		return nil, nil
	}

	stored, err := in.Store.Save(in.Survey.PublicID, in.Question.PublicID, fh)
	if err != nil {
		return nil, fmt.Errorf("store file %q for question %s: %w", fh.Filename, in.Question.PublicID, err)
	}

	return &Encoded{
		Text:    &stored.OriginalFilename,
		FileURL: &stored.URL,
		Data: mustJSON(map[string]any{
			"original_filename": stored.OriginalFilename,
			"stored_filename":   stored.StoredFilename,
			"file_size":         stored.Size,
			"mime_type":         stored.MimeType,
			"path":              stored.Path,
			"uploaded_at":       stored.UploadedAt,
		}),
	}, nil
}

func encodeFallback(in *EncodeInput) (*Encoded, error) {
	text := stringValue(in.Raw)
	data, err := json.Marshal(in.Raw)
	if err != nil {
		return nil, fmt.Errorf("marshal raw response for question %s: %w", in.Question.PublicID, err)
	}
	return &Encoded{Text: &text, Data: datatypes.JSON(data)}, nil
}

func stringValue(raw any) string {
	switch v := raw.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case json.Number:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func floatValue(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

func stringSlice(raw any) []string {
	switch v := raw.(type) {
	case nil:
		return nil
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, stringValue(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	default:
		return []string{stringValue(v)}
	}
}

func mustJSON(v map[string]any) datatypes.JSON {
	data, _ := json.Marshal(v)
	return datatypes.JSON(data)
}
