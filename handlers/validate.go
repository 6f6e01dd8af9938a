package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report fields by their json name so 422 payloads match the wire format.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

// validateStruct returns per-field messages, or nil when the value passes.
func validateStruct(dst any) map[string]string {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	fields := map[string]string{}
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, ve := range verrs {
			fields[ve.Field()] = fmt.Sprintf("failed on the %q rule", ve.Tag())
		}
		return fields
	}
	fields["body"] = err.Error()
	return fields
}
