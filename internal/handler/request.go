package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/shareplate/internal/apperror"
	"github.com/sakif/shareplate/internal/auth"
	"github.com/sakif/shareplate/internal/model"
	"github.com/sakif/shareplate/internal/service"
	"github.com/sakif/shareplate/internal/storage"
)

const (
	maxJSONBody      = 1 << 20
	maxMultipartBody = storage.MaxImages*storage.MaxImageBytes + 1<<20
)

// NewValidator returns the validator shared by all handlers. Field errors
// report the json name ("pickupTime"), not the Go name.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and runs struct validation on it.
func decodeJSON(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "Request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return apperror.ValidationFailed(typeErr.Field, fmt.Sprintf("%s must be %s", typeErr.Field, describeKind(typeErr.Type)))
		}
		return apperror.ValidationFailed("body", "Invalid JSON body")
	}
	return validateStruct(v, dst)
}

func describeKind(t reflect.Type) string {
	if t == nil {
		return "a valid value"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "a whole number"
	case reflect.Float32, reflect.Float64:
		return "a number"
	case reflect.String:
		return "a string"
	case reflect.Bool:
		return "true or false"
	case reflect.Slice, reflect.Array:
		return "a list"
	}
	return "an object"
}

func validateStruct(v *validator.Validate, dst any) error {
	err := v.Struct(dst)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("body", "Invalid request")
	}
	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(fe.Field(), fe.Field()+" is required")
	case "email":
		return apperror.ValidationFailed(fe.Field(), fe.Field()+" must be a valid email")
	case "oneof":
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
	case "min", "max", "gte", "lte":
		return apperror.ValidationFailed(fe.Field(), fmt.Sprintf("%s is out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param()))
	}
	return apperror.ValidationFailed(fe.Field(), fe.Field()+" is invalid")
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

// parseMultipart reads the form and returns the "images" files. The files
// stay open until the request ends; multipart.File is an io.ReadSeeker.
func parseMultipart(w http.ResponseWriter, r *http.Request) ([]service.ImageFile, func(), error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(storage.MaxImageBytes); err != nil {
		return nil, func() {}, apperror.ValidationFailed("images", "Invalid or oversized multipart form")
	}

	headers := r.MultipartForm.File["images"]
	if len(headers) > storage.MaxImages {
		r.MultipartForm.RemoveAll()
		return nil, func() {}, apperror.ValidationFailed("images", fmt.Sprintf("You can upload at most %d images", storage.MaxImages))
	}

	var opened []multipart.File
	cleanup := func() {
		for _, f := range opened {
			f.Close()
		}
		r.MultipartForm.RemoveAll()
	}

	files := make([]service.ImageFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			cleanup()
			return nil, func() {}, fmt.Errorf("opening upload %s: %w", fh.Filename, err)
		}
		opened = append(opened, f)
		files = append(files, service.ImageFile{Filename: fh.Filename, Size: fh.Size, Content: f})
	}
	return files, cleanup, nil
}

// formLocation parses the "location" form value, which clients send as a
// JSON-encoded GeoPoint.
func formLocation(r *http.Request) (*model.GeoPoint, error) {
	raw := strings.TrimSpace(r.FormValue("location"))
	if raw == "" {
		return nil, nil
	}
	var p model.GeoPoint
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, apperror.ValidationFailed("location", "location must be a JSON point")
	}
	return normalizePoint(&p), nil
}

func normalizePoint(p *model.GeoPoint) *model.GeoPoint {
	if p != nil && p.Type == "" {
		p.Type = "Point"
	}
	return p
}

// Browsers send <input type="datetime-local"> values without a zone and
// often without seconds. Those are read as UTC.
var localLayouts = []string{"2006-01-02T15:04", "2006-01-02T15:04:05"}

// parseTime accepts RFC 3339 or a datetime-local value. Empty returns the
// zero time.
func parseTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, apperror.ValidationFailed(field, field+" must be a date and time like 2006-01-02T15:04")
}

// formTime parses a timestamp form value with parseTime.
func formTime(r *http.Request, field string) (time.Time, error) {
	return parseTime(field, r.FormValue(field))
}

// formString returns a pointer to the form value when the field was sent.
func formString(r *http.Request, field string) *string {
	if _, ok := r.MultipartForm.Value[field]; !ok {
		return nil
	}
	v := r.FormValue(field)
	return &v
}

// principal returns the user RequireAuth attached to the context.
func principal(r *http.Request) *model.User {
	user, _ := auth.UserFromContext(r.Context())
	return user
}
