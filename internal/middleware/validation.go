package middleware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "salesforecast/internal/errors"
)

// DefaultMaxBodyBytes caps request bodies when no limit is configured.
const DefaultMaxBodyBytes int64 = 1 << 20

// Validator decodes JSON request bodies and checks their struct tags.
type Validator struct {
	validate    *validator.Validate
	maxBodySize int64
	logger      *slog.Logger
}

// NewValidator reports field errors by their JSON names. maxBodySize <= 0
// selects DefaultMaxBodyBytes.
func NewValidator(maxBodySize int64, logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		validate:    v,
		maxBodySize: maxBodySize,
		logger:      logger.With(slog.String("component", "validator")),
	}
}

// DecodeJSON reads one JSON document from the request into dst and
// validates it. Every failure is an InvalidParameter error.
func (v *Validator) DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		return apperrors.InvalidParameter("unsupported content type %q", ct).
			WithContext("allowed", []string{"application/json"})
	}

	body := http.MaxBytesReader(w, r.Body, v.maxBodySize)
	if err := render.DecodeJSON(body, dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return apperrors.InvalidParameter("request body exceeds %d bytes", v.maxBodySize)
		case errors.Is(err, io.EOF):
			return apperrors.InvalidParameter("request body is empty")
		}
		v.logger.DebugContext(r.Context(), "invalid JSON body",
			slog.String("error", err.Error()),
			slog.String("request_id", GetReqID(r.Context())))
		return apperrors.NewAppError(apperrors.ErrTypeInvalidParameter, "request body is not valid JSON", err)
	}
	return v.Struct(dst)
}

// Struct validates s against its validate tags.
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperrors.NewAppError(apperrors.ErrTypeInvalidParameter, "request could not be validated", err)
	}
	fields := make(map[string]string, len(fieldErrs))
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := formatValidationError(fe)
		fields[fe.Field()] = msg
		msgs = append(msgs, msg)
	}
	return apperrors.InvalidParameter("%s", strings.Join(msgs, "; ")).
		WithContext("fields", fields)
}

func formatValidationError(err validator.FieldError) string {
	field := err.Field()
	param := err.Param()

	switch err.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, param)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, param)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, strings.ReplaceAll(param, " ", ", "))
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", field, param)
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", field, param)
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, param)
	case "lt":
		return fmt.Sprintf("%s must be less than %s", field, param)
	default:
		return fmt.Sprintf("%s failed %s validation", field, err.Tag())
	}
}

// QueryInt parses an integer query parameter within [lo, hi]. An absent
// parameter yields def.
func QueryInt(r *http.Request, param string, lo, hi, def int) (int, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.InvalidParameter("%s must be a valid integer", param).
			WithContext(param, raw)
	}
	if n < lo || n > hi {
		return 0, apperrors.InvalidParameter("%s must be between %d and %d", param, lo, hi).
			WithContext(param, n)
	}
	return n, nil
}

// QueryEnum returns param when it is one of allowed, or def when absent.
func QueryEnum(r *http.Request, param string, allowed []string, def string) (string, error) {
	raw := r.URL.Query().Get(param)
	if raw == "" {
		return def, nil
	}
	for _, a := range allowed {
		if raw == a {
			return raw, nil
		}
	}
	return "", apperrors.InvalidParameter("%s must be one of: %s", param, strings.Join(allowed, ", "))
}
