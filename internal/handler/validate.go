package handler

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/Shivanand-hulikatti/conference-booking/internal/model"
	"github.com/Shivanand-hulikatti/conference-booking/internal/service"
)

var alnumSpace = regexp.MustCompile(`^[a-zA-Z0-9 ]+$`)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("alnumspace", validateAlnumSpace)
	_ = v.RegisterValidation("topics", validateTopics)
	v.RegisterStructValidation(validateConferenceWindow, model.CreateConferenceRequest{})
	return v
}

func validateAlnumSpace(fl validator.FieldLevel) bool {
	return alnumSpace.MatchString(fl.Field().String())
}

// validateTopics checks a comma-separated topic list: at most param topics,
// each alphanumeric with spaces.
func validateTopics(fl validator.FieldLevel) bool {
	limit, err := strconv.Atoi(fl.Param())
	if err != nil {
		return false
	}
	topics := service.ParseTopics(fl.Field().String())
	if len(topics) > limit {
		return false
	}
	for _, t := range topics {
		if !alnumSpace.MatchString(t) {
			return false
		}
	}
	return true
}

func validateConferenceWindow(sl validator.StructLevel) {
	req := sl.Current().Interface().(model.CreateConferenceRequest)
	if req.StartTimestamp.IsZero() || req.EndTimestamp.IsZero() {
		return
	}
	if req.EndTimestamp.Sub(req.StartTimestamp) > service.MaxConferenceDuration {
		sl.ReportError(req.EndTimestamp, "end_timestamp", "EndTimestamp", "maxduration", "")
	}
}

// describeValidation turns the first validation failure into a message.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = "field is required"
	case "alphanum":
		msg = "must contain only letters and digits"
	case "alnumspace":
		msg = "must contain only letters, digits and spaces"
	case "topics":
		msg = fmt.Sprintf("must be a comma-separated list of at most %s alphanumeric topics", fe.Param())
	case "max":
		msg = "exceeds maximum length"
	case "gt":
		msg = "must be greater than " + fe.Param()
	case "gtfield":
		msg = "must be after start_timestamp"
	case "maxduration":
		msg = fmt.Sprintf("conference may not last longer than %s", service.MaxConferenceDuration)
	default:
		msg = "is invalid"
	}
	return fe.Field() + ": " + msg
}
