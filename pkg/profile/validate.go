package profile

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// ValidationError lists the rejected fields of one input.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid fields: %s", strings.Join(e.Fields, "; "))
}

func check(input interface{}) error {
	err := validate.Struct(input)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), namespaceRoot(fe.Namespace()))
		if fe.Param() != "" {
			out.Fields = append(out.Fields, fmt.Sprintf("%s failed %s=%s", field, fe.Tag(), fe.Param()))
		} else {
			out.Fields = append(out.Fields, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return out
}

// namespaceRoot is the leading "Type." segment of a validator namespace.
func namespaceRoot(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[:i+1]
	}
	return ""
}

func ValidateDeviceInfoPatch(p DeviceInfoPatch) error { return check(p) }

func ValidateSettingsPatch(p SettingsPatch) error { return check(p) }

func ValidateMetrics(m PerformanceMetrics) error { return check(m) }

// ValidateFeedback requires at least one rating, each within 1..5.
func ValidateFeedback(f FeedbackSubmission) error {
	if len(f.Ratings()) == 0 {
		return &ValidationError{Fields: []string{"at least one rating is required"}}
	}
	return check(f)
}
