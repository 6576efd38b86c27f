package guide

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// FieldError describes one rejected field. Field is a JSON path such as
// "quiz[0].correctAnswer".
type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError carries every field-level failure of one validation pass.
type ValidationError struct {
	Errors []FieldError
	cause  error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap returns the raw validator errors.
func (e *ValidationError) Unwrap() error { return e.cause }

// Has reports whether any error names field, or ends with it after a dot.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field || strings.HasSuffix(fe.Field, "."+field) {
			return true
		}
	}
	return false
}

const ruleAnswerInOptions = "answer_in_options"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	v.RegisterStructValidation(quizItemRules, QuizItem{})
	return v
}

// quizItemRules runs after the per-field checks of a QuizItem, so the answer
// is compared against whatever options were assembled.
func quizItemRules(sl validator.StructLevel) {
	item := sl.Current().Interface().(QuizItem)
	if len(item.Options) == 0 || strings.TrimSpace(item.CorrectAnswer) == "" {
		return
	}
	if !item.HasOption(item.CorrectAnswer) {
		sl.ReportError(item.CorrectAnswer, "correctAnswer", "CorrectAnswer", ruleAnswerInOptions, "")
	}
}

// Validate runs the full validation pass over an assembled chapter.
func Validate(ch Chapter) error {
	return check(ch)
}

// Validate checks a single quiz item.
func (q QuizItem) Validate() error {
	return check(q)
}

// Validate checks a single section.
func (s Section) Validate() error {
	return check(s)
}

func check(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate: %w", err)
	}
	out := &ValidationError{cause: verrs}
	for _, fe := range verrs {
		out.Errors = append(out.Errors, FieldError{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: ruleMessage(fe),
		})
	}
	return out
}

// fieldPath drops the leading struct type name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func ruleMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "notblank", "required":
		return "must not be blank"
	case "min":
		if fe.Kind() == reflect.Slice {
			return fmt.Sprintf("must have at least %s items", fe.Param())
		}
		return "must be at least " + fe.Param()
	case ruleAnswerInOptions:
		return fmt.Sprintf("correct answer %q must be one of the provided options", fe.Value())
	default:
		return "failed " + fe.Tag()
	}
}
