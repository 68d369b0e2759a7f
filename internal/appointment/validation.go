package appointment

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the scheduling tags registered:
// "clock" (a time of day, 00:00..24:00) and "weekday" (0=Sunday..6=Saturday).
// It panics if a tag cannot be registered.
func NewValidator() *validator.Validate {
	v := validator.New()
	for tag, fn := range map[string]validator.Func{
		"clock":   isClock,
		"weekday": isWeekday,
	} {
		if err := v.RegisterValidation(tag, fn); err != nil {
			panic(fmt.Sprintf("register %q validation: %v", tag, err))
		}
	}
	return v
}

func isClock(fl validator.FieldLevel) bool {
	return Clock(fl.Field().Int()).Valid()
}

func isWeekday(fl validator.FieldLevel) bool {
	d := fl.Field().Int()
	return d >= 0 && d <= 6
}

func (s *Service) validateStruct(in any) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return newValidationError("%v", err)
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		if fe.Param() != "" {
			msgs = append(msgs, fe.Field()+" failed "+fe.Tag()+"="+fe.Param())
			continue
		}
		msgs = append(msgs, fe.Field()+" failed "+fe.Tag())
	}
	return newValidationError("%s", strings.Join(msgs, "; "))
}
