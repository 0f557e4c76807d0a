package models

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var ErrInvalidTransition = errors.New("invalid state transition")

var validate = validator.New()

// ValidationError describes input that was rejected rather than coerced.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Problems, ", ")
}

// Validate checks a trip before it is stored or scored.
func (t *Trip) Validate() error {
	var problems []string
	if err := validate.Struct(t); err != nil {
		problems = append(problems, fieldProblems(err)...)
	}
	if !t.Origin.Coord.Valid() {
		problems = append(problems, "origin coordinates are malformed")
	}
	if !t.Destination.Coord.Valid() {
		problems = append(problems, "destination coordinates are malformed")
	}
	if t.PriceRange != nil && t.PriceRange.Width() <= 0 {
		problems = append(problems, "price_range must have max greater than min")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Validate checks stored preferences for values the scorer cannot use.
func (p *UserPreferences) Validate() error {
	var problems []string
	if err := validate.Struct(p); err != nil {
		problems = append(problems, fieldProblems(err)...)
	}
	if p.PriceMax <= p.PriceMin {
		problems = append(problems, "price_max must be greater than price_min")
	}
	if p.AgeMax > 0 && p.AgeMax < p.AgeMin {
		problems = append(problems, "age_max must not be below age_min")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func fieldProblems(err error) []string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	out := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, formatFieldError(fe))
	}
	return out
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "latitude", "longitude":
		return fmt.Sprintf("%s must be a valid %s", field, fe.Tag())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
