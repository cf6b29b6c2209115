package engine

import (
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/civicdesk/chatflow/internal/model"
)

// ValidationResult is the uniform outcome of validating one raw input.
// Exactly one of the two shapes is produced; Validate never fails.
type ValidationResult struct {
	OK     bool
	Value  any
	Reason string
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Reason: reason}
}

func valid(value any) ValidationResult {
	return ValidationResult{OK: true, Value: value}
}

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9][0-9\s\-]{6,14}[0-9]$`)
)

// Accepted inbound date layouts; values are stored as ISO dates.
var dateLayouts = []string{
	"2006-01-02",
	"02/01/2006",
	"02-01-2006",
	"2 January 2006",
	"January 2, 2006",
}

// Validate runs a raw inbound value through the rules of a collectInput
// step. It is total: every (value, config) pair yields exactly one result.
func Validate(event *model.InboundEvent, cfg model.InputConfig) ValidationResult {
	rules := cfg.Validation

	switch cfg.InputType {
	case model.InputImage:
		if event.Kind != model.EventMedia || event.MediaRef == "" {
			if rules.Required {
				return invalid(reasonOr(rules, "please send a photo"))
			}
			return valid("")
		}
		// The engine records the media reference; decoding is the
		// transport layer's concern.
		return valid(event.MediaRef)

	case model.InputLocation:
		if event.Kind != model.EventLocation {
			if rules.Required {
				return invalid(reasonOr(rules, "please share your location"))
			}
			return valid("")
		}
		return valid(map[string]any{
			"latitude":  event.Latitude,
			"longitude": event.Longitude,
		})
	}

	raw := strings.TrimSpace(event.Value())
	if raw == "" {
		if rules.Required {
			return invalid(reasonOr(rules, "this field is required"))
		}
		return valid("")
	}

	if !utf8.ValidString(raw) {
		return invalid(reasonOr(rules, "input contains invalid characters"))
	}
	if rules.MinLength > 0 && utf8.RuneCountInString(raw) < rules.MinLength {
		return invalid(reasonOr(rules, "input is too short"))
	}
	if rules.MaxLength > 0 && utf8.RuneCountInString(raw) > rules.MaxLength {
		return invalid(reasonOr(rules, "input is too long"))
	}
	if rules.Pattern != "" {
		re, err := regexp.Compile(rules.Pattern)
		if err != nil {
			// A broken authored pattern must not reject citizen input.
			re = nil
		}
		if re != nil && !re.MatchString(raw) {
			return invalid(reasonOr(rules, "input does not match the expected format"))
		}
	}

	switch cfg.InputType {
	case model.InputNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return invalid(reasonOr(rules, "please enter a number"))
		}
		return valid(n)

	case model.InputEmail:
		if !emailPattern.MatchString(raw) {
			return invalid(reasonOr(rules, "please enter a valid email address"))
		}
		return valid(strings.ToLower(raw))

	case model.InputPhone:
		if !phonePattern.MatchString(raw) {
			return invalid(reasonOr(rules, "please enter a valid phone number"))
		}
		return valid(raw)

	case model.InputDate:
		for _, layout := range dateLayouts {
			if t, err := time.Parse(layout, raw); err == nil {
				return valid(t.Format("2006-01-02"))
			}
		}
		return invalid(reasonOr(rules, "please enter a date like 2025-01-31"))
	}

	return valid(raw)
}

func reasonOr(rules model.ValidationRules, fallback string) string {
	if rules.ErrorMessage != "" {
		return rules.ErrorMessage
	}
	return fallback
}
