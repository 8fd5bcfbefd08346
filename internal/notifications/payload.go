package notifications

import (
	"encoding/json"
	"fmt"
)

// TemplateKey identifies a notification template.
type TemplateKey string

// Template keys.
const (
	TemplateGeneric        TemplateKey = "generic-notification"
	TemplatePathEnrollment TemplateKey = "path-enrollment"
)

// Valid reports whether the key belongs to the supported template set.
func (k TemplateKey) Valid() bool {
	switch k {
	case TemplateGeneric, TemplatePathEnrollment:
		return true
	}
	return false
}

// GenericPayload contains data for a generic-notification email.
// All fields are optional; the renderer substitutes localized defaults.
type GenericPayload struct {
	Title    string `json:"title"`
	Message  string `json:"message"`
	CTALabel string `json:"ctaLabel"`
	CTAURL   string `json:"ctaUrl"`
}

// PathEnrollmentPayload contains data for a path-enrollment email.
// Counts are pointers so an absent field can be told apart from zero.
type PathEnrollmentPayload struct {
	PathTitle       string `json:"pathTitle"`
	PathDescription string `json:"pathDescription"`
	PathSlug        string `json:"pathSlug"`
	CoursesCount    *int   `json:"coursesCount"`
	ModulesCount    *int   `json:"modulesCount"`
}

// TemplateRequest is a tagged union of template key and its typed payload.
// It is resolved once at the request boundary so the renderer always
// receives a statically-known payload shape.
type TemplateRequest struct {
	Template       TemplateKey
	Generic        *GenericPayload
	PathEnrollment *PathEnrollmentPayload
}

// ParseTemplateRequest validates the template key and decodes the raw
// payload into the matching typed shape. An empty payload is allowed for
// every template.
func ParseTemplateRequest(template string, payload json.RawMessage) (TemplateRequest, error) {
	key := TemplateKey(template)

	switch key {
	case TemplateGeneric:
		p := &GenericPayload{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, p); err != nil {
				return TemplateRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		return TemplateRequest{Template: key, Generic: p}, nil

	case TemplatePathEnrollment:
		p := &PathEnrollmentPayload{}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, p); err != nil {
				return TemplateRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}
		return TemplateRequest{Template: key, PathEnrollment: p}, nil

	default:
		return TemplateRequest{}, fmt.Errorf("%w: %q", ErrUnsupportedTemplate, template)
	}
}
