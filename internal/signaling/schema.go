package signaling

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	apperrors "github.com/gianglt2198/webrtc-detect/internal/errors"
	"github.com/gianglt2198/webrtc-detect/internal/models"
)

// Session descriptions stay opaque beyond type and sdp; extra members are kept.
const descriptionSchemaTmpl = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "sdp"],
	"properties": {
		"type": {"const": %q},
		"sdp": {"type": "string", "minLength": 1}
	}
}`

const summarySchemaJSON = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["mode", "duration_sec", "median_latency_ms", "p95_latency_ms", "processed_fps", "uplink_kbps", "resolution"],
	"properties": {
		"mode": {"type": "string", "minLength": 1},
		"duration_sec": {"type": "number", "exclusiveMinimum": 0},
		"median_latency_ms": {"type": "number", "minimum": 0},
		"p95_latency_ms": {"type": "number", "minimum": 0},
		"processed_fps": {"type": "number", "minimum": 0},
		"uplink_kbps": {"type": "number", "minimum": 0},
		"downlink_kbps": {"type": "number", "minimum": 0},
		"resolution": {"type": "string", "pattern": "^[0-9]+x[0-9]+$"},
		"notes": {"type": "string"}
	}
}`

// Validator checks request bodies against precompiled JSON schemas.
type Validator struct {
	offer   *gojsonschema.Schema
	answer  *gojsonschema.Schema
	summary *gojsonschema.Schema
}

// NewValidator compiles the request schemas.
func NewValidator() (*Validator, error) {
	compile := func(src string) (*gojsonschema.Schema, error) {
		return gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	}

	offer, err := compile(fmt.Sprintf(descriptionSchemaTmpl, models.SDPTypeOffer))
	if err != nil {
		return nil, fmt.Errorf("failed to compile offer schema: %w", err)
	}
	answer, err := compile(fmt.Sprintf(descriptionSchemaTmpl, models.SDPTypeAnswer))
	if err != nil {
		return nil, fmt.Errorf("failed to compile answer schema: %w", err)
	}
	summary, err := compile(summarySchemaJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to compile summary schema: %w", err)
	}
	return &Validator{offer: offer, answer: answer, summary: summary}, nil
}

// Description validates a session description body for the given field.
func (v *Validator) Description(field models.Field, body []byte) error {
	schema := v.offer
	if field == models.FieldAnswer {
		schema = v.answer
	}
	return validate(schema, body)
}

// Summary validates a benchmark summary body.
func (v *Validator) Summary(body []byte) error {
	return validate(v.summary, body)
}

func validate(schema *gojsonschema.Schema, body []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return fmt.Errorf("%w: %w", apperrors.ErrInvalidBody, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", e.Field(), e.Description()))
	}
	return fmt.Errorf("%w: %s", apperrors.ErrInvalidBody, strings.Join(msgs, "; "))
}
