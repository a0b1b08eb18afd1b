package router

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// envelopeSchema constrains the frame fields every transport shares before
// the payload discriminant is even looked at. The type field is left open
// on purpose: envelopes of unrecognized types are dropped further down the
// pipeline instead of being rejected as malformed.
const envelopeSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"title": "sync message envelope",
	"type": "object",
	"required": ["type", "deviceId", "timestamp", "sequenceId", "priority", "payload"],
	"properties": {
		"type": {"type": "string", "minLength": 1},
		"deviceId": {"type": "string", "minLength": 1},
		"timestamp": {"type": "integer", "minimum": 0},
		"sequenceId": {"type": "integer", "minimum": 0},
		"priority": {"type": "string", "enum": ["critical", "high", "normal", "low"]},
		"payload": {"type": "object"}
	}
}`

var envelope = jsonschema.MustCompileString("envelope.json", envelopeSchema)

func validateEnvelope(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}
	if err := envelope.Validate(v); err != nil {
		return fmt.Errorf("validate envelope: %w", err)
	}
	return nil
}
