package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const jobSchemaURL = "exam_job.json"

const jobSchema = `{
	"$schema": "https://json-schema.org/draft/2020-12/schema",
	"type": "object",
	"required": ["exam_id"],
	"properties": {
		"exam_id": {"type": ["integer", "string"]},
		"user_id": {"type": ["integer", "string", "null"]},
		"images": {
			"type": ["array", "null"],
			"items": {"type": "string"}
		}
	}
}`

var compiledJobSchema = jsonschema.MustCompileString(jobSchemaURL, jobSchema)

func validateJobBody(body []byte) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("unmarshal body: %w", err)
	}
	if err := compiledJobSchema.Validate(v); err != nil {
		return fmt.Errorf("body does not match schema: %w", err)
	}
	return nil
}
