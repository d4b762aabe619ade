package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	schemaRegister = "history://schemas/register-webhook.json"
	schemaWebhook  = "history://schemas/save-message-webhook.json"
)

var bodySchemas = map[string]string{
	schemaRegister: `{
		"type": "object",
		"required": ["jwt", "tags"],
		"properties": {
			"jwt": {"type": "string", "minLength": 1},
			"tags": {
				"type": "array",
				"items": {"type": "integer", "minimum": 0, "maximum": 4294967295}
			},
			"relayUrl": {"type": "string"}
		}
	}`,
	schemaWebhook: `{
		"type": "object",
		"required": ["eventAuth"],
		"properties": {
			"eventAuth": {"type": "string", "minLength": 1}
		}
	}`,
}

// validator checks request bodies against compiled JSON schemas.
type validator struct {
	schemas map[string]*jsonschema.Schema
}

func newValidator() (*validator, error) {
	c := jsonschema.NewCompiler()
	for url, raw := range bodySchemas {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("api: parse schema %s: %w", url, err)
		}
		if err := c.AddResource(url, doc); err != nil {
			return nil, fmt.Errorf("api: add schema %s: %w", url, err)
		}
	}

	v := &validator{schemas: make(map[string]*jsonschema.Schema, len(bodySchemas))}
	for url := range bodySchemas {
		compiled, err := c.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("api: compile schema %s: %w", url, err)
		}
		v.schemas[url] = compiled
	}
	return v, nil
}

// decode validates body against the named schema and unmarshals it into dst.
// The returned error is safe to show to callers.
func (v *validator) decode(schema string, body []byte, dst any) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return errors.New("invalid JSON body")
	}
	if err := v.schemas[schema].Validate(doc); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid request body: %v", err)
	}
	return nil
}
