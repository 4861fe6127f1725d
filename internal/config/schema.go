// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package config

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/samber/oops"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"
)

// SchemaID is the $id of the config file schema.
const SchemaID = "https://holomush.dev/schemas/canvas-config.schema.json"

const durationPattern = `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`

var (
	schemaOnce     sync.Once
	compiledSchema *jschema.Schema
	errSchema      error
)

// GenerateSchema generates a JSON Schema from the Config struct.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference: true,
		Mapper: func(t reflect.Type) *jsonschema.Schema {
			if t == reflect.TypeOf(time.Duration(0)) {
				return &jsonschema.Schema{
					Type:        "string",
					Pattern:     durationPattern,
					Description: "Go duration such as 250ms or 5s",
				}
			}
			return nil
		},
	}
	schema := r.Reflect(&Config{})

	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "canvas host configuration"
	schema.Description = "Schema for the canvas config.yaml file"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.In("config").Wrapf(err, "marshal schema")
	}
	return data, nil
}

// ValidateSchema validates YAML data against the config JSON Schema. An
// empty document is valid.
func ValidateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return oops.In("config").Code("INVALID_CONFIG").Wrapf(err, "invalid YAML")
	}
	if doc == nil {
		return nil
	}

	sch, err := getCompiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(toJSONTypes(doc)); err != nil {
		return oops.In("config").Code("INVALID_CONFIG").Wrapf(err, "schema validation failed")
	}
	return nil
}

func getCompiledSchema() (*jschema.Schema, error) {
	schemaOnce.Do(func() {
		var raw []byte
		raw, errSchema = GenerateSchema()
		if errSchema != nil {
			return
		}

		var schemaData any
		if err := json.Unmarshal(raw, &schemaData); err != nil {
			errSchema = oops.In("config").Wrapf(err, "parse schema JSON")
			return
		}

		c := jschema.NewCompiler()
		if err := c.AddResource(SchemaID, schemaData); err != nil {
			errSchema = oops.In("config").Wrapf(err, "add schema resource")
			return
		}
		compiledSchema, errSchema = c.Compile(SchemaID)
		if errSchema != nil {
			errSchema = oops.In("config").Wrapf(errSchema, "compile schema")
		}
	})
	return compiledSchema, errSchema
}

// toJSONTypes converts YAML-decoded values into the shapes the validator
// expects.
func toJSONTypes(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			out[k] = toJSONTypes(v)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, v := range val {
			out[i] = toJSONTypes(v)
		}
		return out
	case string, int, int64, float64, bool, nil:
		return val
	default:
		if b, err := json.Marshal(val); err == nil {
			var out any
			if err := json.Unmarshal(b, &out); err == nil {
				return out
			}
		}
		return val
	}
}

// FormatSchemaError renders a schema validation error as one line per
// violation, each naming the offending key. Other errors are returned
// unchanged.
func FormatSchemaError(err error) string {
	if err == nil {
		return ""
	}
	var verr *jschema.ValidationError
	if !errors.As(err, &verr) {
		return err.Error()
	}
	p := message.NewPrinter(language.English)
	var lines []string
	collectViolations(verr, p, &lines)
	if len(lines) == 0 {
		return verr.ErrorKind.LocalizedString(p)
	}
	return strings.Join(lines, "\n")
}

func collectViolations(e *jschema.ValidationError, p *message.Printer, lines *[]string) {
	if len(e.Causes) == 0 {
		*lines = append(*lines, "at '/"+strings.Join(e.InstanceLocation, "/")+"': "+e.ErrorKind.LocalizedString(p))
		return
	}
	for _, c := range e.Causes {
		collectViolations(c, p, lines)
	}
}
