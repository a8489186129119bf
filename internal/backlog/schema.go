package backlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const taskPropertiesSchema = `{
	"title": {"type": "string", "maxLength": 200},
	"description": {"type": "string", "maxLength": 10000},
	"status": {"type": "string"},
	"priority": {"type": "string"},
	"assignedTo": {"type": ["string", "null"]},
	"startDate": {"type": ["string", "null"]},
	"dueDate": {"type": ["string", "null"]},
	"progress": {
		"oneOf": [
			{"type": "number"},
			{"type": "string", "pattern": "^\\s*[-+]?(\\d+(\\.\\d*)?|\\.\\d+)([eE][-+]?\\d+)?\\s*$"},
			{"type": "null"}
		]
	},
	"dependencies": {
		"type": ["array", "null"],
		"items": {"type": "string"}
	}
}`

var (
	createSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["title"],
	"properties": ` + taskPropertiesSchema + `
}`
	updateSchemaSource = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"properties": ` + taskPropertiesSchema + `
}`
)

var (
	schemaOnce   sync.Once
	createSchema *jsonschema.Schema
	updateSchema *jsonschema.Schema
	schemaErr    error
)

func compileSchemas() {
	compile := func(name, source string) *jsonschema.Schema {
		if schemaErr != nil {
			return nil
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(name, strings.NewReader(source)); err != nil {
			schemaErr = fmt.Errorf("add schema %s: %w", name, err)
			return nil
		}
		schema, err := compiler.Compile(name)
		if err != nil {
			schemaErr = fmt.Errorf("compile schema %s: %w", name, err)
			return nil
		}
		return schema
	}
	createSchema = compile("task-create.json", createSchemaSource)
	updateSchema = compile("task-update.json", updateSchemaSource)
}

// SchemaError lists the JSON Schema violations of a task payload.
type SchemaError struct {
	Problems []SchemaProblem
}

type SchemaProblem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (e *SchemaError) Error() string {
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		if p.Path == "" {
			parts = append(parts, p.Message)
			continue
		}
		parts = append(parts, p.Path+": "+p.Message)
	}
	return "task payload does not match schema: " + strings.Join(parts, "; ")
}

// CheckSchema validates a raw task payload before it is decoded into
// TaskInput.
func CheckSchema(body []byte, creating bool) error {
	schemaOnce.Do(compileSchemas)
	if schemaErr != nil {
		return schemaErr
	}
	schema := updateSchema
	if creating {
		schema = createSchema
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var doc any
	if err := decoder.Decode(&doc); err != nil {
		return &SchemaError{Problems: []SchemaProblem{{Message: "body must be valid JSON"}}}
	}

	if err := schema.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return err
		}
		result := &SchemaError{}
		collectSchemaProblems(ve, result)
		if len(result.Problems) == 0 {
			result.Problems = append(result.Problems, SchemaProblem{Message: ve.Message})
		}
		return result
	}
	return nil
}

func collectSchemaProblems(err *jsonschema.ValidationError, result *SchemaError) {
	if err == nil {
		return
	}
	if len(err.Causes) == 0 {
		result.Problems = append(result.Problems, SchemaProblem{
			Path:    strings.TrimPrefix(strings.TrimPrefix(err.InstanceLocation, "#"), "/"),
			Message: err.Message,
		})
		return
	}
	for _, cause := range err.Causes {
		collectSchemaProblems(cause, result)
	}
}
