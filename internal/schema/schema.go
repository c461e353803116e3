// Package schema validates request bodies against embedded JSON Schemas.
package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*.json
var schemaFiles embed.FS

type Name string

const (
	AIGenerate     Name = "ai_generate.json"
	CreateReport   Name = "create_report.json"
	ValidateReport Name = "validate_report.json"
)

const DefaultMaxContentLength = 5000

// Error lists every violation found in one document.
type Error struct {
	Issues []string
}

func (e *Error) Error() string {
	return "Validation error: " + strings.Join(e.Issues, ", ")
}

type Options struct {
	// MaxContentLength overrides the AI generate content limit.
	MaxContentLength int
}

type Validator struct {
	schemas map[Name]*jsonschema.Schema
}

func New(options Options) (*Validator, error) {
	if options.MaxContentLength <= 0 {
		options.MaxContentLength = DefaultMaxContentLength
	}

	compiler := jsonschema.NewCompiler()
	names := []Name{AIGenerate, CreateReport, ValidateReport}
	for _, name := range names {
		raw, err := schemaFiles.ReadFile("schemas/" + string(name))
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", name, err)
		}
		if name == AIGenerate {
			raw, err = withContentLimit(raw, options.MaxContentLength)
			if err != nil {
				return nil, err
			}
		}
		if err := compiler.AddResource(string(name), bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", name, err)
		}
	}

	validator := &Validator{schemas: make(map[Name]*jsonschema.Schema, len(names))}
	for _, name := range names {
		compiled, err := compiler.Compile(string(name))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
		validator.schemas[name] = compiled
	}
	return validator, nil
}

// Validate checks raw JSON against the named schema. Violations are returned
// as *Error.
func (v *Validator) Validate(name Name, data []byte) error {
	compiled, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %s", name)
	}

	var document any
	if err := json.Unmarshal(data, &document); err != nil {
		return &Error{Issues: []string{"invalid JSON body"}}
	}

	err := compiled.Validate(document)
	if err == nil {
		return nil
	}
	var validationErr *jsonschema.ValidationError
	if !errors.As(err, &validationErr) {
		return fmt.Errorf("validate %s: %w", name, err)
	}
	return &Error{Issues: leafIssues(validationErr)}
}

// leafIssues flattens the cause tree into "field: message" strings.
func leafIssues(root *jsonschema.ValidationError) []string {
	issues := make([]string, 0)
	seen := make(map[string]struct{})
	var walk func(*jsonschema.ValidationError)
	walk = func(node *jsonschema.ValidationError) {
		if len(node.Causes) > 0 {
			for _, cause := range node.Causes {
				walk(cause)
			}
			return
		}
		issue := node.Message
		if field := fieldName(node.InstanceLocation); field != "" {
			issue = field + ": " + node.Message
		}
		if _, dup := seen[issue]; dup {
			return
		}
		seen[issue] = struct{}{}
		issues = append(issues, issue)
	}
	walk(root)
	sort.Strings(issues)
	return issues
}

func fieldName(instanceLocation string) string {
	trimmed := strings.TrimPrefix(instanceLocation, "/")
	return strings.ReplaceAll(trimmed, "/", ".")
}

func withContentLimit(raw []byte, limit int) ([]byte, error) {
	var document map[string]any
	if err := json.Unmarshal(raw, &document); err != nil {
		return nil, fmt.Errorf("decode ai generate schema: %w", err)
	}
	properties, _ := document["properties"].(map[string]any)
	content, _ := properties["content"].(map[string]any)
	if content == nil {
		return nil, errors.New("ai generate schema has no content property")
	}
	content["maxLength"] = limit
	return json.Marshal(document)
}
