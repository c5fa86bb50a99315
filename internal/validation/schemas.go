package validation

import (
	"embed"
	"encoding/json"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const (
	WatchlistEventSchema = "watchlist-event"
	DNAComputedSchema    = "dna-computed"
)

//go:embed schemas/*.json
var embeddedSchemas embed.FS

// SchemaValidator validates inbound and outbound event payloads against JSON schemas.
type SchemaValidator struct {
	schemas map[string]*gojsonschema.Schema
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// NewEventValidator returns a validator loaded with the bundled event schemas.
func NewEventValidator() (*SchemaValidator, error) {
	sv := NewSchemaValidator()
	if err := sv.LoadSchemaFromFS(embeddedSchemas, "schemas"); err != nil {
		return nil, err
	}
	return sv, nil
}

// LoadSchemaFromFS loads every *.json file in dir, named by its base name.
func (sv *SchemaValidator) LoadSchemaFromFS(fsys fs.FS, dir string) error {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return fmt.Errorf("failed to list schema dir %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		schemaPath := path.Join(dir, entry.Name())
		schemaBytes, err := fs.ReadFile(fsys, schemaPath)
		if err != nil {
			return fmt.Errorf("failed to read schema file %s: %w", schemaPath, err)
		}

		name := strings.TrimSuffix(entry.Name(), ".json")
		schema, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaBytes))
		if err != nil {
			return fmt.Errorf("failed to load schema %s: %w", name, err)
		}
		sv.schemas[name] = schema
	}
	return nil
}

func (sv *SchemaValidator) ValidateWatchlistEvent(data interface{}) *ValidationResult {
	return sv.validate(WatchlistEventSchema, data)
}

func (sv *SchemaValidator) ValidateDNAComputed(data interface{}) *ValidationResult {
	return sv.validate(DNAComputedSchema, data)
}

// validate accepts raw JSON as string or []byte, or any value that marshals to JSON.
func (sv *SchemaValidator) validate(schemaName string, data interface{}) *ValidationResult {
	schema, exists := sv.schemas[schemaName]
	if !exists {
		return invalid("schema", fmt.Sprintf("Schema '%s' not found", schemaName), "SCHEMA_NOT_FOUND")
	}

	var documentLoader gojsonschema.JSONLoader
	switch v := data.(type) {
	case string:
		documentLoader = gojsonschema.NewStringLoader(v)
	case []byte:
		documentLoader = gojsonschema.NewBytesLoader(v)
	default:
		jsonBytes, err := json.Marshal(data)
		if err != nil {
			return invalid("data", fmt.Sprintf("Failed to marshal data to JSON: %v", err), "JSON_MARSHAL_ERROR")
		}
		documentLoader = gojsonschema.NewBytesLoader(jsonBytes)
	}

	result, err := schema.Validate(documentLoader)
	if err != nil {
		return invalid("document", fmt.Sprintf("Malformed document: %v", err), "MALFORMED_DOCUMENT")
	}

	validationResult := &ValidationResult{
		Valid:  result.Valid(),
		Errors: make([]ValidationError, 0),
	}
	if !result.Valid() {
		for _, e := range result.Errors() {
			validationResult.Errors = append(validationResult.Errors, ValidationError{
				Field:   e.Field(),
				Message: e.Description(),
				Code:    "VALIDATION_ERROR",
				Value:   e.Value(),
				Context: e.Context().String(),
			})
		}
	}
	return validationResult
}

func invalid(field, message, code string) *ValidationResult {
	return &ValidationResult{
		Valid:  false,
		Errors: []ValidationError{{Field: field, Message: message, Code: code}},
	}
}

type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string      `json:"field"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
	Value   interface{} `json:"value,omitempty"`
	Context string      `json:"context,omitempty"`
}

func (ve ValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", ve.Field, ve.Message)
}

// Err folds the result into a single error, nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.Valid {
		return nil
	}
	msgs := make([]string, 0, len(vr.Errors))
	for _, e := range vr.Errors {
		msgs = append(msgs, e.Error())
	}
	return fmt.Errorf("invalid payload: %s", strings.Join(msgs, "; "))
}

// GetAvailableSchemas returns the loaded schema names, sorted.
func (sv *SchemaValidator) GetAvailableSchemas() []string {
	names := make([]string, 0, len(sv.schemas))
	for name := range sv.schemas {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
