// Package schema validates wizard steps against embedded JSON schemas plus
// the cross-field rules JSON schema cannot express with useful error paths.
package schema

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"vsme-guru/internal/models"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Step numbers, in wizard order.
const (
	StepOrganization  = 1
	StepBusinessModel = 2
	StepInitiatives   = 3
)

var stepFiles = []string{
	"schemas/step1_organization.json",
	"schemas/step2_business_model.json",
	"schemas/step3_initiatives.json",
}

// Issue is a single validation failure. Nested paths are dot-joined, array
// elements use their index: "subsidiaries.0.name".
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result is the outcome of validating one step (or all steps when Step is 0).
type Result struct {
	Step   int                    `json:"step"`
	Issues []Issue                `json:"issues,omitempty"`
	Data   map[string]interface{} `json:"-"`
}

// Valid reports whether the document passed every rule.
func (r *Result) Valid() bool {
	return len(r.Issues) == 0
}

// Flatten returns the issues as a path to message map. When several issues
// share a path the first one wins.
func (r *Result) Flatten() map[string]string {
	out := make(map[string]string, len(r.Issues))
	for _, issue := range r.Issues {
		if _, exists := out[issue.Path]; !exists {
			out[issue.Path] = issue.Message
		}
	}
	return out
}

// Refinement is a cross-field rule evaluated after the JSON schema.
type Refinement func(doc map[string]interface{}) []Issue

type stepSchema struct {
	number      int
	title       string
	schema      *gojsonschema.Schema
	refinements []Refinement
}

// Validator holds the compiled schema for every wizard step.
type Validator struct {
	steps []*stepSchema
}

// New compiles the embedded step schemas.
func New() (*Validator, error) {
	refinements := map[int][]Refinement{
		StepBusinessModel: {RequireSubsidiaries},
		StepInitiatives:   {RequireCompleteInitiatives},
	}

	v := &Validator{}
	for i, file := range stepFiles {
		raw, err := schemaFS.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read schema %s: %w", file, err)
		}
		compiled, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(raw))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", file, err)
		}
		var meta struct {
			Title string `json:"title"`
		}
		_ = json.Unmarshal(raw, &meta)

		v.steps = append(v.steps, &stepSchema{
			number:      i + 1,
			title:       meta.Title,
			schema:      compiled,
			refinements: refinements[i+1],
		})
	}
	return v, nil
}

// MustNew is New for package initialization; it panics if an embedded schema
// fails to compile.
func MustNew() *Validator {
	v, err := New()
	if err != nil {
		panic(err)
	}
	return v
}

// Steps returns the number of steps the validator knows about.
func (v *Validator) Steps() int {
	return len(v.steps)
}

// Title returns the human title of a step.
func (v *Validator) Title(step int) string {
	return v.step(step).title
}

// ValidateStep validates document against the rules of one step. document may
// be a models.FormData, a JSON object map or raw JSON bytes.
//
// A step number outside 1..Steps() is a caller bug and panics.
func (v *Validator) ValidateStep(step int, document interface{}) *Result {
	s := v.step(step)
	doc, err := toDocument(document)
	if err != nil {
		return &Result{Step: step, Issues: []Issue{{Path: "", Message: err.Error()}}}
	}
	return &Result{Step: step, Issues: s.validate(doc), Data: doc}
}

// ValidateAll validates document against every step and aggregates the issues.
func (v *Validator) ValidateAll(document interface{}) *Result {
	doc, err := toDocument(document)
	if err != nil {
		return &Result{Issues: []Issue{{Path: "", Message: err.Error()}}}
	}
	result := &Result{Data: doc}
	for _, s := range v.steps {
		result.Issues = append(result.Issues, s.validate(doc)...)
	}
	return result
}

func (v *Validator) step(step int) *stepSchema {
	if step < 1 || step > len(v.steps) {
		panic(fmt.Sprintf("schema: invalid step %d (valid steps are 1..%d)", step, len(v.steps)))
	}
	return v.steps[step-1]
}

func (s *stepSchema) validate(doc map[string]interface{}) []Issue {
	var issues []Issue

	result, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		issues = append(issues, Issue{Path: "", Message: fmt.Sprintf("validation error: %v", err)})
	} else if !result.Valid() {
		for _, desc := range result.Errors() {
			if isCompositeError(desc.Type()) {
				continue
			}
			path := issuePath(desc)
			issues = append(issues, Issue{Path: path, Message: messageFor(path, desc)})
		}
	}

	sort.SliceStable(issues, func(i, j int) bool { return issues[i].Path < issues[j].Path })

	for _, refine := range s.refinements {
		issues = append(issues, refine(doc)...)
	}
	return issues
}

func isCompositeError(errType string) bool {
	switch errType {
	case "number_any_of", "number_one_of", "number_all_of", "number_not",
		"condition_then", "condition_else":
		return true
	}
	return false
}

// issuePath turns gojsonschema's "(root).a.b" context into "a.b" and appends
// the offending property for errors reported on the parent object.
func issuePath(desc gojsonschema.ResultError) string {
	path := desc.Field()
	if path == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
		path = ""
	}
	path = strings.TrimPrefix(path, gojsonschema.STRING_ROOT_SCHEMA_PROPERTY+".")

	switch desc.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := desc.Details()["property"].(string); ok && prop != "" {
			if path == prop || strings.HasSuffix(path, "."+prop) {
				return path
			}
			if path == "" {
				return prop
			}
			return path + "." + prop
		}
	}
	return path
}

func toDocument(document interface{}) (map[string]interface{}, error) {
	switch d := document.(type) {
	case models.FormData:
		return d.Document()
	case *models.FormData:
		return d.Document()
	case map[string]interface{}:
		return d, nil
	case []byte:
		return decodeObject(d)
	case json.RawMessage:
		return decodeObject(d)
	}
	raw, err := json.Marshal(document)
	if err != nil {
		return nil, fmt.Errorf("document is not serializable: %w", err)
	}
	return decodeObject(raw)
}

func decodeObject(raw []byte) (map[string]interface{}, error) {
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil || doc == nil {
		return nil, fmt.Errorf("document must be a JSON object")
	}
	return doc, nil
}
