package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

var (
	ErrUnknownField = errors.New("UNKNOWN_FIELD")
	ErrInvalidValue = errors.New("INVALID_VALUE")
)

// SubsidiaryFlag is the tri-state answer to "does the company have subsidiaries".
// The zero value means the question has not been answered.
type SubsidiaryFlag string

const (
	SubsidiariesUnset SubsidiaryFlag = ""
	SubsidiariesYes   SubsidiaryFlag = "yes"
	SubsidiariesNo    SubsidiaryFlag = "no"
)

// InitiativeType is one of the eight fixed sustainability initiative categories.
type InitiativeType string

const (
	InitiativeClimateAction       InitiativeType = "climateAction"
	InitiativePollutionPrevention InitiativeType = "pollutionPrevention"
	InitiativeWaterResources      InitiativeType = "waterResources"
	InitiativeBiodiversity        InitiativeType = "biodiversity"
	InitiativeCircularEconomy     InitiativeType = "circularEconomy"
	InitiativeWorkforceWellbeing  InitiativeType = "workforceWellbeing"
	InitiativeCommunityEngagement InitiativeType = "communityEngagement"
	InitiativeBusinessConduct     InitiativeType = "businessConduct"
)

// InitiativeTypes returns every initiative category in display order.
func InitiativeTypes() []InitiativeType {
	return []InitiativeType{
		InitiativeClimateAction,
		InitiativePollutionPrevention,
		InitiativeWaterResources,
		InitiativeBiodiversity,
		InitiativeCircularEconomy,
		InitiativeWorkforceWellbeing,
		InitiativeCommunityEngagement,
		InitiativeBusinessConduct,
	}
}

// Subsidiary is a legal entity owned by the reporting organization.
type Subsidiary struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	OrganizationNumber string `json:"organizationNumber"`
	Address            string `json:"address"`
}

// NewSubsidiary returns a subsidiary with a fresh identifier.
func NewSubsidiary(name, organizationNumber, address string) Subsidiary {
	return Subsidiary{
		ID:                 uuid.NewString(),
		Name:               name,
		OrganizationNumber: organizationNumber,
		Address:            address,
	}
}

// Initiative describes the organization's work within one category. The text
// fields only matter while the initiative is active.
type Initiative struct {
	IsActive          bool   `json:"isActive"`
	Description       string `json:"description,omitempty"`
	Goal              string `json:"goal,omitempty"`
	ResponsiblePerson string `json:"responsiblePerson,omitempty"`
}

// Complete reports whether an active initiative has every required text field.
func (i Initiative) Complete() bool {
	return i.Description != "" && i.Goal != "" && i.ResponsiblePerson != ""
}

// FormData is the aggregate VSME report submitted at the end of the wizard.
type FormData struct {
	OrganizationName   string `json:"organizationName"`
	OrganizationNumber string `json:"organizationNumber"`
	RegistrationNumber string `json:"registrationNumber"`
	NaceCode           string `json:"naceCode"`
	Industry           string `json:"industry"`

	Revenue           float64 `json:"revenue"`
	NumberOfEmployees int     `json:"numberOfEmployees"`

	ContactPerson string `json:"contactPerson"`
	Email         string `json:"email"`
	PhoneNumber   string `json:"phoneNumber"`

	BusinessModel   string         `json:"businessModel"`
	HasSubsidiaries SubsidiaryFlag `json:"hasSubsidiaries"`
	Subsidiaries    []Subsidiary   `json:"subsidiaries"`

	Initiatives map[InitiativeType]Initiative `json:"initiatives"`
}

// DefaultFormData returns the empty report every new wizard session starts from.
func DefaultFormData() FormData {
	initiatives := make(map[InitiativeType]Initiative, len(InitiativeTypes()))
	for _, t := range InitiativeTypes() {
		initiatives[t] = Initiative{}
	}
	return FormData{
		Subsidiaries: []Subsidiary{},
		Initiatives:  initiatives,
	}
}

// Clone returns a deep copy.
func (d FormData) Clone() FormData {
	out := d
	out.Subsidiaries = append([]Subsidiary{}, d.Subsidiaries...)
	out.Initiatives = make(map[InitiativeType]Initiative, len(d.Initiatives))
	for k, v := range d.Initiatives {
		out.Initiatives[k] = v
	}
	return out
}

// Normalize back-fills missing initiative keys and nil slices so that the
// full set of categories always exists.
func (d *FormData) Normalize() {
	if d.Subsidiaries == nil {
		d.Subsidiaries = []Subsidiary{}
	}
	if d.Initiatives == nil {
		d.Initiatives = make(map[InitiativeType]Initiative, len(InitiativeTypes()))
	}
	for _, t := range InitiativeTypes() {
		if _, ok := d.Initiatives[t]; !ok {
			d.Initiatives[t] = Initiative{}
		}
	}
}

// Document returns the report as a generic JSON object, the shape the
// validation schemas operate on.
func (d FormData) Document() (map[string]interface{}, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	doc := map[string]interface{}{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// FieldNames returns the top-level JSON field names of FormData, sorted.
func FieldNames() []string {
	doc, _ := DefaultFormData().Document()
	names := make([]string, 0, len(doc))
	for k := range doc {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Merge shallow-merges patch (keyed by JSON field name) over d and returns
// the result. Nested values such as subsidiaries or initiatives replace the
// previous value wholesale. d is left untouched on error.
func (d FormData) Merge(patch map[string]interface{}) (FormData, error) {
	doc, err := d.Document()
	if err != nil {
		return d, err
	}
	for name, value := range patch {
		if _, ok := doc[name]; !ok {
			return d, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		doc[name] = value
	}
	merged, err := DecodeFormData(doc)
	if err != nil {
		return d, err
	}
	return merged, nil
}

// OverlayDocument lays the top-level fields of a raw JSON object over the
// default document without decoding them into FormData, so values of the
// wrong type survive for schema validation. Unknown fields are rejected.
func OverlayDocument(raw []byte) (map[string]interface{}, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return nil, fmt.Errorf("%w: document must be a JSON object", ErrInvalidValue)
	}
	doc, err := DefaultFormData().Document()
	if err != nil {
		return nil, err
	}
	for name, value := range fields {
		if _, ok := doc[name]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownField, name)
		}
		doc[name] = value
	}
	return doc, nil
}

// DecodeFormData converts a JSON-compatible value into FormData, rejecting
// unknown fields and values of the wrong type.
func DecodeFormData(v interface{}) (FormData, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return FormData{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return ParseFormData(raw)
}

// ParseFormData decodes raw JSON into FormData, normalizing the result.
func ParseFormData(raw []byte) (FormData, error) {
	out := FormData{}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return FormData{}, fmt.Errorf("%w: %s expects %s, got %s", ErrInvalidValue, typeErr.Field, typeErr.Type, typeErr.Value)
		}
		return FormData{}, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	out.Normalize()
	return out, nil
}
