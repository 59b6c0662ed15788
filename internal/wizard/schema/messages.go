package schema

import (
	"fmt"
	"regexp"

	"github.com/xeipuuv/gojsonschema"
)

// Messages shown when a subsidiary list is required but empty, and when an
// active initiative is missing text fields. The initiative message is an
// aggregate: it does not say which initiative is incomplete.
const (
	MsgSubsidiariesRequired = "At least one subsidiary must be added when the company has subsidiaries"
	MsgInitiativeIncomplete = "Active initiatives must have a description, a goal and a responsible person"
	MsgSubsidiaryFlagUnset  = "Please specify whether the company has subsidiaries"
)

var labels = map[string]string{
	"organizationName":                  "Organization name",
	"organizationNumber":                "Organization number",
	"registrationNumber":                "Registration number",
	"naceCode":                          "NACE code",
	"industry":                          "Industry",
	"revenue":                           "Revenue",
	"numberOfEmployees":                 "Number of employees",
	"contactPerson":                     "Contact person",
	"email":                             "Email",
	"phoneNumber":                       "Phone number",
	"businessModel":                     "Business model description",
	"hasSubsidiaries":                   "Subsidiaries",
	"subsidiaries":                      "Subsidiaries",
	"subsidiaries.*.id":                 "Subsidiary id",
	"subsidiaries.*.name":               "Subsidiary name",
	"subsidiaries.*.organizationNumber": "Subsidiary organization number",
	"subsidiaries.*.address":            "Subsidiary address",
	"initiatives":                       "Initiatives",
}

// overrides replace the generic message for a (field, error type) pair.
var overrides = map[string]map[string]string{
	"naceCode": {
		"pattern": "NACE code may only contain digits and dots",
	},
	"phoneNumber": {
		"pattern": "Phone number may only contain digits, spaces, +, - and parentheses",
	},
	"email": {
		"format": "Please enter a valid email address",
	},
	"revenue": {
		"number_gte":   "Revenue cannot be negative",
		"number_lte":   "Revenue cannot exceed 1000000000000",
		"invalid_type": "Revenue must be a number",
	},
	"numberOfEmployees": {
		"number_gte":   "Number of employees must be at least 1",
		"number_lte":   "Number of employees cannot exceed 1000000",
		"invalid_type": "Number of employees must be a whole number",
	},
	"hasSubsidiaries": {
		"enum":         MsgSubsidiaryFlagUnset,
		"invalid_type": MsgSubsidiaryFlagUnset,
		"required":     MsgSubsidiaryFlagUnset,
	},
}

var indexSegment = regexp.MustCompile(`\.\d+(\.|$)`)

// labelKey maps "subsidiaries.3.name" to "subsidiaries.*.name".
func labelKey(path string) string {
	return indexSegment.ReplaceAllString(path, ".*$1")
}

func labelFor(path string) string {
	if label, ok := labels[labelKey(path)]; ok {
		return label
	}
	if path == "" {
		return "Value"
	}
	return path
}

func messageFor(path string, desc gojsonschema.ResultError) string {
	if byType, ok := overrides[labelKey(path)]; ok {
		if msg, ok := byType[desc.Type()]; ok {
			return msg
		}
	}

	label := labelFor(path)
	details := desc.Details()

	switch desc.Type() {
	case "required":
		return fmt.Sprintf("%s is required", label)
	case "string_gte":
		if fmt.Sprint(details["min"]) == "1" {
			return fmt.Sprintf("%s is required", label)
		}
		return fmt.Sprintf("%s must be at least %v characters", label, details["min"])
	case "string_lte":
		return fmt.Sprintf("%s must be at most %v characters", label, details["max"])
	case "invalid_type":
		return fmt.Sprintf("%s must be of type %v", label, details["expected"])
	case "additional_property_not_allowed":
		return fmt.Sprintf("%s is not a recognised field", label)
	case "enum":
		return fmt.Sprintf("%s must be one of %v", label, details["allowed"])
	}
	return desc.Description()
}
