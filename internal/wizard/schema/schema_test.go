package schema

import (
	"testing"

	"vsme-guru/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	v, err := New()
	require.NoError(t, err)
	return v
}

func validReport() models.FormData {
	data := models.DefaultFormData()
	data.OrganizationName = "Acme AS"
	data.OrganizationNumber = "123"
	data.RegistrationNumber = "456"
	data.NaceCode = "62.01"
	data.Industry = "Tech"
	data.Revenue = 100000
	data.NumberOfEmployees = 10
	data.ContactPerson = "Jane Doe"
	data.Email = "jane@acme.no"
	data.PhoneNumber = "+4712345678"
	data.BusinessModel = "We build software for Nordic SMEs."
	data.HasSubsidiaries = models.SubsidiariesNo
	return data
}

// ==========================
// Step 1
// ==========================

func TestValidateStep_Organization_Valid(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name   string
		mutate func(d *models.FormData)
	}{
		{"reference data", func(d *models.FormData) {}},
		{"minimum name length", func(d *models.FormData) { d.OrganizationName = "AB" }},
		{"zero revenue", func(d *models.FormData) { d.Revenue = 0 }},
		{"one employee", func(d *models.FormData) { d.NumberOfEmployees = 1 }},
		{"phone with spaces and parens", func(d *models.FormData) { d.PhoneNumber = "(+47) 123-45 678" }},
		{"nace code without dots", func(d *models.FormData) { d.NaceCode = "62" }},
		{"maximum revenue", func(d *models.FormData) { d.Revenue = 1e12 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validReport()
			tt.mutate(&data)

			result := v.ValidateStep(StepOrganization, data)

			assert.True(t, result.Valid(), "unexpected issues: %v", result.Issues)
			assert.Equal(t, StepOrganization, result.Step)
			assert.Equal(t, "Acme AS", result.Data["organizationName"])
		})
	}
}

func TestValidateStep_Organization_Invalid(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name        string
		mutate      func(d *models.FormData)
		path        string
		wantMessage string
	}{
		{"empty name", func(d *models.FormData) { d.OrganizationName = "" }, "organizationName",
			"Organization name must be at least 2 characters"},
		{"negative revenue", func(d *models.FormData) { d.Revenue = -1 }, "revenue",
			"Revenue cannot be negative"},
		{"revenue too large", func(d *models.FormData) { d.Revenue = 1e13 }, "revenue",
			"Revenue cannot exceed 1000000000000"},
		{"no employees", func(d *models.FormData) { d.NumberOfEmployees = 0 }, "numberOfEmployees",
			"Number of employees must be at least 1"},
		{"too many employees", func(d *models.FormData) { d.NumberOfEmployees = 1000001 }, "numberOfEmployees",
			"Number of employees cannot exceed 1000000"},
		{"nace code with letters", func(d *models.FormData) { d.NaceCode = "62a" }, "naceCode",
			"NACE code may only contain digits and dots"},
		{"phone with letters", func(d *models.FormData) { d.PhoneNumber = "call me maybe" }, "phoneNumber",
			"Phone number may only contain digits, spaces, +, - and parentheses"},
		{"malformed email", func(d *models.FormData) { d.Email = "jane-at-acme" }, "email",
			"Please enter a valid email address"},
		{"missing registration number", func(d *models.FormData) { d.RegistrationNumber = "" }, "registrationNumber",
			"Registration number is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := validReport()
			tt.mutate(&data)

			result := v.ValidateStep(StepOrganization, data)

			require.False(t, result.Valid())
			errs := result.Flatten()
			assert.Contains(t, errs, tt.path)
			assert.Equal(t, tt.wantMessage, errs[tt.path])
		})
	}
}

func TestValidateStep_Organization_FractionalEmployees(t *testing.T) {
	v := newTestValidator(t)
	doc, err := validReport().Document()
	require.NoError(t, err)
	doc["numberOfEmployees"] = 10.5

	result := v.ValidateStep(StepOrganization, doc)

	require.False(t, result.Valid())
	assert.Equal(t, "Number of employees must be a whole number", result.Flatten()["numberOfEmployees"])
}

func TestValidateStep_Organization_DefaultsFail(t *testing.T) {
	v := newTestValidator(t)

	result := v.ValidateStep(StepOrganization, models.DefaultFormData())

	errs := result.Flatten()
	for _, field := range []string{"organizationName", "organizationNumber", "naceCode", "email", "phoneNumber", "numberOfEmployees"} {
		assert.Contains(t, errs, field)
	}
	assert.NotContains(t, errs, "revenue", "zero revenue is allowed")
}

// ==========================
// Step 2
// ==========================

func TestValidateStep_BusinessModel(t *testing.T) {
	v := newTestValidator(t)

	t.Run("no subsidiaries", func(t *testing.T) {
		result := v.ValidateStep(StepBusinessModel, validReport())
		assert.True(t, result.Valid(), "unexpected issues: %v", result.Issues)
	})

	t.Run("flag unset gets a dedicated message", func(t *testing.T) {
		data := validReport()
		data.HasSubsidiaries = models.SubsidiariesUnset

		errs := v.ValidateStep(StepBusinessModel, data).Flatten()

		assert.Equal(t, MsgSubsidiaryFlagUnset, errs["hasSubsidiaries"])
	})

	t.Run("yes with empty list fails on subsidiaries path", func(t *testing.T) {
		data := validReport()
		data.HasSubsidiaries = models.SubsidiariesYes

		result := v.ValidateStep(StepBusinessModel, data)

		require.False(t, result.Valid())
		errs := result.Flatten()
		assert.Equal(t, MsgSubsidiariesRequired, errs["subsidiaries"])
		assert.NotContains(t, errs, "hasSubsidiaries")
	})

	t.Run("yes with a subsidiary passes", func(t *testing.T) {
		data := validReport()
		data.HasSubsidiaries = models.SubsidiariesYes
		data.Subsidiaries = []models.Subsidiary{
			models.NewSubsidiary("Acme Sverige AB", "556677-8899", "Storgatan 1, Stockholm"),
		}

		result := v.ValidateStep(StepBusinessModel, data)
		assert.True(t, result.Valid(), "unexpected issues: %v", result.Issues)
	})

	t.Run("invalid subsidiary uses dot-joined path", func(t *testing.T) {
		data := validReport()
		data.HasSubsidiaries = models.SubsidiariesYes
		data.Subsidiaries = []models.Subsidiary{
			models.NewSubsidiary("Acme Sverige AB", "556677-8899", "Storgatan 1, Stockholm"),
			models.NewSubsidiary("X", "1", "Oslo gate 2"),
		}

		errs := v.ValidateStep(StepBusinessModel, data).Flatten()

		assert.Equal(t, "Subsidiary name must be at least 2 characters", errs["subsidiaries.1.name"])
		assert.NotContains(t, errs, "subsidiaries")
	})

	t.Run("short description", func(t *testing.T) {
		data := validReport()
		data.BusinessModel = "Software"

		errs := v.ValidateStep(StepBusinessModel, data).Flatten()

		assert.Equal(t, "Business model description must be at least 10 characters", errs["businessModel"])
	})
}

// ==========================
// Step 3
// ==========================

func TestValidateStep_Initiatives(t *testing.T) {
	v := newTestValidator(t)

	t.Run("all inactive", func(t *testing.T) {
		result := v.ValidateStep(StepInitiatives, validReport())
		assert.True(t, result.Valid(), "unexpected issues: %v", result.Issues)
	})

	t.Run("complete active initiative", func(t *testing.T) {
		data := validReport()
		data.Initiatives[models.InitiativeClimateAction] = models.Initiative{
			IsActive:          true,
			Description:       "Switch the fleet to EVs",
			Goal:              "Halve scope 1 emissions by 2030",
			ResponsiblePerson: "Ola Nordmann",
		}

		result := v.ValidateStep(StepInitiatives, data)
		assert.True(t, result.Valid(), "unexpected issues: %v", result.Issues)
	})

	for _, missing := range []string{"description", "goal", "responsiblePerson"} {
		t.Run("active initiative missing "+missing, func(t *testing.T) {
			data := validReport()
			initiative := models.Initiative{
				IsActive:          true,
				Description:       "Restore wetlands",
				Goal:              "Two hectares restored",
				ResponsiblePerson: "Kari Nordmann",
			}
			switch missing {
			case "description":
				initiative.Description = ""
			case "goal":
				initiative.Goal = ""
			case "responsiblePerson":
				initiative.ResponsiblePerson = ""
			}
			data.Initiatives[models.InitiativeBiodiversity] = initiative

			result := v.ValidateStep(StepInitiatives, data)

			require.False(t, result.Valid())
			require.Len(t, result.Issues, 1)
			assert.Equal(t, Issue{Path: "initiatives", Message: MsgInitiativeIncomplete}, result.Issues[0])
		})
	}

	t.Run("inactive initiative may be empty", func(t *testing.T) {
		data := validReport()
		data.Initiatives[models.InitiativeWaterResources] = models.Initiative{IsActive: false, Goal: "ignored"}

		assert.True(t, v.ValidateStep(StepInitiatives, data).Valid())
	})

	t.Run("unknown initiative key", func(t *testing.T) {
		doc, err := validReport().Document()
		require.NoError(t, err)
		doc["initiatives"].(map[string]interface{})["spaceExploration"] = map[string]interface{}{"isActive": false}

		errs := v.ValidateStep(StepInitiatives, doc).Flatten()

		assert.Contains(t, errs, "initiatives.spaceExploration")
	})
}

// ==========================
// Contract
// ==========================

func TestValidateStep_InvalidStepPanics(t *testing.T) {
	v := newTestValidator(t)

	assert.Panics(t, func() { v.ValidateStep(0, validReport()) })
	assert.Panics(t, func() { v.ValidateStep(4, validReport()) })
}

func TestValidateStep_DocumentForms(t *testing.T) {
	v := newTestValidator(t)
	data := validReport()
	raw := []byte(`{"businessModel":"We build software for Nordic SMEs.","hasSubsidiaries":"no","subsidiaries":[]}`)

	assert.True(t, v.ValidateStep(StepBusinessModel, &data).Valid())
	assert.True(t, v.ValidateStep(StepBusinessModel, raw).Valid())

	result := v.ValidateStep(StepBusinessModel, []byte(`[1,2,3]`))
	require.False(t, result.Valid())
	assert.Equal(t, "document must be a JSON object", result.Issues[0].Message)
}

func TestValidateAll_AggregatesSteps(t *testing.T) {
	v := newTestValidator(t)
	data := validReport()
	data.OrganizationName = ""
	data.HasSubsidiaries = models.SubsidiariesYes
	data.Initiatives[models.InitiativeBusinessConduct] = models.Initiative{IsActive: true}

	result := v.ValidateAll(data)

	errs := result.Flatten()
	assert.Contains(t, errs, "organizationName")
	assert.Contains(t, errs, "subsidiaries")
	assert.Contains(t, errs, "initiatives")
	assert.Equal(t, 0, result.Step)

	assert.True(t, v.ValidateAll(validReport()).Valid())
}

func TestValidator_Metadata(t *testing.T) {
	v := newTestValidator(t)

	assert.Equal(t, 3, v.Steps())
	assert.Equal(t, "Organization info", v.Title(StepOrganization))
	assert.Equal(t, "Business model", v.Title(StepBusinessModel))
	assert.Equal(t, "Sustainability initiatives", v.Title(StepInitiatives))
}

func TestResult_FlattenKeepsFirstMessage(t *testing.T) {
	r := &Result{Issues: []Issue{
		{Path: "email", Message: "first"},
		{Path: "email", Message: "second"},
	}}

	assert.Equal(t, map[string]string{"email": "first"}, r.Flatten())
}

func TestLabelKey(t *testing.T) {
	assert.Equal(t, "subsidiaries.*.name", labelKey("subsidiaries.12.name"))
	assert.Equal(t, "subsidiaries.*", labelKey("subsidiaries.0"))
	assert.Equal(t, "email", labelKey("email"))
}
