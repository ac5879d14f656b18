package models

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validDetails() *ProjectDetails {
	return &ProjectDetails{
		ProjectName:        "Demo Marketplace",
		ProjectDescription: "A two-sided marketplace connecting freelance designers with small businesses.",
		ProjectDuration:    "3 months",
		ProjectBudget:      5000000,
		TalentsRequired: []TalentRequirement{
			{
				JobTitle:         "Backend Developer",
				BudgetAllocation: 2000000,
				ScopeOfWork:      "Build the REST API and payment integration.",
				URLRedirect:      "https://example.com",
			},
		},
	}
}

func TestProjectDetails_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(p *ProjectDetails)
		wantInvalid string
	}{
		{name: "valid record", mutate: func(p *ProjectDetails) {}},
		{name: "name too short", mutate: func(p *ProjectDetails) { p.ProjectName = "Demo" }, wantInvalid: "project_name"},
		{name: "name too long", mutate: func(p *ProjectDetails) { p.ProjectName = strings.Repeat("n", 201) }, wantInvalid: "project_name"},
		{name: "description too short", mutate: func(p *ProjectDetails) { p.ProjectDescription = "short" }, wantInvalid: "project_description"},
		{name: "zero budget", mutate: func(p *ProjectDetails) { p.ProjectBudget = 0 }, wantInvalid: "project_budget"},
		{name: "negative budget", mutate: func(p *ProjectDetails) { p.ProjectBudget = -1 }, wantInvalid: "project_budget"},
		{name: "no talents", mutate: func(p *ProjectDetails) { p.TalentsRequired = nil }, wantInvalid: "talents_required"},
		{name: "talent title too short", mutate: func(p *ProjectDetails) { p.TalentsRequired[0].JobTitle = "QA" }, wantInvalid: "talents_required.0.job_title"},
		{name: "talent zero allocation", mutate: func(p *ProjectDetails) { p.TalentsRequired[0].BudgetAllocation = 0 }, wantInvalid: "talents_required.0.budget_allocation"},
		{name: "talent scope too long", mutate: func(p *ProjectDetails) { p.TalentsRequired[0].ScopeOfWork = strings.Repeat("s", 1501) }, wantInvalid: "talents_required.0.scope_of_work"},
		{name: "talent blank redirect", mutate: func(p *ProjectDetails) { p.TalentsRequired[0].URLRedirect = "  " }, wantInvalid: "talents_required.0.url_redirect"},
		{name: "multibyte name counts characters", mutate: func(p *ProjectDetails) { p.ProjectName = "プロジェクト" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validDetails()
			tt.mutate(p)

			err := p.Validate()
			if tt.wantInvalid == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantInvalid)
		})
	}
}

func TestProjectDetails_JSONShape(t *testing.T) {
	data, err := json.Marshal(validDetails())
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"project_name", "project_description", "project_duration", "project_budget", "talents_required"} {
		assert.Contains(t, raw, key)
	}
	talent := raw["talents_required"].([]interface{})[0].(map[string]interface{})
	for _, key := range []string{"job_title", "budget_allocation", "scope_of_work", "url_redirect"} {
		assert.Contains(t, talent, key)
	}
}

func TestProjectDetailsSchema_AcceptsValidRecord(t *testing.T) {
	data, err := json.Marshal(validDetails())
	require.NoError(t, err)

	result := ProjectDetailsSchema.ValidateJSON(data)
	assert.True(t, result.Valid, result.GetErrorMessages())
}

func TestProjectDetailsSchema_RejectsExtraFields(t *testing.T) {
	result := ProjectDetailsSchema.ValidateJSON([]byte(`{
		"project_name": "Demo Marketplace",
		"project_description": "A two-sided marketplace connecting freelance designers with small businesses.",
		"project_duration": "3 months",
		"project_budget": 10,
		"talents_required": [{"job_title": "Dev", "budget_allocation": 1, "scope_of_work": "Build all the things", "url_redirect": "x"}],
		"confidence": 0.9
	}`))
	assert.False(t, result.Valid)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "(root)", result.Errors[0].Field)
}

func TestGenerateRequestSchema(t *testing.T) {
	tests := []struct {
		body  string
		valid bool
	}{
		{`{"prompt": "build me an app"}`, true},
		{`{"prompt": ""}`, false},
		{`{"prompt": "   "}`, false},
		{`{"prompt": 42}`, false},
		{`{}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			assert.Equal(t, tt.valid, GenerateRequestSchema.ValidateJSON([]byte(tt.body)).Valid)
		})
	}
}

// The hand-written checks and the JSON schema must agree on every record.
func TestProjectDetails_ValidateAgreesWithSchema(t *testing.T) {
	urlRunes := []rune("ab:/. ")

	talentGen := rapid.Custom(func(t *rapid.T) TalentRequirement {
		return TalentRequirement{
			JobTitle:         rapid.StringN(0, 110, -1).Draw(t, "job_title"),
			BudgetAllocation: rapid.Float64Range(-10, 1e7).Draw(t, "budget_allocation"),
			ScopeOfWork:      rapid.StringN(0, 1600, -1).Draw(t, "scope_of_work"),
			URLRedirect:      rapid.StringOfN(rapid.RuneFrom(urlRunes), 0, 20, -1).Draw(t, "url_redirect"),
		}
	})

	rapid.Check(t, func(t *rapid.T) {
		p := &ProjectDetails{
			ProjectName:        rapid.StringN(0, 210, -1).Draw(t, "project_name"),
			ProjectDescription: rapid.StringN(0, 1100, -1).Draw(t, "project_description"),
			ProjectDuration:    rapid.String().Draw(t, "project_duration"),
			ProjectBudget:      rapid.Float64Range(-10, 1e9).Draw(t, "project_budget"),
			TalentsRequired:    rapid.SliceOfN(talentGen, 0, 3).Draw(t, "talents_required"),
		}
		if len(p.TalentsRequired) == 0 {
			p.TalentsRequired = []TalentRequirement{}
		}

		data, err := json.Marshal(p)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}

		schemaValid := ProjectDetailsSchema.ValidateJSON(data).Valid
		checkValid := p.Validate() == nil
		if schemaValid != checkValid {
			t.Fatalf("schema valid=%v, Validate valid=%v for %s", schemaValid, checkValid, data)
		}
		if checkValid {
			if p.ProjectBudget <= 0 || len(p.TalentsRequired) < 1 {
				t.Fatalf("accepted record violates invariants: %s", data)
			}
			for _, talent := range p.TalentsRequired {
				if talent.BudgetAllocation <= 0 {
					t.Fatalf("accepted talent with non-positive budget: %s", data)
				}
			}
		}
	})
}
