// internal/models/project.go
package models

import (
	"fmt"

	"astro-backend-llm/internal/common/validation"
)

// Field bounds, counted in characters.
const (
	ProjectNameMin        = 5
	ProjectNameMax        = 200
	ProjectDescriptionMin = 50
	ProjectDescriptionMax = 1000
	JobTitleMin           = 3
	JobTitleMax           = 100
	ScopeOfWorkMin        = 10
	ScopeOfWorkMax        = 1500
)

type GenerateRequest struct {
	Prompt string `json:"prompt"`
}

type DefaultResponse struct {
	Message string `json:"message"`
}

type TalentRequirement struct {
	JobTitle         string  `json:"job_title"`
	BudgetAllocation float64 `json:"budget_allocation"`
	ScopeOfWork      string  `json:"scope_of_work"`
	URLRedirect      string  `json:"url_redirect"`
}

// ProjectDetails is the structured record returned for a prompt. Values are built once per
// request and never mutated afterwards.
type ProjectDetails struct {
	ProjectName        string              `json:"project_name"`
	ProjectDescription string              `json:"project_description"`
	ProjectDuration    string              `json:"project_duration"`
	ProjectBudget      float64             `json:"project_budget"`
	TalentsRequired    []TalentRequirement `json:"talents_required"`
}

func (p *ProjectDetails) Validate() error {
	c := validation.NewChecker()

	c.Length("project_name", p.ProjectName, ProjectNameMin, ProjectNameMax)
	c.Length("project_description", p.ProjectDescription, ProjectDescriptionMin, ProjectDescriptionMax)
	c.Positive("project_budget", p.ProjectBudget)
	c.MinItems("talents_required", len(p.TalentsRequired), 1)

	for i, t := range p.TalentsRequired {
		t.check(c, fmt.Sprintf("talents_required.%d", i))
	}
	return c.Err()
}

func (t TalentRequirement) check(c *validation.Checker, prefix string) {
	c.Length(prefix+".job_title", t.JobTitle, JobTitleMin, JobTitleMax)
	c.Positive(prefix+".budget_allocation", t.BudgetAllocation)
	c.Length(prefix+".scope_of_work", t.ScopeOfWork, ScopeOfWorkMin, ScopeOfWorkMax)
	c.NotBlank(prefix+".url_redirect", t.URLRedirect)
}
