// internal/models/schema.go
package models

import "astro-backend-llm/internal/common/validation"

const ProjectDetailsSchemaName = "project_details"

// projectDetailsSchemaJSON is sent to the parser model and used to check its answer.
const projectDetailsSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "ProjectDetails",
  "type": "object",
  "additionalProperties": false,
  "required": ["project_name", "project_description", "project_duration", "project_budget", "talents_required"],
  "properties": {
    "project_name": {
      "type": "string",
      "description": "Short name of the project",
      "minLength": 5,
      "maxLength": 200
    },
    "project_description": {
      "type": "string",
      "description": "Summary of the project goals and deliverables",
      "minLength": 50,
      "maxLength": 1000
    },
    "project_duration": {
      "type": "string",
      "description": "Expected duration, e.g. \"3 months\""
    },
    "project_budget": {
      "type": "number",
      "description": "Total project budget",
      "exclusiveMinimum": 0
    },
    "talents_required": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["job_title", "budget_allocation", "scope_of_work", "url_redirect"],
        "properties": {
          "job_title": {"type": "string", "minLength": 3, "maxLength": 100},
          "budget_allocation": {"type": "number", "exclusiveMinimum": 0},
          "scope_of_work": {"type": "string", "minLength": 10, "maxLength": 1500},
          "url_redirect": {"type": "string", "minLength": 1, "pattern": "\\S"}
        }
      }
    }
  }
}`

const generateRequestSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["prompt"],
  "properties": {
    "prompt": {
      "type": "string",
      "minLength": 1,
      "pattern": "\\S"
    }
  }
}`

var (
	ProjectDetailsSchema  = validation.MustCompile(ProjectDetailsSchemaName, []byte(projectDetailsSchemaJSON))
	GenerateRequestSchema = validation.MustCompile("generate_request", []byte(generateRequestSchemaJSON))
)
