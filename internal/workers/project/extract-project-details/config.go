// internal/workers/project/extract-project-details/config.go
package extractprojectdetails

import (
	"astro-backend-llm/internal/common/config"
	"astro-backend-llm/internal/common/llm"
)

type Config struct {
	GenerationModel   string
	ParserModel       string
	Temperature       float64
	ParserTemperature float64
	ResponseFormat    string
}

func LoadConfig(cfg config.LLMConfig) *Config {
	format := cfg.ParserResponseFormat
	if format == "" {
		format = llm.FormatJSONObject
	}
	parser := cfg.ParserModel
	if parser == "" {
		parser = cfg.GenerationModel
	}
	return &Config{
		GenerationModel:   cfg.GenerationModel,
		ParserModel:       parser,
		Temperature:       cfg.Temperature,
		ParserTemperature: 0,
		ResponseFormat:    format,
	}
}

const parserInstructions = `You extract structured project details from a project proposal.
Copy values from the proposal; do not invent talents or budgets that are not described.
Budgets are plain numbers without currency symbols or separators.
Every talent needs a job title, a budget allocation, a scope of work and a url_redirect.`
