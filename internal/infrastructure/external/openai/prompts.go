package openai

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed default_prompts.yaml
var defaultPrompts []byte

// PromptConfig holds the prompts and model parameters used by the extractor
type PromptConfig struct {
	InvoiceExtraction struct {
		Temperature  float32 `yaml:"temperature"`
		MaxTokens    int     `yaml:"max_tokens"`
		System       string  `yaml:"system"`
		UserTemplate string  `yaml:"user_template"`
	} `yaml:"invoice_extraction"`
}

// promptData is the input of the user prompt template
type promptData struct {
	Categories []string
	Pages      int
}

// LoadPrompts loads prompt configuration from a YAML file. An empty path
// loads the prompts compiled into the binary.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	data := defaultPrompts
	if promptsPath != "" {
		var err error
		data, err = os.ReadFile(promptsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read prompts file: %w", err)
		}
	}

	var prompts PromptConfig
	if err := yaml.Unmarshal(data, &prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}
	if strings.TrimSpace(prompts.InvoiceExtraction.UserTemplate) == "" {
		return nil, fmt.Errorf("prompts file has no invoice_extraction.user_template")
	}

	// fail at startup rather than on the first receipt
	if _, err := renderTemplate(prompts.InvoiceExtraction.UserTemplate, promptData{Pages: 1}); err != nil {
		return nil, err
	}
	return &prompts, nil
}

var templateFuncs = template.FuncMap{
	"join": strings.Join,
}

// renderTemplate renders a template with provided data
func renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("prompt").Funcs(templateFuncs).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
