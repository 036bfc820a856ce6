package services

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-outreach-batch/internal/domain"
	"github.com/tbourn/go-outreach-batch/internal/table"
	"github.com/tbourn/go-outreach-batch/internal/validate"
)

// TemplateSheet is the workbook sheet holding payout messages.
const TemplateSheet = "Template"

// Template is the e-mail subject and note body of a study's payouts.
type Template struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// LoadTemplate returns the template of study from path: either a YAML file
// mapping study names to templates, or a workbook with a Template sheet
// holding study, subject and body columns.
//
//	pilot:
//	  subject: Thanks for taking part
//	  body: "Hi {first_name}, here is your payment."
func LoadTemplate(path, study string) (Template, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlTemplate(path, study)
	case ".xlsx", ".xlsm":
		return sheetTemplate(path, study)
	}
	return Template{}, domain.NewSchemaError(ErrUnsupportedTemplate, "%s", path)
}

func yamlTemplate(path, study string) (Template, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Template{}, fmt.Errorf("read template: %w", err)
	}
	var all map[string]Template
	if err := yaml.Unmarshal(b, &all); err != nil {
		return Template{}, fmt.Errorf("parse template %s: %w", path, err)
	}
	tpl, ok := all[study]
	if !ok {
		return Template{}, domain.NewSchemaError(domain.ErrUnknownStudy, "%q", study)
	}
	return tpl, nil
}

func sheetTemplate(path, study string) (Template, error) {
	t, err := table.ReadFile(path, TemplateSheet)
	if err != nil {
		return Template{}, fmt.Errorf("read template sheet: %w", err)
	}
	if err := validate.RequireColumns(t, "study", "subject", "body"); err != nil {
		return Template{}, err
	}
	for r := range t.Rows {
		if t.Get(r, "study") == study {
			return Template{Subject: t.Get(r, "subject"), Body: t.Get(r, "body")}, nil
		}
	}
	return Template{}, domain.NewSchemaError(domain.ErrUnknownStudy, "%q", study)
}

// RenderNote fills the payee's first name into body. Both the positional
// "{}" and the named "{first_name}" placeholders are accepted.
func RenderNote(body, firstName string) string {
	return strings.NewReplacer("{first_name}", firstName, "{}", firstName).Replace(body)
}
