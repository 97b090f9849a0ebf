// Package template renders automation messages for a lead.
package template

import (
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/dukex/leadflow/pkg/models"
)

// DeadlineLayout is how {deadline} is printed.
const DeadlineLayout = "02/01/2006"

// Data is what a message template can reference.
type Data struct {
	Lead    *models.Lead
	Company string
	Vars    map[string]string
	Now     time.Time
}

// RenderMessage executes message as a text/template with Data as the dot when it contains "{{",
// then substitutes the {client_name}, {company_name} and {deadline} placeholders and any {var}
// from vars. Lead and variable values are never parsed as template code.
func RenderMessage(message string, lead *models.Lead, vars map[string]string, now time.Time) (string, error) {
	data := Data{Lead: lead, Vars: vars, Now: now}
	if lead != nil {
		data.Company = lead.Company
	}

	rendered := message

	if strings.Contains(message, "{{") {
		var err error

		rendered, err = Render(message, data)
		if err != nil {
			return "", err
		}
	}

	return placeholders(data).Replace(rendered), nil
}

func placeholders(data Data) *strings.Replacer {
	deadline := ""
	name := ""

	if data.Lead != nil {
		name = data.Lead.Name
		if data.Lead.Deadline != nil {
			deadline = data.Lead.Deadline.Format(DeadlineLayout)
		}
	}

	pairs := []string{
		"{client_name}", name,
		"{company_name}", data.Company,
		"{deadline}", deadline,
	}

	for key, value := range data.Vars {
		pairs = append(pairs, "{"+key+"}", value)
	}

	return strings.NewReplacer(pairs...)
}

// Render executes templateStr as a Go text/template against data.
func Render(templateStr string, data any) (string, error) {
	tmpl, err := template.
		New("message").
		Option("missingkey=zero").
		Funcs(template.FuncMap{
			"upper": strings.ToUpper,
			"lower": strings.ToLower,
			"date": func(layout string, t time.Time) string {
				return t.Format(layout)
			},
		}).Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	return buf.String(), nil
}
