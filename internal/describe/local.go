package describe

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	sprig "github.com/Masterminds/sprig/v3"
)

// localTemplate states the same facts the generation backend receives, as one
// templated sentence. It is the degradation path when no backend is configured
// or the backend fails.
const localTemplate = `Customer {{ .CustomerID }}:` +
	`{{ if .Sectors }} Active sectors include {{ join ", " .SectorNames }}.{{ end }}` +
	`{{ if .HasLocation }} Located near ({{ printf "%.2f" .Latitude }}, {{ printf "%.2f" .Longitude }}).{{ end }}` +
	`{{ if .Counts }} Activity snapshot: {{ join "; " .CountSummaries }}.{{ end }}`

// Formatter renders facts into a deterministic local description.
type Formatter struct {
	tmpl *template.Template
}

// NewFormatter compiles the local description template with sprig's text
// helpers.
func NewFormatter() (*Formatter, error) {
	tmpl, err := template.New("description").Funcs(sprig.TxtFuncMap()).Parse(localTemplate)
	if err != nil {
		return nil, fmt.Errorf("describe: parse template: %w", err)
	}
	return &Formatter{tmpl: tmpl}, nil
}

// Format renders the facts. The output always opens with the customer id and
// only mentions facts that are present.
func (f *Formatter) Format(facts Facts) (string, error) {
	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, templateFacts{facts}); err != nil {
		return "", fmt.Errorf("describe: render template: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

// templateFacts flattens the coordinate pointers for the template, which
// cannot deref them inside printf.
type templateFacts struct {
	Facts
}

func (t templateFacts) Latitude() float64 {
	if t.Facts.Latitude == nil {
		return 0
	}
	return *t.Facts.Latitude
}

func (t templateFacts) Longitude() float64 {
	if t.Facts.Longitude == nil {
		return 0
	}
	return *t.Facts.Longitude
}
