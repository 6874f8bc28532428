package response

import (
	"embed"
	"fmt"
	"html/template"
	"os"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Views son las vistas HTML del authorize endpoint.
type Views struct {
	consent *template.Template
	errView *template.Template
	// Action es el endpoint al que postea la vista de consentimiento.
	Action string
}

// LoadViews carga las vistas embebidas. Con consentPath no vacío, la vista de
// consentimiento se lee de ese archivo.
func LoadViews(consentPath, action string) (*Views, error) {
	v := &Views{Action: action}
	var err error
	if consentPath != "" {
		raw, rerr := os.ReadFile(consentPath)
		if rerr != nil {
			return nil, fmt.Errorf("response: read consent template: %w", rerr)
		}
		v.consent, err = template.New("consent").Parse(string(raw))
	} else {
		v.consent, err = template.ParseFS(templatesFS, "templates/consent.html")
	}
	if err != nil {
		return nil, fmt.Errorf("response: parse consent template: %w", err)
	}
	if v.errView, err = template.ParseFS(templatesFS, "templates/error.html"); err != nil {
		return nil, fmt.Errorf("response: parse error template: %w", err)
	}
	return v, nil
}

// MustLoadDefaultViews carga solo las vistas embebidas; entra en pánico si no parsean.
func MustLoadDefaultViews(action string) *Views {
	v, err := LoadViews("", action)
	if err != nil {
		panic(err)
	}
	return v
}
