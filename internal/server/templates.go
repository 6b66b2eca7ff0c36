package server

import (
	_ "embed"
	"html/template"
)

//go:embed templates/landing.html
var landingPageTemplateHTML string

var landingPageTemplate = template.Must(template.New("landing").Parse(landingPageTemplateHTML))

// LandingPageData represents the data for the redirect landing page
type LandingPageData struct {
	Name         string
	CSRFToken    string
	CSRFHeader   string
	FragmentPath string
	HomeURL      string
}
