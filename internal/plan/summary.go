package plan

import (
	"encoding/json"

	"github.com/qaengine/qaengine/internal/coverage"
	"github.com/qaengine/qaengine/internal/domain"
)

const (
	maxPagesInSummary    = 30
	maxElementsInSummary = 20
)

// pageSummary is the condensed per-page view sent to the planning LLM.
type pageSummary struct {
	PageID                  string              `json:"page_id"`
	URL                     string              `json:"url"`
	Type                    domain.PageType     `json:"type"`
	Title                   string              `json:"title,omitempty"`
	AuthRequired            domain.AuthRequired `json:"auth_required"`
	InteractiveElementCount int                 `json:"interactive_element_count"`
	Forms                   []formSummary       `json:"forms,omitempty"`
	KeyElements             []elementSummary    `json:"key_elements,omitempty"`
}

type formSummary struct {
	FormID         string        `json:"form_id"`
	Action         string        `json:"action,omitempty"`
	Method         string        `json:"method"`
	Fields         []fieldSummary `json:"fields"`
	SubmitSelector string        `json:"submit_selector,omitempty"`
}

type fieldSummary struct {
	Name      string `json:"name,omitempty"`
	FieldType string `json:"field_type"`
	Required  bool   `json:"required,omitempty"`
	Selector  string `json:"selector"`
}

type elementSummary struct {
	Selector string `json:"selector"`
	Type     string `json:"type,omitempty"`
	Text     string `json:"text,omitempty"`
}

type siteSummary struct {
	BaseURL      string        `json:"base_url"`
	PageCount    int           `json:"page_count"`
	Pages        []pageSummary `json:"pages"`
	APIEndpoints []string      `json:"api_endpoints,omitempty"`
	HasAuthFlow  bool          `json:"has_auth_flow"`
}

// summarizeSite condenses the site model to at most 30 pages, each
// carrying at most 20 key interactive elements, so the prompt stays
// within budget on large sites.
func summarizeSite(site *domain.SiteModel) siteSummary {
	s := siteSummary{
		BaseURL:      site.BaseURL,
		PageCount:    len(site.Pages),
		APIEndpoints: site.APIEndpoints,
		HasAuthFlow:  site.AuthFlow != nil,
	}

	n := len(site.Pages)
	if n > maxPagesInSummary {
		n = maxPagesInSummary
	}
	for i := 0; i < n; i++ {
		pm := &site.Pages[i]
		ps := pageSummary{
			PageID:                  pm.PageID,
			URL:                     pm.URL,
			Type:                    pm.PageType,
			Title:                   pm.Title,
			AuthRequired:            pm.AuthRequired,
			InteractiveElementCount: pm.InteractiveElementCount(),
		}
		for _, fm := range pm.Forms {
			fs := formSummary{
				FormID:         fm.FormID,
				Action:         fm.Action,
				Method:         fm.Method,
				SubmitSelector: fm.SubmitSelector,
			}
			for _, f := range fm.Fields {
				fs.Fields = append(fs.Fields, fieldSummary{
					Name: f.Name, FieldType: f.FieldType, Required: f.Required, Selector: f.Selector,
				})
			}
			ps.Forms = append(ps.Forms, fs)
		}
		for _, el := range pm.Elements {
			if !el.Interactive {
				continue
			}
			ps.KeyElements = append(ps.KeyElements, elementSummary{
				Selector: el.Selector, Type: el.ElementType, Text: truncate(el.Text, 60),
			})
			if len(ps.KeyElements) >= maxElementsInSummary {
				break
			}
		}
		s.Pages = append(s.Pages, ps)
	}
	return s
}

func summarizeSiteJSON(site *domain.SiteModel) string {
	data, err := json.MarshalIndent(summarizeSite(site), "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func summarizeGapsJSON(gaps *coverage.GapReport) string {
	if gaps == nil || gaps.IsEmpty() {
		return `{"note": "no coverage history yet; treat every page as untested"}`
	}
	data, err := json.MarshalIndent(gaps, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
