// Package extract catalogues the interactive elements and form
// structure of a loaded page: forms, fields, buttons, links, inputs,
// navigation, auth detection, and page-type classification.
//
// Every per-element extractor degrades to an empty result on error
// rather than propagating it — a half-extracted page is still worth
// planning against, and nothing here may abort the crawl loop.
package extract

import (
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/qaengine/qaengine/internal/domain"
)

// Extractor has no state; every method takes the page/locator it needs.
type Extractor struct{}

func New() *Extractor { return &Extractor{} }

// Result bundles everything ExtractPage collects from one loaded page.
type Result struct {
	Title      string
	MetaDesc   string
	Forms      []domain.FormModel
	Elements   []domain.ElementModel
	HasAuth    bool
	PageType   domain.PageType
}

// ExtractPage runs every sub-extractor, degrading each to its zero
// value on error, then classifies the page.
func (e *Extractor) ExtractPage(page playwright.Page) *Result {
	r := &Result{}

	if title, err := page.Title(); err == nil {
		r.Title = title
	}
	if desc, err := page.Locator(`meta[name="description"]`).GetAttribute("content"); err == nil {
		r.MetaDesc = desc
	}

	r.Forms = e.extractForms(page)
	r.Elements = append(r.Elements, e.extractButtons(page)...)
	r.Elements = append(r.Elements, e.extractLinks(page)...)
	r.Elements = append(r.Elements, e.extractStandaloneInputs(page)...)

	r.HasAuth = e.detectAuth(page)
	r.PageType = e.classifyPage(r)

	return r
}

func (e *Extractor) extractForms(page playwright.Page) []domain.FormModel {
	var forms []domain.FormModel

	formLoc := page.Locator("form")
	count, err := formLoc.Count()
	if err != nil {
		return forms
	}

	for i := 0; i < count; i++ {
		form := formLoc.Nth(i)
		fm := domain.FormModel{Method: "GET"}

		if action, err := form.GetAttribute("action"); err == nil {
			fm.Action = action
		}
		if method, err := form.GetAttribute("method"); err == nil && method != "" {
			fm.Method = strings.ToUpper(method)
		}
		if id, err := form.GetAttribute("id"); err == nil && id != "" {
			fm.FormID = id
		} else {
			fm.FormID = domain.ElementID("form", i)
		}

		fm.Fields = e.extractFormFields(form)

		submit := form.Locator(`button[type="submit"], input[type="submit"]`).First()
		if sel, err := e.bestSelector(submit); err == nil {
			fm.SubmitSelector = sel
		}

		forms = append(forms, fm)
	}

	return forms
}

func (e *Extractor) extractFormFields(form playwright.Locator) []domain.FormField {
	var fields []domain.FormField

	inputLoc := form.Locator("input:not([type='hidden']):not([type='submit']):not([type='button']), textarea, select")
	count, err := inputLoc.Count()
	if err != nil {
		return fields
	}

	for i := 0; i < count; i++ {
		input := inputLoc.Nth(i)

		fieldType, _ := input.GetAttribute("type")
		if fieldType == "" {
			fieldType = "text"
		}
		if domain.IsExcludedFieldType(fieldType) {
			continue
		}

		field := domain.FormField{FieldType: fieldType}
		if name, err := input.GetAttribute("name"); err == nil {
			field.Name = name
		}
		if _, err := input.GetAttribute("required"); err == nil {
			field.Required = true
		}
		field.ValidationPattern = detectValidationPattern(field)

		sel, _ := e.bestSelector(input)
		field.Selector = sel

		fields = append(fields, field)
	}

	return fields
}

func (e *Extractor) extractButtons(page playwright.Page) []domain.ElementModel {
	return e.extractGeneric(page, `button, input[type="button"], input[type="submit"], [role="button"]`, "button")
}

func (e *Extractor) extractLinks(page playwright.Page) []domain.ElementModel {
	return e.extractGeneric(page, "a[href]", "link")
}

func (e *Extractor) extractStandaloneInputs(page playwright.Page) []domain.ElementModel {
	return e.extractGeneric(page, "input:not(form input):not([type='hidden']):not([type='submit']):not([type='button'])", "input")
}

func (e *Extractor) extractGeneric(page playwright.Page, cssSelector, elementType string) []domain.ElementModel {
	var out []domain.ElementModel

	loc := page.Locator(cssSelector)
	count, err := loc.Count()
	if err != nil {
		return out
	}

	for i := 0; i < count; i++ {
		el := loc.Nth(i)
		tag, _ := el.Evaluate("e => e.tagName.toLowerCase()", nil)
		tagStr, _ := tag.(string)

		sel, err := e.bestSelector(el)
		if err != nil || sel == "" {
			continue
		}

		text, _ := el.TextContent()
		em := domain.ElementModel{
			ElementID:   domain.ElementID(sel, i),
			Tag:         tagStr,
			Selector:    sel,
			Text:        strings.TrimSpace(text),
			Interactive: true,
			ElementType: elementType,
		}
		if ariaLabel, err := el.GetAttribute("aria-label"); err == nil && ariaLabel != "" {
			em.Role = ariaLabel
		}
		out = append(out, em)
	}

	return out
}

// bestSelector derives the preferred selector for an element:
// [data-testid] > #id > tag[name] > [aria-label] > tag.class.
func (e *Extractor) bestSelector(locator playwright.Locator) (string, error) {
	if testID, err := locator.GetAttribute("data-testid"); err == nil && testID != "" {
		return `[data-testid="` + testID + `"]`, nil
	}
	if id, err := locator.GetAttribute("id"); err == nil && id != "" {
		return "#" + id, nil
	}

	tag := "*"
	if t, err := locator.Evaluate("e => e.tagName.toLowerCase()", nil); err == nil {
		if ts, ok := t.(string); ok && ts != "" {
			tag = ts
		}
	}

	if name, err := locator.GetAttribute("name"); err == nil && name != "" {
		return tag + `[name="` + name + `"]`, nil
	}
	if ariaLabel, err := locator.GetAttribute("aria-label"); err == nil && ariaLabel != "" {
		return `[aria-label="` + ariaLabel + `"]`, nil
	}
	if class, err := locator.GetAttribute("class"); err == nil && class != "" {
		classes := strings.Fields(class)
		if len(classes) > 0 {
			n := len(classes)
			if n > 3 {
				n = 3
			}
			return tag + "." + strings.Join(classes[:n], "."), nil
		}
	}
	return tag, nil
}

func (e *Extractor) detectAuth(page playwright.Page) bool {
	authIndicators := []string{
		`input[type="password"]`,
		`[name*="password"]`,
		`form[action*="login"]`,
		`form[action*="signin"]`,
		`form[action*="auth"]`,
		`button:has-text("Sign in")`,
		`button:has-text("Log in")`,
		`a:has-text("Sign in")`,
		`a:has-text("Log in")`,
	}
	for _, selector := range authIndicators {
		if count, _ := page.Locator(selector).Count(); count > 0 {
			return true
		}
	}
	return false
}

// classifyPage classifies by priority: error > form > dashboard >
// listing > detail > static.
func (e *Extractor) classifyPage(r *Result) domain.PageType {
	titleLower := strings.ToLower(r.Title)
	if strings.Contains(titleLower, "error") || strings.Contains(titleLower, "404") || strings.Contains(titleLower, "not found") {
		return domain.PageTypeError
	}
	if len(r.Forms) > 0 {
		return domain.PageTypeForm
	}
	if strings.Contains(titleLower, "dashboard") || strings.Contains(titleLower, "admin") {
		return domain.PageTypeDashboard
	}
	if isListingPage(r) {
		return domain.PageTypeListing
	}
	if isDetailPage(r) {
		return domain.PageTypeDetail
	}
	return domain.PageTypeStatic
}

// isListingPage heuristically detects a collection/index page: many
// repeated link/button elements and no single dominant body of text.
func isListingPage(r *Result) bool {
	linkLike := 0
	for _, el := range r.Elements {
		if el.ElementType == "link" {
			linkLike++
		}
	}
	return linkLike >= 8
}

// isDetailPage heuristically detects a single-entity page: a handful
// of interactive elements, no forms, not link-heavy.
func isDetailPage(r *Result) bool {
	return len(r.Elements) > 0 && len(r.Elements) < 8
}

// ClassifyFormType labels a form by its field combination; the label
// feeds coverage signatures for form-submit tests.
func ClassifyFormType(form domain.FormModel) string {
	hasPassword, hasEmail, hasSearch, hasName := false, false, false, false
	for _, field := range form.Fields {
		nameLower := strings.ToLower(field.Name)
		if field.FieldType == "password" {
			hasPassword = true
		}
		if field.FieldType == "email" || strings.Contains(nameLower, "email") {
			hasEmail = true
		}
		if field.FieldType == "search" || strings.Contains(nameLower, "search") {
			hasSearch = true
		}
		if strings.Contains(nameLower, "name") {
			hasName = true
		}
	}
	switch {
	case hasSearch:
		return "search"
	case hasPassword && hasEmail && !hasName:
		return "login"
	case hasPassword && hasEmail && hasName:
		return "signup"
	case hasEmail && !hasPassword:
		return "contact"
	}
	actionLower := strings.ToLower(form.Action)
	switch {
	case strings.Contains(actionLower, "login") || strings.Contains(actionLower, "signin"):
		return "login"
	case strings.Contains(actionLower, "signup") || strings.Contains(actionLower, "register"):
		return "signup"
	case strings.Contains(actionLower, "search"):
		return "search"
	case strings.Contains(actionLower, "checkout"):
		return "checkout"
	case strings.Contains(actionLower, "contact"):
		return "contact"
	}
	return "generic"
}

func detectValidationPattern(field domain.FormField) string {
	nameLower := strings.ToLower(field.Name)
	switch field.FieldType {
	case "email":
		return "email"
	case "tel":
		return "phone"
	case "url":
		return "url"
	case "number":
		return "number"
	}
	switch {
	case strings.Contains(nameLower, "email"):
		return "email"
	case strings.Contains(nameLower, "phone") || strings.Contains(nameLower, "tel"):
		return "phone"
	case strings.Contains(nameLower, "zip") || strings.Contains(nameLower, "postal"):
		return "postal_code"
	}
	return ""
}
