package domain

// excludedFieldTypes are never surfaced as a FormField — they carry no
// user-meaningful input and the planner has nothing useful to say about them.
var excludedFieldTypes = map[string]bool{
	"hidden": true,
	"submit": true,
	"button": true,
	"reset":  true,
	"image":  true,
}

// IsExcludedFieldType reports whether fieldType should be dropped from
// FormModel.Fields.
func IsExcludedFieldType(fieldType string) bool {
	return excludedFieldTypes[fieldType]
}

// FormField is one input/select/textarea inside a form, excluding
// hidden/submit/button/reset/image controls.
type FormField struct {
	Name              string   `json:"name"`
	FieldType         string   `json:"field_type"`
	Required          bool     `json:"required"`
	ValidationPattern string   `json:"validation_pattern,omitempty"`
	Options           []string `json:"options,omitempty"`
	Selector          string   `json:"selector"`
}

// FormModel describes one <form> on a page.
type FormModel struct {
	FormID         string      `json:"form_id"`
	Action         string      `json:"action"`
	Method         string      `json:"method"`
	Fields         []FormField `json:"fields"`
	SubmitSelector string      `json:"submit_selector,omitempty"`
}
