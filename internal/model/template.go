// internal/model/template.go
package model

import "time"

const (
	ParamFormatPositional = "positional"
	ParamFormatNamed      = "named"
)

const (
	HeaderKindNone     = "none"
	HeaderKindText     = "text"
	HeaderKindImage    = "image"
	HeaderKindVideo    = "video"
	HeaderKindDocument = "document"
)

// MessageTemplate is the resolved metadata of an approved provider template.
// Whether parameters are positional ({{1}}) or named ({{token}}) is a property
// of the template, decided once.
type MessageTemplate struct {
	ID             int              `db:"id" json:"id"`
	BusinessID     int              `db:"business_id" json:"business_id"`
	Name           string           `db:"name" json:"name"`
	Language       string           `db:"language" json:"language"`
	ParamFormat    string           `db:"param_format" json:"param_format"`
	BodyParamCount int              `db:"body_param_count" json:"body_param_count"`
	NamedTokens    []string         `db:"named_tokens" json:"named_tokens"`
	HeaderKind     string           `db:"header_kind" json:"header_kind"`
	Buttons        []TemplateButton `db:"buttons" json:"buttons"`
	CreatedAt      time.Time        `db:"created_at" json:"created_at"`
}

// TemplateButton is a button as declared on the approved template. Value holds
// the declared destination; a placeholder inside it makes the button dynamic.
type TemplateButton struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Value string `json:"value"`
}

func (b TemplateButton) ButtonKind() string  { return b.Type }
func (b TemplateButton) ButtonValue() string { return b.Value }

// HasMediaHeader reports whether the template declares an image, video or
// document header.
func (t *MessageTemplate) HasMediaHeader() bool {
	switch t.HeaderKind {
	case HeaderKindImage, HeaderKindVideo, HeaderKindDocument:
		return true
	}
	return false
}
