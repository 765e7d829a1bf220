// internal/template/providers.go
package template

import (
	"strconv"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// Meta (WhatsApp Cloud API) envelope.

type MetaPayload struct {
	MessagingProduct string       `json:"messaging_product"`
	To               string       `json:"to"`
	Type             string       `json:"type"`
	Template         MetaTemplate `json:"template"`
}

type MetaTemplate struct {
	Name       string          `json:"name"`
	Language   MetaLanguage    `json:"language"`
	Components []MetaComponent `json:"components,omitempty"`
}

type MetaLanguage struct {
	Code string `json:"code"`
}

type MetaComponent struct {
	Type       string      `json:"type"`
	SubType    string      `json:"sub_type,omitempty"`
	Index      string      `json:"index,omitempty"`
	Parameters []MetaParam `json:"parameters,omitempty"`
}

type MetaParam struct {
	Type          string     `json:"type"`
	ParameterName string     `json:"parameter_name,omitempty"`
	Text          string     `json:"text,omitempty"`
	Image         *MetaMedia `json:"image,omitempty"`
	Video         *MetaMedia `json:"video,omitempty"`
	Document      *MetaMedia `json:"document,omitempty"`
}

type MetaMedia struct {
	Link string `json:"link"`
}

func buildMetaPayload(req BuildRequest, tmpl *model.MessageTemplate, body []string, headerURL string, buttons []resolvedButton) MetaPayload {
	var components []MetaComponent

	if headerURL != "" {
		media := &MetaMedia{Link: headerURL}
		param := MetaParam{Type: tmpl.HeaderKind}
		switch tmpl.HeaderKind {
		case model.HeaderKindImage:
			param.Image = media
		case model.HeaderKindVideo:
			param.Video = media
		case model.HeaderKindDocument:
			param.Document = media
		}
		components = append(components, MetaComponent{Type: "header", Parameters: []MetaParam{param}})
	}

	if len(body) > 0 {
		params := make([]MetaParam, 0, len(body))
		for i, v := range body {
			p := MetaParam{Type: "text", Text: v}
			if tmpl.ParamFormat == model.ParamFormatNamed && i < len(tmpl.NamedTokens) {
				p.ParameterName = tmpl.NamedTokens[i]
			}
			params = append(params, p)
		}
		components = append(components, MetaComponent{Type: "body", Parameters: params})
	}

	for _, b := range buttons {
		components = append(components, MetaComponent{
			Type:       "button",
			SubType:    "url",
			Index:      strconv.Itoa(b.index),
			Parameters: []MetaParam{{Type: "text", Text: b.param}},
		})
	}

	return MetaPayload{
		MessagingProduct: "whatsapp",
		To:               req.Phone,
		Type:             "template",
		Template: MetaTemplate{
			Name:       tmpl.Name,
			Language:   MetaLanguage{Code: tmpl.Language},
			Components: components,
		},
	}
}

// Gupshup aggregator envelope. Shares all body/button resolution with the
// meta path; only the wrapper differs. Gupshup takes body and button values
// as one flat params list, buttons appended after body.

type GupshupPayload struct {
	Channel     string          `json:"channel"`
	Source      string          `json:"source"`
	Destination string          `json:"destination"`
	Template    GupshupTemplate `json:"template"`
	Message     *GupshupMedia   `json:"message,omitempty"`
}

type GupshupTemplate struct {
	ID           string   `json:"id"`
	LanguageCode string   `json:"languageCode,omitempty"`
	Params       []string `json:"params"`
}

type GupshupMedia struct {
	Type  string `json:"type"`
	Link  string `json:"url"`
	IsHSM bool   `json:"isHSM"`
}

func buildGupshupPayload(req BuildRequest, tmpl *model.MessageTemplate, body []string, headerURL string, buttons []resolvedButton) GupshupPayload {
	params := make([]string, 0, len(body)+len(buttons))
	params = append(params, body...)
	for _, b := range buttons {
		params = append(params, b.param)
	}

	payload := GupshupPayload{
		Channel:     "whatsapp",
		Source:      req.SenderID,
		Destination: req.Phone,
		Template: GupshupTemplate{
			ID:           tmpl.Name,
			LanguageCode: tmpl.Language,
			Params:       params,
		},
	}
	if headerURL != "" {
		payload.Message = &GupshupMedia{Type: tmpl.HeaderKind, Link: headerURL, IsHSM: true}
	}
	return payload
}
