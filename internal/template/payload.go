// internal/template/payload.go
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

// BuildRequest carries everything needed to assemble one provider payload for
// one recipient. Build has no side effects beyond click-token generation; the
// caller persists the returned link records.
type BuildRequest struct {
	Provider        string
	CampaignID      int
	RecipientID     int
	Phone           string
	BodyParams      []string
	ButtonParams    map[string]string
	Template        *model.MessageTemplate
	CampaignButtons []model.CampaignButton
	HeaderMediaURL  string
	SenderID        string
	TrackerBaseURL  string
}

// LinkRecord is a click-tracking link minted during payload construction.
// Tokens are stable per campaign/recipient/destination, so rebuilding the
// payload for a retry yields the same records.
type LinkRecord struct {
	Token       string
	Destination string
	TrackedURL  string
}

// BuildResult is the provider-specific payload plus the tracking links that
// back its dynamic buttons.
type BuildResult struct {
	Provider string
	Body     any
	Links    []LinkRecord
}

type resolvedButton struct {
	index int
	param string
}

// Build resolves body parameters and dynamic buttons and assembles the
// envelope for the campaign's configured provider.
func Build(req BuildRequest) (*BuildResult, error) {
	tmpl := req.Template
	if tmpl == nil {
		return nil, fmt.Errorf("no template metadata")
	}

	body, err := NormalizeBodyParams(req.BodyParams, tmpl.BodyParamCount)
	if err != nil {
		return nil, err
	}

	headerURL := ""
	if tmpl.HasMediaHeader() {
		if strings.TrimSpace(req.HeaderMediaURL) == "" {
			return nil, fmt.Errorf("template %q declares a %s header but no header media URL is set", tmpl.Name, tmpl.HeaderKind)
		}
		headerURL = req.HeaderMediaURL
	}

	buttons, links, err := resolveButtons(req, body)
	if err != nil {
		return nil, err
	}

	result := &BuildResult{Provider: req.Provider, Links: links}
	switch req.Provider {
	case model.ProviderMeta:
		result.Body = buildMetaPayload(req, tmpl, body, headerURL, buttons)
	case model.ProviderGupshup:
		result.Body = buildGupshupPayload(req, tmpl, body, headerURL, buttons)
	default:
		return nil, fmt.Errorf("unsupported provider %q", req.Provider)
	}
	return result, nil
}

// resolveButtons fires only for buttons the template declares as dynamic.
func resolveButtons(req BuildRequest, body []string) ([]resolvedButton, []LinkRecord, error) {
	var out []resolvedButton
	var links []LinkRecord

	for i, tb := range req.Template.Buttons {
		if !IsDynamic(tb) {
			continue
		}
		if !strings.EqualFold(tb.Type, "url") {
			return nil, nil, fmt.Errorf("button %d: template expects a dynamic URL but button type is %q", i, tb.Type)
		}
		if i >= len(req.CampaignButtons) || strings.TrimSpace(req.CampaignButtons[i].Value) == "" {
			return nil, nil, fmt.Errorf("button %d: missing dynamic button destination", i)
		}

		dest := fillButtonTemplate(req.CampaignButtons[i].Value, req.ButtonParams, body, req.Phone)
		if err := validateDestination(dest); err != nil {
			return nil, nil, fmt.Errorf("button %d: %w", i, err)
		}

		token := clickToken(req.CampaignID, req.RecipientID, dest)
		tracked := strings.TrimRight(req.TrackerBaseURL, "/") + "/r/" + token
		links = append(links, LinkRecord{Token: token, Destination: dest, TrackedURL: tracked})

		// When the template's own button value is an absolute base with a
		// trailing placeholder, the provider only needs the short token: the
		// redirect resolves the full destination.
		param := tracked
		if hasShortTokenBase(tb.Value) {
			param = token
		}
		out = append(out, resolvedButton{index: i, param: param})
	}
	return out, links, nil
}

// fillButtonTemplate fills a campaign-level URL template. Tokens resolve from
// per-recipient button parameters first, then body parameters by position,
// then the reserved phone substitution.
func fillButtonTemplate(urlTemplate string, buttonParams map[string]string, body []string, phone string) string {
	return placeholderRe.ReplaceAllStringFunc(urlTemplate, func(match string) string {
		token := placeholderRe.FindStringSubmatch(match)[1]
		if v, ok := buttonParams[token]; ok && strings.TrimSpace(v) != "" {
			return v
		}
		if strings.EqualFold(token, PhoneToken) {
			return strings.TrimPrefix(phone, "+")
		}
		if n, err := strconv.Atoi(token); err == nil && n >= 1 && n <= len(body) {
			return body[n-1]
		}
		return match
	})
}
