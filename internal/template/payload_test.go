package template

import (
	"strings"
	"testing"

	"github.com/unclebandit/waleopard-backend/internal/model"
)

func positionalTemplate(paramCount int) *model.MessageTemplate {
	return &model.MessageTemplate{
		Name:           "order_update",
		Language:       "en",
		ParamFormat:    model.ParamFormatPositional,
		BodyParamCount: paramCount,
		HeaderKind:     model.HeaderKindNone,
	}
}

func TestNormalizeBodyParamsRejectsMissing(t *testing.T) {
	_, err := NormalizeBodyParams([]string{"Alice"}, 2)
	if err == nil {
		t.Fatal("expected error for missing parameter")
	}
	want := "missing body parameter(s): expected 2, got 1"
	if err.Error() != want {
		t.Errorf("expected %q, got %q", want, err.Error())
	}
}

func TestNormalizeBodyParamsTrimsExtra(t *testing.T) {
	got, err := NormalizeBodyParams([]string{"a", "b", "c"}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("expected [a b], got %v", got)
	}
}

func TestFillPlaceholders(t *testing.T) {
	got := FillPlaceholders("https://x.example/{{1}}?u={{phone}}&keep={{9}}", []string{"abc"}, "+919876543210")
	want := "https://x.example/abc?u=919876543210&keep={{9}}"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestBuildMetaPositional(t *testing.T) {
	req := BuildRequest{
		Provider:   model.ProviderMeta,
		Phone:      "+919876543210",
		BodyParams: []string{"Alice", "ORDER-9"},
		Template:   positionalTemplate(2),
	}
	res, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := res.Body.(MetaPayload)
	if !ok {
		t.Fatalf("expected MetaPayload, got %T", res.Body)
	}
	if payload.To != "+919876543210" || payload.Template.Name != "order_update" {
		t.Errorf("unexpected envelope: %+v", payload)
	}
	if len(payload.Template.Components) != 1 {
		t.Fatalf("expected 1 component (body only), got %d", len(payload.Template.Components))
	}
	body := payload.Template.Components[0]
	if body.Type != "body" || len(body.Parameters) != 2 || body.Parameters[1].Text != "ORDER-9" {
		t.Errorf("unexpected body component: %+v", body)
	}
}

func TestBuildMetaNamedParams(t *testing.T) {
	tmpl := positionalTemplate(2)
	tmpl.ParamFormat = model.ParamFormatNamed
	tmpl.NamedTokens = []string{"name", "order"}

	res, err := Build(BuildRequest{
		Provider:   model.ProviderMeta,
		Phone:      "+14155550134",
		BodyParams: []string{"Alice", "ORDER-9"},
		Template:   tmpl,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	body := res.Body.(MetaPayload).Template.Components[0]
	if body.Parameters[0].ParameterName != "name" || body.Parameters[1].ParameterName != "order" {
		t.Errorf("expected named parameters, got %+v", body.Parameters)
	}
}

func TestBuildMediaHeaderRequiresURL(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.HeaderKind = model.HeaderKindImage

	_, err := Build(BuildRequest{
		Provider:   model.ProviderMeta,
		Phone:      "+14155550134",
		BodyParams: []string{"Alice"},
		Template:   tmpl,
	})
	if err == nil || !strings.Contains(err.Error(), "header media URL") {
		t.Errorf("expected missing header URL error, got %v", err)
	}
}

func TestBuildMediaHeaderAttached(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.HeaderKind = model.HeaderKindImage

	res, err := Build(BuildRequest{
		Provider:       model.ProviderMeta,
		Phone:          "+14155550134",
		BodyParams:     []string{"Alice"},
		Template:       tmpl,
		HeaderMediaURL: "https://cdn.example.com/banner.jpg",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comps := res.Body.(MetaPayload).Template.Components
	if comps[0].Type != "header" || comps[0].Parameters[0].Image == nil {
		t.Errorf("expected image header component, got %+v", comps[0])
	}
}

func TestBuildDynamicButtonFullTrackedURL(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{
		{Type: "url", Text: "View", Value: "{{1}}"},
	}

	res, err := Build(BuildRequest{
		Provider:        model.ProviderMeta,
		CampaignID:      7,
		RecipientID:     3,
		Phone:           "+14155550134",
		BodyParams:      []string{"Alice"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "url", Value: "https://shop.example.com/o/{{1}}"}},
		TrackerBaseURL:  "https://trk.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Links) != 1 {
		t.Fatalf("expected 1 tracked link, got %d", len(res.Links))
	}
	link := res.Links[0]
	if link.Destination != "https://shop.example.com/o/Alice" {
		t.Errorf("unexpected destination: %s", link.Destination)
	}
	if !strings.HasPrefix(link.TrackedURL, "https://trk.example.com/r/") {
		t.Errorf("unexpected tracked URL: %s", link.TrackedURL)
	}

	comps := res.Body.(MetaPayload).Template.Components
	btn := comps[len(comps)-1]
	if btn.Type != "button" || btn.SubType != "url" {
		t.Fatalf("expected button component, got %+v", btn)
	}
	// Template value is a bare placeholder, so the full tracked URL is sent.
	if btn.Parameters[0].Text != link.TrackedURL {
		t.Errorf("expected full tracked URL as parameter, got %q", btn.Parameters[0].Text)
	}
}

func TestBuildDynamicButtonShortToken(t *testing.T) {
	tmpl := positionalTemplate(1)
	// Absolute base with trailing placeholder: only the token goes out.
	tmpl.Buttons = []model.TemplateButton{
		{Type: "url", Text: "View", Value: "https://trk.example.com/r/{{1}}"},
	}

	res, err := Build(BuildRequest{
		Provider:        model.ProviderMeta,
		Phone:           "+14155550134",
		BodyParams:      []string{"Alice"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "url", Value: "https://shop.example.com/o/{{1}}"}},
		TrackerBaseURL:  "https://trk.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	comps := res.Body.(MetaPayload).Template.Components
	param := comps[len(comps)-1].Parameters[0].Text
	if param != res.Links[0].Token {
		t.Errorf("expected short token %q, got %q", res.Links[0].Token, param)
	}
}

func TestBuildClickTokensStableAcrossRebuilds(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{
		{Type: "url", Text: "View", Value: "{{1}}"},
	}
	req := BuildRequest{
		Provider:        model.ProviderMeta,
		CampaignID:      7,
		RecipientID:     3,
		Phone:           "+14155550134",
		BodyParams:      []string{"Alice"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "url", Value: "https://shop.example.com/o/{{1}}"}},
		TrackerBaseURL:  "https://trk.example.com",
	}

	first, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.Links[0].Token != second.Links[0].Token {
		t.Errorf("rebuild minted a new token: %q then %q",
			first.Links[0].Token, second.Links[0].Token)
	}

	req.RecipientID = 4
	other, err := Build(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if other.Links[0].Token == first.Links[0].Token {
		t.Error("different recipients must not share a token")
	}
}

func TestBuildDynamicButtonMissingDestination(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{{Type: "url", Text: "View", Value: "{{1}}"}}

	_, err := Build(BuildRequest{
		Provider:   model.ProviderMeta,
		Phone:      "+14155550134",
		BodyParams: []string{"Alice"},
		Template:   tmpl,
	})
	if err == nil || !strings.Contains(err.Error(), "missing dynamic button destination") {
		t.Errorf("expected missing destination error, got %v", err)
	}
}

func TestBuildDynamicButtonWrongType(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{{Type: "quick_reply", Text: "Go", Value: "{{1}}"}}

	_, err := Build(BuildRequest{
		Provider:        model.ProviderMeta,
		Phone:           "+14155550134",
		BodyParams:      []string{"Alice"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "quick_reply", Value: "https://x.example/{{1}}"}},
	})
	if err == nil || !strings.Contains(err.Error(), "dynamic URL") {
		t.Errorf("expected wrong-type error, got %v", err)
	}
}

func TestBuildDynamicButtonRejectsRelativeURL(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{{Type: "url", Text: "View", Value: "{{1}}"}}

	_, err := Build(BuildRequest{
		Provider:        model.ProviderMeta,
		Phone:           "+14155550134",
		BodyParams:      []string{"Alice"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "url", Value: "/orders/{{1}}"}},
	})
	if err == nil {
		t.Error("expected error for relative destination")
	}
}

func TestBuildStaticButtonsIgnored(t *testing.T) {
	tmpl := positionalTemplate(1)
	tmpl.Buttons = []model.TemplateButton{{Type: "url", Text: "Site", Value: "https://example.com"}}

	res, err := Build(BuildRequest{
		Provider:   model.ProviderMeta,
		Phone:      "+14155550134",
		BodyParams: []string{"Alice"},
		Template:   tmpl,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Links) != 0 {
		t.Errorf("static buttons must not mint links, got %d", len(res.Links))
	}
}

func TestBuildGupshupFlatParams(t *testing.T) {
	tmpl := positionalTemplate(2)
	tmpl.Buttons = []model.TemplateButton{{Type: "url", Text: "View", Value: "{{1}}"}}

	res, err := Build(BuildRequest{
		Provider:        model.ProviderGupshup,
		Phone:           "+919876543210",
		SenderID:        "917000000001",
		BodyParams:      []string{"Alice", "ORDER-9"},
		Template:        tmpl,
		CampaignButtons: []model.CampaignButton{{Type: "url", Value: "https://shop.example.com/o/{{2}}"}},
		TrackerBaseURL:  "https://trk.example.com",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	payload, ok := res.Body.(GupshupPayload)
	if !ok {
		t.Fatalf("expected GupshupPayload, got %T", res.Body)
	}
	if payload.Source != "917000000001" || payload.Destination != "+919876543210" {
		t.Errorf("unexpected envelope: %+v", payload)
	}
	// Body params first, then the button param.
	if len(payload.Template.Params) != 3 {
		t.Fatalf("expected 3 flat params, got %d", len(payload.Template.Params))
	}
	if payload.Template.Params[0] != "Alice" || payload.Template.Params[1] != "ORDER-9" {
		t.Errorf("unexpected params: %v", payload.Template.Params)
	}
}

func TestBuildUnknownProvider(t *testing.T) {
	_, err := Build(BuildRequest{
		Provider:   "smoke-signals",
		Phone:      "+14155550134",
		BodyParams: []string{"Alice"},
		Template:   positionalTemplate(1),
	})
	if err == nil {
		t.Error("expected error for unknown provider")
	}
}
