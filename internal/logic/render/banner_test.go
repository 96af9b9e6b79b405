package render

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/openmediate/gateway/internal/models"
)

func TestWrap_PartnerMarkup(t *testing.T) {
	fill := &models.AdFill{Markup: "<div id='partner-ad'></div>", Width: 320, Height: 50}

	got := Wrap(fill, "https://g.example.com/imp?t=abc", "")

	if !strings.Contains(got, "width:320px;height:50px") {
		t.Errorf("missing sized container: %s", got)
	}
	if !strings.Contains(got, "<div id='partner-ad'></div>") {
		t.Errorf("partner markup must pass through unchanged: %s", got)
	}
	if !strings.Contains(got, `src="https://g.example.com/imp?t=abc"`) {
		t.Errorf("missing impression pixel: %s", got)
	}
}

func TestWrap_HouseImageBannerGetsClickAnchor(t *testing.T) {
	fill := &models.AdFill{
		Markup: `{"image":"https://cdn.example.com/house.png","alt":"House ad"}`,
		Width:  300,
		Height: 250,
	}

	got := Wrap(fill, "https://g.example.com/imp", "https://g.example.com/click?t=abc")

	if !strings.Contains(got, `<a href="https://g.example.com/click?t=abc"`) {
		t.Errorf("missing click anchor: %s", got)
	}
	if !strings.Contains(got, `src="https://cdn.example.com/house.png"`) {
		t.Errorf("missing composed image: %s", got)
	}
	if !strings.Contains(got, `alt="House ad"`) {
		t.Errorf("missing alt text: %s", got)
	}
}

func TestWrap_NilAndEmpty(t *testing.T) {
	if got := Wrap(nil, "x", "y"); got != "" {
		t.Errorf("nil fill: %q", got)
	}
	got := Wrap(&models.AdFill{Markup: "<span>ad</span>"}, "", "")
	if strings.Contains(got, "<img") {
		t.Errorf("no pixel expected without impURL: %s", got)
	}
}

func TestComposeBannerHTML(t *testing.T) {
	raw := json.RawMessage(`{"image":"https://cdn.example.com/a.png","alt":"Ad","images":[{"url":"https://cdn.example.com/a-728.png","width":728,"height":90}]}`)

	got := ComposeBannerHTML(raw)

	if !strings.Contains(got, `src="https://cdn.example.com/a.png"`) {
		t.Errorf("missing src: %s", got)
	}
	if !strings.Contains(got, `srcset="https://cdn.example.com/a-728.png 728w"`) {
		t.Errorf("missing srcset: %s", got)
	}
}

func TestComposeBannerHTML_Invalid(t *testing.T) {
	if got := ComposeBannerHTML(json.RawMessage(`not json`)); got != "" {
		t.Errorf("invalid JSON should compose nothing, got %s", got)
	}
	if got := ComposeBannerHTML(json.RawMessage(`{"alt":"no image"}`)); got != "" {
		t.Errorf("missing image should compose nothing, got %s", got)
	}
	if got := ComposeBannerHTML(nil); got != "" {
		t.Errorf("empty input should compose nothing, got %s", got)
	}
}
