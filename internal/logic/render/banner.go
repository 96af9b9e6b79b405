// Package render assembles the final ad markup delivered to the client SDK:
// the fill's creative wrapped in a sized container with the impression pixel
// and, for house creatives, the click-through anchor.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/openmediate/gateway/internal/models"
)

// BannerData represents the structure of image banner JSON used by house
// creatives that store structured assets instead of raw HTML.
type BannerData struct {
	Image  string       `json:"image"`
	Alt    string       `json:"alt"`
	Images []BannerSize `json:"images"`
}

// BannerSize represents a responsive image variant
type BannerSize struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Wrap produces the renderable markup for a fill: the creative inside a
// container sized to the resolved dimensions, followed by the impression
// pixel. clickURL is only honored for markup we compose ourselves (house
// image banners); partner markup carries its own click handling.
func Wrap(fill *models.AdFill, impURL, clickURL string) string {
	if fill == nil {
		return ""
	}

	markup := fill.Markup
	if composed := composeIfImageBanner(markup); composed != "" {
		if clickURL != "" {
			composed = fmt.Sprintf(`<a href="%s" target="_blank">%s</a>`, html.EscapeString(clickURL), composed)
		}
		markup = composed
	}

	var b strings.Builder
	if fill.Width > 0 && fill.Height > 0 {
		fmt.Fprintf(&b, `<div style="width:%dpx;height:%dpx;overflow:hidden;">`, fill.Width, fill.Height)
	} else {
		b.WriteString(`<div>`)
	}
	b.WriteString(markup)
	b.WriteString(`</div>`)
	if impURL != "" {
		fmt.Fprintf(&b, `<img src="%s" width="1" height="1" style="display:none;" alt="">`, html.EscapeString(impURL))
	}
	return b.String()
}

// composeIfImageBanner returns composed HTML when the markup is structured
// banner JSON, or "" when it is raw HTML to be passed through.
func composeIfImageBanner(markup string) string {
	trimmed := strings.TrimSpace(markup)
	if !strings.HasPrefix(trimmed, "{") {
		return ""
	}
	return ComposeBannerHTML(json.RawMessage(trimmed))
}

// ComposeBannerHTML converts banner JSON into HTML markup for client rendering.
// This server-side composition reduces client-side processing and ensures consistent rendering.
func ComposeBannerHTML(bannerJSON json.RawMessage) string {
	if len(bannerJSON) == 0 {
		return ""
	}

	var banner BannerData
	if err := json.Unmarshal(bannerJSON, &banner); err != nil {
		// If parsing fails, return empty - creative won't render
		return ""
	}

	// Build img tag with responsive srcset
	var imgParts []string

	// Main image source (required)
	if banner.Image != "" {
		imgParts = append(imgParts, fmt.Sprintf(`src="%s"`, html.EscapeString(banner.Image)))
	} else if len(banner.Images) > 0 {
		// Fallback to first responsive image if main image missing
		imgParts = append(imgParts, fmt.Sprintf(`src="%s"`, html.EscapeString(banner.Images[0].URL)))
	} else {
		// No image URL available
		return ""
	}

	// Alt text (important for accessibility)
	altText := banner.Alt
	if altText == "" {
		altText = "Advertisement"
	}
	imgParts = append(imgParts, fmt.Sprintf(`alt="%s"`, html.EscapeString(altText)))

	// Build srcset for responsive images
	if len(banner.Images) > 0 {
		var srcsetParts []string
		for _, img := range banner.Images {
			if img.URL != "" && img.Width > 0 {
				srcsetParts = append(srcsetParts, fmt.Sprintf("%s %dw", html.EscapeString(img.URL), img.Width))
			}
		}
		if len(srcsetParts) > 0 {
			imgParts = append(imgParts, fmt.Sprintf(`srcset="%s"`, strings.Join(srcsetParts, ", ")))
		}
	}

	// Add styling for responsive display
	// These styles ensure the image fits within its container while maintaining aspect ratio
	imgParts = append(imgParts, `style="max-width:100%;max-height:100%;width:auto;height:auto;display:block;cursor:pointer;"`)

	// Compose final HTML
	return fmt.Sprintf("<img %s>", strings.Join(imgParts, " "))
}
