// Package richtext renders product descriptions, which the catalog stores as
// either markdown or vendor-authored HTML, into sanitised HTML.
package richtext

import (
	"bytes"
	stdhtml "html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var looksLikeHTML = regexp.MustCompile(`(?i)<\s*/?\s*(p|div|span|br|ul|ol|li|table|tr|td|th|strong|b|em|i|h[1-6]|img|a)\b`)

// Renderer converts description text to safe HTML.
type Renderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// New builds a renderer with GitHub-flavoured tables and strikethrough.
func New() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.Table, extension.Strikethrough, extension.Linkify),
			goldmark.WithRendererOptions(html.WithHardWraps(), html.WithUnsafe()),
		),
		policy: newPolicy(),
	}
}

func newPolicy() *bluemonday.Policy {
	policy := bluemonday.UGCPolicy()
	policy.AllowElements("figure", "figcaption")
	policy.AllowAttrs("class").OnElements("figure", "figcaption", "p", "span", "table")
	policy.AllowAttrs("loading").OnElements("img")
	policy.RequireNoFollowOnLinks(true)
	policy.AddTargetBlankToFullyQualifiedLinks(true)
	return policy
}

// Render returns sanitised HTML for src. HTML input is only sanitised;
// anything else is treated as markdown.
func (r *Renderer) Render(src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if looksLikeHTML.MatchString(src) {
		return strings.TrimSpace(r.policy.Sanitize(src))
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "<p>" + stdhtml.EscapeString(src) + "</p>"
	}
	return strings.TrimSpace(string(r.policy.SanitizeBytes(buf.Bytes())))
}
