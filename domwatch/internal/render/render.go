// Package render turns the outer HTML of a matched element into the
// payload of a mutation.Match.
package render

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Renderer is safe for concurrent use.
type Renderer struct {
	md     *converter.Converter
	policy *bluemonday.Policy
}

// Output is the rendered form of one element.
type Output struct {
	HTML     string
	Markdown string
}

// New creates a Renderer with the commonmark and table plugins and the
// user-generated-content sanitising policy.
func New() *Renderer {
	return &Renderer{
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

// Sanitize strips scripts, event handlers and anything outside the UGC
// policy.
func (r *Renderer) Sanitize(fragment string) string {
	return r.policy.Sanitize(fragment)
}

// Markdown converts fragment, resolving relative links against pageURL.
func (r *Renderer) Markdown(fragment, pageURL string) (string, error) {
	var (
		md  string
		err error
	)
	if pageURL != "" {
		md, err = r.md.ConvertString(fragment, converter.WithDomain(pageURL))
	} else {
		md, err = r.md.ConvertString(fragment)
	}
	if err != nil {
		return "", fmt.Errorf("render: markdown: %w", err)
	}
	return strings.TrimSpace(md), nil
}

// Render produces the output for one format: "html" fills HTML, "markdown"
// fills Markdown, "none" fills nothing. sanitize applies to both.
func (r *Renderer) Render(fragment, format, pageURL string, sanitize bool) (Output, error) {
	if sanitize {
		fragment = r.Sanitize(fragment)
	}
	switch format {
	case "html":
		return Output{HTML: fragment}, nil
	case "markdown":
		md, err := r.Markdown(fragment, pageURL)
		if err != nil {
			return Output{}, err
		}
		return Output{Markdown: md}, nil
	case "none", "":
		return Output{}, nil
	default:
		return Output{}, fmt.Errorf("render: unknown format %q", format)
	}
}
