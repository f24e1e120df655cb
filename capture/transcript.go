package capture

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Transcriber renders a page's DOM as sanitised Markdown. Scripts, styles
// and event handlers are stripped before conversion. Safe for concurrent
// use.
type Transcriber struct {
	policy *bluemonday.Policy
	conv   *converter.Converter
}

// NewTranscriber builds a Transcriber with the UGC sanitising policy.
func NewTranscriber() *Transcriber {
	return &Transcriber{
		policy: bluemonday.UGCPolicy(),
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Markdown converts html. Relative links resolve against pageURL.
func (t *Transcriber) Markdown(html, pageURL string) (string, error) {
	clean := t.policy.Sanitize(html)
	md, err := t.conv.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("capture: transcript: %w", err)
	}
	return strings.TrimSpace(md) + "\n", nil
}
