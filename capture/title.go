package capture

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// PageTitle returns the text of the document's first <title>, with
// whitespace collapsed. It is empty when there is none.
func PageTitle(doc string) string {
	z := html.NewTokenizer(strings.NewReader(doc))
	inTitle := false
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Title {
				inTitle = true
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if inTitle && atom.Lookup(name) == atom.Title {
				return strings.Join(strings.Fields(b.String()), " ")
			}
		case html.TextToken:
			if inTitle {
				b.Write(z.Text())
			}
		}
	}
}
