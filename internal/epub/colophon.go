package epub

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"git.home.luguber.info/inful/bookbinder/internal/book"
)

// colophonMarkdown is the book-info page source. It is rendered through the
// Markdown pipeline so the page picks up consistent markup without a second
// hand-written XHTML template.
var colophonMarkdown = template.Must(template.New("colophon").Parse(`# {{.Title}}

{{if .Authors}}**By** {{.Authors}}{{end}}

{{if .Publishers}}**Publisher:** {{.Publishers}}{{end}}

{{if .ISBN}}**ISBN:** {{.ISBN}}{{end}}

{{if .Issued}}**Released:** {{.Issued}}{{end}}

{{if .Subjects}}**Topics:** {{.Subjects}}{{end}}

{{if .Rights}}{{.Rights}}{{end}}

{{if .Description}}{{.Description}}{{end}}

{{if .WebURL}}[Read online]({{.WebURL}}){{end}}
`))

// renderColophon generates the book-info page appended to the end of the
// spine.
func renderColophon(pub *book.Publication) ([]byte, error) {
	authors := make([]string, 0, len(pub.Authors))
	for _, a := range pub.Authors {
		authors = append(authors, a.Name)
	}
	data := struct {
		Title       string
		Authors     string
		Publishers  string
		ISBN        string
		Issued      string
		Subjects    string
		Rights      string
		Description string
		WebURL      string
	}{
		Title:       pub.Title,
		Authors:     strings.Join(authors, ", "),
		Publishers:  strings.Join(pub.Publishers, ", "),
		ISBN:        pub.ISBN,
		Issued:      pub.Issued,
		Subjects:    strings.Join(pub.Subjects, ", "),
		Rights:      pub.Rights,
		Description: pub.Description,
		WebURL:      pub.WebURL,
	}

	var md bytes.Buffer
	if err := colophonMarkdown.Execute(&md, data); err != nil {
		return nil, err
	}

	// The description field arrives as publisher-supplied HTML; unsafe
	// rendering passes it through instead of escaping it into visible tags.
	renderer := goldmark.New(goldmark.WithRendererOptions(gmhtml.WithUnsafe(), gmhtml.WithXHTML()))
	var body bytes.Buffer
	if err := renderer.Convert(md.Bytes(), &body); err != nil {
		return nil, err
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>%s</title></head>
<body>%s</body>
</html>
`, xmlEscape(pub.Title), body.String())
	return []byte(page), nil
}
