package epub

import (
	"bytes"
	"path"
	"strings"
	"text/template"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/transform"
)

var mediaTypes = map[string]string{
	".xhtml": "application/xhtml+xml",
	".html":  "application/xhtml+xml",
	".css":   "text/css",
	".png":   "image/png",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".gif":   "image/gif",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".ncx":   "application/x-dtbncx+xml",
	".otf":   "font/otf",
	".ttf":   "font/ttf",
}

func mediaType(name string) string {
	if mt, ok := mediaTypes[strings.ToLower(path.Ext(name))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// manifestID turns an OEBPS-relative path into a stable manifest identifier.
func manifestID(name string) string {
	id := strings.NewReplacer("/", "-", ".", "-", " ", "-").Replace(name)
	return "id-" + id
}

type manifestItem struct {
	ID         string
	Href       string
	MediaType  string
	Properties string
}

type spineRef struct {
	IDRef string
}

type guideRef struct {
	Type  string
	Title string
	Href  string
}

type opfData struct {
	Identifier  string
	Title       string
	Authors     []string
	Description string
	Subjects    []string
	Publishers  []string
	Rights      string
	Issued      string
	ISBN        string
	WebURL      string
	CoverID     string
	Manifest    []manifestItem
	Spine       []spineRef
	Guide       []guideRef
}

var opfTemplate = template.Must(template.New("opf").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="pub-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:opf="http://www.idpf.org/2007/opf">
    <dc:identifier id="pub-id">{{.Identifier}}</dc:identifier>
{{- if .ISBN}}
    <dc:identifier opf:scheme="ISBN">{{.ISBN}}</dc:identifier>
{{- end}}
    <dc:title>{{.Title}}</dc:title>
    <dc:language>en</dc:language>
{{- range .Authors}}
    <dc:creator opf:role="aut">{{.}}</dc:creator>
{{- end}}
{{- range .Publishers}}
    <dc:publisher>{{.}}</dc:publisher>
{{- end}}
{{- range .Subjects}}
    <dc:subject>{{.}}</dc:subject>
{{- end}}
{{- if .Description}}
    <dc:description>{{.Description}}</dc:description>
{{- end}}
{{- if .Rights}}
    <dc:rights>{{.Rights}}</dc:rights>
{{- end}}
{{- if .Issued}}
    <dc:date>{{.Issued}}</dc:date>
{{- end}}
{{- if .WebURL}}
    <dc:source>{{.WebURL}}</dc:source>
{{- end}}
{{- if .CoverID}}
    <meta name="cover" content="{{.CoverID}}"/>
{{- end}}
  </metadata>
  <manifest>
{{- range .Manifest}}
    <item id="{{.ID}}" href="{{.Href}}" media-type="{{.MediaType}}"{{if .Properties}} properties="{{.Properties}}"{{end}}/>
{{- end}}
  </manifest>
  <spine toc="ncx">
{{- range .Spine}}
    <itemref idref="{{.IDRef}}"/>
{{- end}}
  </spine>
{{- if .Guide}}
  <guide>
{{- range .Guide}}
    <reference type="{{.Type}}" title="{{.Title}}" href="{{.Href}}"/>
{{- end}}
  </guide>
{{- end}}
</package>
`))

// renderOPF builds the package document from the staged file set. Manifest
// entries come from the staged paths so every file in the archive is
// declared; spine order is strictly chapter index order.
func renderOPF(pub *book.Publication, identifier string, staged *contents, chapters []transform.TransformedChapter, cover coverInfo) ([]byte, error) {
	data := opfData{
		Identifier:  xmlEscape(identifier),
		Title:       xmlEscape(pub.Title),
		Description: xmlEscape(pub.Description),
		Rights:      xmlEscape(pub.Rights),
		Issued:      xmlEscape(pub.Issued),
		ISBN:        xmlEscape(pub.ISBN),
		WebURL:      xmlEscape(pub.WebURL),
	}
	for _, a := range pub.Authors {
		data.Authors = append(data.Authors, xmlEscape(a.Name))
	}
	for _, s := range pub.Subjects {
		data.Subjects = append(data.Subjects, xmlEscape(s))
	}
	for _, p := range pub.Publishers {
		data.Publishers = append(data.Publishers, xmlEscape(p))
	}

	for _, name := range staged.names() {
		if name == mimetypeName || name == containerName || name == opfName {
			continue
		}
		href := strings.TrimPrefix(name, "OEBPS/")
		item := manifestItem{
			ID:        manifestID(href),
			Href:      href,
			MediaType: mediaType(href),
		}
		switch {
		case name == ncxName:
			item.ID = "ncx"
		case name == navName:
			item.ID = "nav"
			item.Properties = "nav"
		case href == cover.imagePath:
			item.Properties = "cover-image"
			data.CoverID = item.ID
		}
		data.Manifest = append(data.Manifest, item)
	}

	if cover.synthesized != nil {
		data.Spine = append(data.Spine, spineRef{IDRef: manifestID(cover.pagePath)})
	}
	for _, ch := range chapters {
		data.Spine = append(data.Spine, spineRef{IDRef: manifestID(ch.Filename)})
	}
	data.Spine = append(data.Spine, spineRef{IDRef: manifestID(colophonName)})

	if cover.pagePath != "" {
		data.Guide = append(data.Guide, guideRef{Type: "cover", Title: "Cover", Href: cover.pagePath})
	}

	var buf bytes.Buffer
	if err := opfTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&apos;",
)

func xmlEscape(s string) string {
	return xmlEscaper.Replace(s)
}
