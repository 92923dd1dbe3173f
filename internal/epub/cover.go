package epub

import (
	"fmt"
	"sort"
	"strings"

	"git.home.luguber.info/inful/bookbinder/internal/transform"
)

const defaultCoverPage = "default_cover.xhtml"

type coverInfo struct {
	// imagePath is the OEBPS-relative cover image, "" when none was found.
	imagePath string
	// pagePath is the spine document presenting the cover. Either an
	// existing chapter or the synthesized page.
	pagePath string
	// synthesized is non-nil when no chapter serves as a cover page and a
	// wrapper document was generated.
	synthesized []byte
}

// resolveCover picks the cover image and cover page for a package. A chapter
// whose filename mentions the cover doubles as the cover page; otherwise a
// minimal page wrapping the image is synthesized.
func resolveCover(in Input, chapters []transform.TransformedChapter) coverInfo {
	ci := coverInfo{imagePath: in.CoverPath}

	if ci.imagePath == "" {
		names := make([]string, 0, len(in.Assets))
		for name := range in.Assets {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if strings.HasPrefix(name, "Images/") && strings.Contains(strings.ToLower(name), "cover") {
				ci.imagePath = name
				break
			}
		}
	}

	for _, ch := range chapters {
		if strings.Contains(strings.ToLower(ch.Filename), "cover") {
			ci.pagePath = ch.Filename
			return ci
		}
	}

	if ci.imagePath != "" {
		ci.pagePath = defaultCoverPage
		ci.synthesized = []byte(fmt.Sprintf(`<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head><title>Cover</title><style type="text/css">img{max-width:100%%;}</style></head>
<body><div style="text-align:center;"><img src=%q alt="Cover"/></div></body>
</html>
`, xmlEscape(ci.imagePath)))
	}
	return ci
}
