// Package epub assembles transformed chapters and fetched assets into a
// complete EPUB package. Assembly is deterministic: spine order comes from
// chapter indices, archive entries are written in sorted order with fixed
// timestamps, and the output appears at its final path only after a
// successful atomic rename.
package epub

import (
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/bookbinder/internal/book"
	"git.home.luguber.info/inful/bookbinder/internal/errors"
	"git.home.luguber.info/inful/bookbinder/internal/logfields"
	"git.home.luguber.info/inful/bookbinder/internal/sanitize"
	"git.home.luguber.info/inful/bookbinder/internal/transform"
	"git.home.luguber.info/inful/bookbinder/internal/workspace"
)

const (
	mimetypeName    = "mimetype"
	mimetypeContent = "application/epub+zip"

	containerName = "META-INF/container.xml"
	containerXML  = `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`

	opfName      = "OEBPS/content.opf"
	ncxName      = "OEBPS/toc.ncx"
	navName      = "OEBPS/nav.xhtml"
	colophonName = "book_info.xhtml"
)

// Input carries everything one assembly run needs.
type Input struct {
	Publication *book.Publication
	// Chapters holds the successfully transformed chapters in any order;
	// the assembler sorts by Index.
	Chapters []transform.TransformedChapter
	// Assets maps local package paths (Images/..., Styles/...) to content.
	Assets map[string][]byte
	// CoverPath and CoverData carry a separately downloaded cover image
	// when the publication's asset set did not include one.
	CoverPath string
	CoverData []byte
}

// Assembler builds EPUB packages in an ephemeral staging directory.
type Assembler struct {
	stagingBase string
	newID       func() string
}

// NewAssembler returns an assembler staging under stagingBase (empty means
// the system temp directory).
func NewAssembler(stagingBase string) *Assembler {
	return &Assembler{stagingBase: stagingBase, newID: uuid.NewString}
}

// Assemble stages, packages, and atomically finalizes one publication.
// It returns the final path of the written EPUB.
func (a *Assembler) Assemble(in Input, destDir string) (string, error) {
	pub := in.Publication
	if len(in.Chapters) == 0 {
		return "", errors.NoChapters()
	}

	chapters := append([]transform.TransformedChapter(nil), in.Chapters...)
	sort.Slice(chapters, func(i, j int) bool { return chapters[i].Index < chapters[j].Index })

	// Every asset a chapter still references must have been fetched.
	for _, ch := range chapters {
		for _, a := range ch.Assets {
			if _, ok := in.Assets[a]; !ok {
				return "", errors.AssembleError("chapter references an asset missing from the package", nil).
					WithContext("chapter", ch.Filename).
					WithContext("asset", a)
			}
		}
	}

	staged := newContents()
	if err := staged.add(mimetypeName, []byte(mimetypeContent)); err != nil {
		return "", err
	}
	if err := staged.add(containerName, []byte(containerXML)); err != nil {
		return "", err
	}

	cover := resolveCover(in, chapters)
	if cover.imagePath != "" && len(in.CoverData) > 0 {
		if err := staged.add("OEBPS/"+cover.imagePath, in.CoverData); err != nil {
			return "", err
		}
	}
	if cover.synthesized != nil {
		if err := staged.add("OEBPS/"+cover.pagePath, cover.synthesized); err != nil {
			return "", err
		}
	}

	for _, ch := range chapters {
		if err := staged.add("OEBPS/"+ch.Filename, ch.Content); err != nil {
			return "", err
		}
	}
	for name, data := range in.Assets {
		if err := staged.add("OEBPS/"+name, data); err != nil {
			return "", err
		}
	}

	colophon, err := renderColophon(pub)
	if err != nil {
		return "", errors.AssembleError("colophon rendering failed", err)
	}
	if err := staged.add("OEBPS/"+colophonName, colophon); err != nil {
		return "", err
	}

	if err := staged.add(navName, renderNav(pub, chapters)); err != nil {
		return "", err
	}

	identifier := "urn:uuid:" + a.newID()
	if err := staged.add(ncxName, renderNCX(pub, identifier, chapters)); err != nil {
		return "", err
	}

	opf, err := renderOPF(pub, identifier, staged, chapters, cover)
	if err != nil {
		return "", errors.AssembleError("package document rendering failed", err)
	}
	if err := staged.add(opfName, opf); err != nil {
		return "", err
	}

	ws := workspace.NewManager(a.stagingBase)
	if err := ws.Create(); err != nil {
		return "", errors.WorkspaceError("create staging directory", err)
	}
	defer ws.Cleanup() //nolint:errcheck

	for _, name := range staged.names() {
		if err := ws.WriteFile(name, staged.files[name]); err != nil {
			return "", errors.WorkspaceError("stage package file", err)
		}
	}

	outPath, err := a.finalize(ws.GetPath(), pub, destDir)
	if err != nil {
		return "", err
	}

	slog.Info("Package written",
		logfields.BookID(pub.ID),
		logfields.Title(pub.Title),
		logfields.Path(outPath))
	return outPath, nil
}

// finalize zips the staged tree into a temp file inside the destination
// directory and renames it into place. Same-filesystem rename keeps the
// operation atomic; no partial file survives a failure.
func (a *Assembler) finalize(stagingDir string, pub *book.Publication, destDir string) (string, error) {
	bookDir := filepath.Join(destDir, fmt.Sprintf("%s (%s)", sanitize.Dirname(pub.Title), pub.ID))
	if err := os.MkdirAll(bookDir, 0o750); err != nil {
		return "", errors.DestinationError(bookDir, err)
	}

	tmp, err := os.CreateTemp(bookDir, ".epub-*.part")
	if err != nil {
		return "", errors.DestinationError(bookDir, err)
	}
	tmpName := tmp.Name()

	if err := writeArchive(tmp, stagingDir); err != nil {
		tmp.Close()        //nolint:errcheck
		os.Remove(tmpName) //nolint:errcheck
		return "", errors.AssembleError("archive write failed", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return "", errors.AssembleError("archive close failed", err)
	}

	outPath := filepath.Join(bookDir, pub.ID+".epub")
	if err := os.Rename(tmpName, outPath); err != nil {
		os.Remove(tmpName) //nolint:errcheck
		return "", errors.DestinationError(outPath, err)
	}
	return outPath, nil
}

// contents collects the package files before staging, detecting distinct
// content mapped to the same path.
type contents struct {
	files map[string][]byte
	sums  map[string][sha256.Size]byte
}

func newContents() *contents {
	return &contents{
		files: map[string][]byte{},
		sums:  map[string][sha256.Size]byte{},
	}
}

func (c *contents) add(name string, data []byte) error {
	sum := sha256.Sum256(data)
	if prev, ok := c.sums[name]; ok {
		if prev != sum {
			return errors.AssembleError("duplicate package path with different content", nil).
				WithContext("path", name)
		}
		return nil
	}
	c.files[name] = data
	c.sums[name] = sum
	return nil
}

func (c *contents) names() []string {
	out := make([]string, 0, len(c.files))
	for name := range c.files {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
