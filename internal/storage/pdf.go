package storage

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	pdfmodel "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// buildPDF appends one page per image to an in-memory PDF and writes the
// final document to w. Each page is dimensioned to its image, so pages
// need not share a size.
func buildPDF(images []image.Image, w io.Writer) error {
	conf := pdfmodel.NewDefaultConfiguration()
	conf.ValidationMode = pdfmodel.ValidationRelaxed

	var cur *bytes.Buffer
	for i, img := range images {
		b := img.Bounds()
		imp, err := api.Import(fmt.Sprintf("dim:%d %d, pos:full", b.Dx(), b.Dy()), types.POINTS)
		if err != nil {
			return fmt.Errorf("page %d: import config: %w", i+1, err)
		}

		var jpg bytes.Buffer
		if err := imaging.Encode(&jpg, img, imaging.JPEG, imaging.JPEGQuality(fullJPEGQuality)); err != nil {
			return fmt.Errorf("page %d: encoding: %w", i+1, err)
		}

		var rs io.ReadSeeker
		if cur != nil {
			rs = bytes.NewReader(cur.Bytes())
		}
		next := &bytes.Buffer{}
		if err := api.ImportImages(rs, next, []io.Reader{&jpg}, imp, conf); err != nil {
			return fmt.Errorf("page %d: importing image: %w", i+1, err)
		}
		cur = next
	}

	if _, err := w.Write(cur.Bytes()); err != nil {
		return fmt.Errorf("writing PDF: %w", err)
	}
	return nil
}
