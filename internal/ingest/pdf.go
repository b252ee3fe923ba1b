package ingest

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"reflect"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// pageContent is one extracted page: visually ordered text plus any images
// large enough to matter.
type pageContent struct {
	number int
	text   string
	images []pageImage
}

type pageImage struct {
	data     []byte
	mimeType string
}

// document is the raw extraction output before chunking.
type document struct {
	pages      []pageContent
	totalPages int
	title      string
	metaAuthor string
}

// firstPages returns the text of the first n non-empty pages, for author
// pattern scanning.
func (d *document) firstPages(n int) []string {
	var out []string
	for _, p := range d.pages {
		if len(out) >= n {
			break
		}
		if strings.TrimSpace(p.text) != "" {
			out = append(out, p.text)
		}
	}
	return out
}

// extractDocument parses the PDF and extracts every page. Page work fans
// out over a bounded worker group; results are reassembled in page order so
// the output is deterministic. Individual page failures are logged and
// skipped, never fatal.
func extractDocument(ctx context.Context, data []byte, maxWorkers int) (doc *document, err error) {
	// The pdf library can panic on malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("%w: %v", ErrParse, r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	total := reader.NumPage()
	doc = &document{totalPages: total}
	doc.title, doc.metaAuthor = readInfoDict(reader)

	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	results := make([]pageContent, total)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWorkers)
	for i := 1; i <= total; i++ {
		pageNum := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			pc := extractPage(reader, pageNum)
			results[pageNum-1] = pc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, pc := range results {
		if pc.number == 0 {
			continue
		}
		doc.pages = append(doc.pages, pc)
	}
	if len(doc.pages) == 0 {
		return nil, fmt.Errorf("%w: no readable pages", ErrEmpty)
	}
	return doc, nil
}

// extractPage pulls text and images from one page, recovering from panics
// inside the pdf library so a corrupt page cannot take down the ingestion.
func extractPage(reader *pdf.Reader, pageNum int) (pc pageContent) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Int("page", pageNum).Interface("panic", r).
				Msg("pdf page extraction panicked, skipping page")
			pc = pageContent{}
		}
	}()
	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return pageContent{}
	}
	text, err := extractPageTextOrdered(page)
	if err != nil {
		log.Warn().Int("page", pageNum).Err(err).Msg("pdf page text extraction failed, skipping page")
		return pageContent{}
	}
	images := extractPageImages(page, pageNum)
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return pageContent{}
	}
	return pageContent{number: pageNum, text: text, images: images}
}

// readInfoDict pulls Title and Author from the PDF Info dictionary,
// tolerating documents without one.
func readInfoDict(reader *pdf.Reader) (title, author string) {
	defer func() {
		if r := recover(); r != nil {
			title, author = "", ""
		}
	}()
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return "", ""
	}
	return strings.TrimSpace(info.Key("Title").Text()),
		strings.TrimSpace(info.Key("Author").Text())
}

// extractPageTextOrdered extracts text sorted by visual position
// (top-to-bottom). Content-stream order is preserved within each visual
// line because sorting by X garbles text under negative text matrices.
func extractPageTextOrdered(page pdf.Page) (string, error) {
	content := page.Content()
	if len(content.Text) == 0 {
		return page.GetPlainText(nil)
	}

	const lineTolerance = 3.0
	type visualLine struct {
		y   float64
		buf strings.Builder
	}
	var lines []*visualLine
	var cur *visualLine
	for _, t := range content.Text {
		if cur == nil || math.Abs(t.Y-cur.y) > lineTolerance {
			lines = append(lines, &visualLine{y: t.Y})
			cur = lines[len(lines)-1]
		}
		cur.buf.WriteString(t.S)
	}
	// Higher Y is higher on the page in PDF coordinates.
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].y > lines[j].y })

	var parts []string
	for _, l := range lines {
		if s := strings.TrimSpace(l.buf.String()); s != "" {
			parts = append(parts, s)
		}
	}
	result := strings.Join(parts, "\n")
	if strings.TrimSpace(result) == "" {
		return page.GetPlainText(nil)
	}
	return result, nil
}

// extractPageImages walks the page's XObject resources and returns decodable
// images. Tiny images (icons, bullets) are skipped.
func extractPageImages(page pdf.Page, pageNum int) []pageImage {
	resources := page.Resources()
	if resources.IsNull() {
		return nil
	}
	xobjects := resources.Key("XObject")
	if xobjects.IsNull() {
		return nil
	}
	var images []pageImage
	for _, name := range xobjects.Keys() {
		xobj := xobjects.Key(name)
		if xobj.Key("Subtype").Name() != "Image" {
			continue
		}
		if xobj.Key("ImageMask").Bool() {
			continue
		}
		width := int(xobj.Key("Width").Int64())
		height := int(xobj.Key("Height").Int64())
		if width < 32 || height < 32 {
			continue
		}
		data, mime := extractSingleImage(xobj, xobj.Key("Filter").Name(), width, height, pageNum, name)
		if data == nil {
			continue
		}
		images = append(images, pageImage{data: data, mimeType: mime})
	}
	return images
}

// extractSingleImage reads image data from a PDF XObject, recovering from
// panics in the pdf library's Reader() on unsupported filter combinations.
func extractSingleImage(xobj pdf.Value, filter string, width, height, pageNum int, name string) (data []byte, mimeType string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Int("page", pageNum).Str("name", name).Interface("panic", r).
				Msg("panic reading image stream, skipping")
			data, mimeType = nil, ""
		}
	}()

	switch filter {
	case "DCTDecode":
		// JPEG: the raw stream bytes ARE the JPEG data. Reader() panics on
		// DCTDecode, so read the raw bytes from the underlying file.
		raw, err := readRawStreamBytes(xobj)
		if err != nil {
			return nil, ""
		}
		if len(raw) > 2 && raw[0] == 0xff && raw[1] == 0xd8 {
			return raw, "image/jpeg"
		}
		return nil, ""
	case "FlateDecode", "":
		rc := xobj.Reader()
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, ""
		}
		pngData, err := rawPixelsToPNG(raw, width, height,
			xobj.Key("ColorSpace").Name(), int(xobj.Key("BitsPerComponent").Int64()))
		if err != nil {
			return nil, ""
		}
		return pngData, "image/png"
	default:
		// JPXDecode, CCITTFaxDecode, ...
		return nil, ""
	}
}

// readRawStreamBytes reads the raw (unfiltered) stream bytes from a
// pdf.Value via reflection, because Reader() applies filters it cannot
// handle and panics. Internal layout relied on (ledongthuc/pdf):
//
//	Value  { r *Reader; ptr objptr; data interface{} }
//	Reader { f io.ReaderAt; ... }
//	stream { hdr dict; ptr objptr; offset int64 }
func readRawStreamBytes(v pdf.Value) ([]byte, error) {
	length := v.Key("Length").Int64()
	if length <= 0 {
		return nil, fmt.Errorf("stream has no length")
	}
	val := reflect.ValueOf(v)
	dataField := val.Field(2)
	if dataField.IsNil() {
		return nil, fmt.Errorf("value has nil data")
	}
	streamVal := dataField.Elem()
	if streamVal.Kind() == reflect.Ptr {
		streamVal = streamVal.Elem()
	}
	offset := streamVal.Field(2).Int()
	rField := val.Field(0)
	if rField.IsNil() {
		return nil, fmt.Errorf("value has nil reader")
	}
	readerStruct := reflect.NewAt(rField.Type().Elem(), rField.UnsafePointer()).Elem()
	readerAt, ok := readerStruct.Field(0).Interface().(io.ReaderAt)
	if !ok {
		return nil, fmt.Errorf("reader.f is not io.ReaderAt")
	}
	buf := make([]byte, length)
	n, err := readerAt.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading stream at offset %d: %w", offset, err)
	}
	return buf[:n], nil
}

// rawPixelsToPNG converts raw pixel data to PNG.
func rawPixelsToPNG(data []byte, width, height int, colorSpace string, bitsPerComponent int) ([]byte, error) {
	if bitsPerComponent == 0 {
		bitsPerComponent = 8
	}
	if bitsPerComponent != 8 {
		return nil, fmt.Errorf("unsupported bits per component: %d", bitsPerComponent)
	}
	var img image.Image
	switch colorSpace {
	case "DeviceRGB", "":
		expected := width * height * 3
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for RGB image: got %d, expected %d", len(data), expected)
		}
		rgba := image.NewRGBA(image.Rect(0, 0, width, height))
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				o := (y*width + x) * 3
				rgba.SetRGBA(x, y, color.RGBA{R: data[o], G: data[o+1], B: data[o+2], A: 255})
			}
		}
		img = rgba
	case "DeviceGray":
		expected := width * height
		if len(data) < expected {
			return nil, fmt.Errorf("insufficient data for gray image: got %d, expected %d", len(data), expected)
		}
		gray := image.NewGray(image.Rect(0, 0, width, height))
		copy(gray.Pix, data[:expected])
		img = gray
	default:
		return nil, fmt.Errorf("unsupported color space: %s", colorSpace)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encoding PNG: %w", err)
	}
	return buf.Bytes(), nil
}
