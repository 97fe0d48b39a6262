package barcode

import (
	"context"
	"errors"
	"image"
	"image/draw"
	"math"

	gozxing "github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/aztec"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/detector"
	"golang.org/x/text/unicode/norm"
)

type gozxingBackend struct{}

func (b *gozxingBackend) Decode(ctx context.Context, img image.Image, opts Options) ([]Result, error) {
	if img == nil {
		return nil, &DecodeError{Op: "input", Err: errors.New("nil image")}
	}
	if img.Bounds().Empty() {
		return nil, nil
	}

	offset := image.Point{}
	if !opts.ROI.Empty() {
		if roiImg, origin, ok := cropToOrigin(img, opts.ROI); ok {
			img = roiImg
			offset = origin
		}
	}

	source := gozxing.NewLuminanceSourceFromImage(img)
	bitmap, err := gozxing.NewBinaryBitmap(gozxing.NewHybridBinarizer(source))
	if err != nil {
		return nil, &DecodeError{Op: "binarize", Err: err}
	}

	hints := make(map[gozxing.DecodeHintType]interface{})
	if opts.TryHarder {
		hints[gozxing.DecodeHintType_TRY_HARDER] = true
	}

	formats := opts.Formats
	if len(formats) == 0 {
		formats = []Format{FormatQR}
	}

	var (
		out     []Result
		lastErr error
	)
	seen := make(map[resultKey]struct{})
	for _, f := range formats {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		reader := newReader(f)
		if reader == nil {
			continue
		}

		results, err := decodeWith(f, reader, bitmap, hints, opts.Multi)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			lastErr = err
			continue
		}

		for _, r := range results {
			res := normalize(r, offset)
			key := resultKey{format: res.Type, value: res.Value, box: res.BBox}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, res)
		}
	}

	// A checksum or format failure only matters when nothing decoded at all.
	if len(out) == 0 && lastErr != nil {
		return nil, &DecodeError{Op: "decode", Err: lastErr}
	}
	return out, nil
}

type resultKey struct {
	format Format
	value  string
	box    image.Rectangle
}

// decodeWith runs reader over bitmap. Only QR has a multi-symbol reader in
// gozxing; other formats decode one symbol even when multiple is set.
func decodeWith(
	f Format,
	reader gozxing.Reader,
	bitmap *gozxing.BinaryBitmap,
	hints map[gozxing.DecodeHintType]interface{},
	multiple bool,
) ([]*gozxing.Result, error) {
	if multiple && f == FormatQR {
		return multiqr.NewQRCodeMultiReader().DecodeMultiple(bitmap, hints)
	}
	r, err := reader.Decode(bitmap, hints)
	if err != nil {
		return nil, err
	}
	return []*gozxing.Result{r}, nil
}

func isNotFound(err error) bool {
	var nf gozxing.NotFoundException
	return errors.As(err, &nf)
}

func normalize(r *gozxing.Result, offset image.Point) Result {
	pts := r.GetResultPoints()
	points := make([]Point, 0, len(pts))
	for _, p := range pts {
		if p == nil {
			continue
		}
		points = append(points, Point{X: int(p.GetX()) + offset.X, Y: int(p.GetY()) + offset.Y})
	}

	format := mapFormatFromZXing(r.GetBarcodeFormat())
	bbox := rectFromPoints(points)
	if format == FormatQR {
		if box, ok := qrSymbolBox(pts, offset); ok {
			bbox = box
		}
	}

	return Result{
		Type:       format,
		Value:      norm.NFC.String(r.GetText()),
		Points:     points,
		BBox:       bbox,
		Confidence: -1, // gozxing does not provide calibrated confidence
	}
}

// finderCenterModules is the distance in modules from a finder pattern
// center to the outer edge of the symbol.
const finderCenterModules = 3.5

// qrSymbolBox widens the hull of the QR finder pattern centers to the outer
// edge of the symbol, using the module size the finder patterns measured.
func qrSymbolBox(pts []gozxing.ResultPoint, offset image.Point) (image.Rectangle, bool) {
	var (
		moduleSum              float64
		finders                int
		minX, minY, maxX, maxY = math.Inf(1), math.Inf(1), math.Inf(-1), math.Inf(-1)
	)
	for _, p := range pts {
		fp, ok := p.(*detector.FinderPattern)
		if !ok || fp == nil {
			continue
		}
		moduleSum += fp.GetEstimatedModuleSize()
		finders++
		minX = min(minX, fp.GetX())
		minY = min(minY, fp.GetY())
		maxX = max(maxX, fp.GetX())
		maxY = max(maxY, fp.GetY())
	}
	if finders < 3 || moduleSum <= 0 {
		return image.Rectangle{}, false
	}

	margin := finderCenterModules * moduleSum / float64(finders)
	return image.Rect(
		int(math.Round(minX-margin))+offset.X,
		int(math.Round(minY-margin))+offset.Y,
		int(math.Round(maxX+margin))+offset.X,
		int(math.Round(maxY+margin))+offset.Y,
	), true
}

func newReader(f Format) gozxing.Reader {
	switch f {
	case FormatQR:
		return qrcode.NewQRCodeReader()
	case FormatDataMatrix:
		return datamatrix.NewDataMatrixReader()
	case FormatAztec:
		return aztec.NewAztecReader()
	case FormatCode128:
		return oned.NewCode128Reader()
	case FormatCode39:
		return oned.NewCode39Reader()
	case FormatEAN8:
		return oned.NewEAN8Reader()
	case FormatEAN13:
		return oned.NewEAN13Reader()
	case FormatUPCA:
		return oned.NewUPCAReader()
	case FormatUPCE:
		return oned.NewUPCEReader()
	case FormatITF:
		return oned.NewITFReader()
	case FormatCodabar:
		return oned.NewCodaBarReader()
	default:
		return nil
	}
}

func mapFormatFromZXing(bf gozxing.BarcodeFormat) Format {
	switch bf {
	case gozxing.BarcodeFormat_QR_CODE:
		return FormatQR
	case gozxing.BarcodeFormat_DATA_MATRIX:
		return FormatDataMatrix
	case gozxing.BarcodeFormat_AZTEC:
		return FormatAztec
	case gozxing.BarcodeFormat_CODE_128:
		return FormatCode128
	case gozxing.BarcodeFormat_CODE_39:
		return FormatCode39
	case gozxing.BarcodeFormat_EAN_8:
		return FormatEAN8
	case gozxing.BarcodeFormat_EAN_13:
		return FormatEAN13
	case gozxing.BarcodeFormat_UPC_A:
		return FormatUPCA
	case gozxing.BarcodeFormat_UPC_E:
		return FormatUPCE
	case gozxing.BarcodeFormat_ITF:
		return FormatITF
	case gozxing.BarcodeFormat_CODABAR:
		return FormatCodabar
	default:
		return FormatUnknown
	}
}

func rectFromPoints(pts []Point) image.Rectangle {
	if len(pts) == 0 {
		return image.Rectangle{}
	}
	minX, minY := pts[0].X, pts[0].Y
	maxX, maxY := pts[0].X, pts[0].Y
	for _, p := range pts[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return image.Rect(minX, minY, maxX+1, maxY+1)
}

// cropToOrigin copies the part of img inside r into a new image anchored at
// (0,0) and returns the crop origin in img coordinates.
func cropToOrigin(img image.Image, r image.Rectangle) (image.Image, image.Point, bool) {
	rb := r.Intersect(img.Bounds())
	if rb.Empty() {
		return nil, image.Point{}, false
	}
	dst := image.NewRGBA(image.Rect(0, 0, rb.Dx(), rb.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rb.Min, draw.Src)
	return dst, rb.Min, true
}
