package camera

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Supported MIME types.
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
	MimeBMP  = "image/bmp"
	MimeWebP = "image/webp"
)

// SupportedImageExtensions lists file extensions cameras and commands accept.
var SupportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}

// ImageError describes a failed image operation.
type ImageError struct {
	Operation string
	Err       error
}

func (e *ImageError) Error() string {
	return fmt.Sprintf("image %s failed: %v", e.Operation, e.Err)
}

func (e *ImageError) Unwrap() error { return e.Err }

// IsSupportedImage reports whether path has a supported image extension.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, s := range SupportedImageExtensions {
		if ext == s {
			return true
		}
	}
	return false
}

// MimeTypeForPath maps a file extension to a MIME type.
func MimeTypeForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return MimeJPEG
	case ".png":
		return MimePNG
	case ".bmp":
		return MimeBMP
	case ".webp":
		return MimeWebP
	default:
		return ""
	}
}

// DecodeImage decodes an encoded frame.
func DecodeImage(img Image) (image.Image, error) {
	if len(img.Data) == 0 {
		return nil, &ImageError{Operation: "decode", Err: errors.New("empty image data")}
	}
	decoded, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return nil, &ImageError{Operation: "decode", Err: err}
	}
	return decoded, nil
}

// EncodeImage encodes img as mimeType. JPEG is used for an empty or
// unsupported type.
func EncodeImage(img image.Image, mimeType string) (Image, error) {
	if img == nil {
		return Image{}, &ImageError{Operation: "encode", Err: errors.New("nil image")}
	}
	format, mt := imaging.JPEG, MimeJPEG
	switch normalizeMime(mimeType) {
	case MimePNG:
		format, mt = imaging.PNG, MimePNG
	case MimeBMP:
		format, mt = imaging.BMP, MimeBMP
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(90)); err != nil {
		return Image{}, &ImageError{Operation: "encode", Err: err}
	}
	return Image{Data: buf.Bytes(), MimeType: mt}, nil
}

// normalizeMime strips parameters and lowercases a MIME type.
func normalizeMime(mimeType string) string {
	mt, _, _ := strings.Cut(mimeType, ";")
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" {
		return MimeJPEG
	}
	return mt
}

// isLossless reports whether frames of mimeType keep every pixel exactly.
func isLossless(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case MimePNG, MimeBMP:
		return true
	}
	return false
}

// encodable reports whether EncodeImage can produce mimeType.
func encodable(mimeType string) bool {
	switch normalizeMime(mimeType) {
	case MimeJPEG, MimePNG, MimeBMP:
		return true
	}
	return false
}

// encodeFrame encodes an in-memory frame. The requested type is a hint: a
// lossless type is honored, anything else yields PNG so that module edges
// survive for the decoder.
func encodeFrame(img image.Image, want string) (Image, error) {
	if isLossless(want) {
		return EncodeImage(img, want)
	}
	return EncodeImage(img, MimePNG)
}

// transcode returns raw unchanged when it already matches want, and
// re-encodes it otherwise. A lossless frame is never re-encoded as JPEG, and
// types that cannot be encoded (WebP) are passed through.
func transcode(raw Image, want string) (Image, error) {
	want = normalizeMime(want)
	have := normalizeMime(raw.MimeType)
	if want == "" || want == have || !encodable(want) {
		return raw, nil
	}
	if isLossless(have) && !isLossless(want) {
		return raw, nil
	}
	decoded, err := DecodeImage(raw)
	if err != nil {
		return Image{}, err
	}
	return EncodeImage(decoded, want)
}
