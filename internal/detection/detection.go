// Package detection holds the detection record returned by vision services,
// the coordinate rescaling from preprocessed to original image space, and
// helpers to print or draw detections.
package detection

import "image"

// DefaultConfidence is reported for every decoded symbol; the decoder has no
// calibrated score.
const DefaultConfidence = 1.0

// Detection is one decoded symbol in original-image pixel coordinates.
type Detection struct {
	XMin       int     `json:"x_min"      yaml:"x_min"`
	YMin       int     `json:"y_min"      yaml:"y_min"`
	XMax       int     `json:"x_max"      yaml:"x_max"`
	YMax       int     `json:"y_max"      yaml:"y_max"`
	Label      string  `json:"class_name" yaml:"class_name"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// New builds a detection for the given box and payload.
func New(box image.Rectangle, label string) Detection {
	return Detection{
		XMin:       box.Min.X,
		YMin:       box.Min.Y,
		XMax:       box.Max.X,
		YMax:       box.Max.Y,
		Label:      label,
		Confidence: DefaultConfidence,
	}
}

// Rect returns the detection box as an image.Rectangle.
func (d Detection) Rect() image.Rectangle {
	return image.Rect(d.XMin, d.YMin, d.XMax, d.YMax)
}

// Width returns XMax-XMin.
func (d Detection) Width() int { return d.XMax - d.XMin }

// Height returns YMax-YMin.
func (d Detection) Height() int { return d.YMax - d.YMin }
