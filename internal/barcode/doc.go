// Package barcode decodes 1D/2D symbols from images.
//
// Decoding is delegated to gozxing. The package normalizes its results into
// Result values carrying the payload text and an axis-aligned bounding box in
// the coordinate space of the image that was decoded.
package barcode
