package barcode

import "fmt"

// DecodeError reports a decoder failure other than "no symbol found".
// Callers running a polling loop treat it as zero detections.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("barcode decode error in %s: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
