package model

// CompressionResult reports one compression pass. Error is set instead
// of the size fields when the pass failed; callers check Error before
// trusting the rest.
type CompressionResult struct {
	OriginalSize   int64
	CompressedSize int64
	Ratio          float64
	Algorithm      string
	OutputPath     string
	Error          string
}

func (r *CompressionResult) Failed() bool {
	return r.Error != ""
}
