package video

import "errors"

var (
	// ErrDecoderClosed is returned when writing to a stopped decoder.
	ErrDecoderClosed = errors.New("video: decoder closed")

	// ErrBadOffer is returned for an SDP offer that cannot be applied.
	ErrBadOffer = errors.New("video: invalid offer")

	// ErrClosed is returned by a receiver after Close.
	ErrClosed = errors.New("video: receiver closed")
)
