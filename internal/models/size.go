package models

import "fmt"

// StandardAdSize is one entry of the fixed banner size catalog: a closed set
// of industry-standard ad dimensions supported by partner networks. A Height
// of 0 marks a flexible-height format: the entry matches any requested height.
type StandardAdSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// String returns the conventional WxH rendering, e.g. "728x90".
func (s StandardAdSize) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// RequestedSize is the maximum area a publisher is willing to give an ad.
// A Height of 0 means the height is unconstrained and only the width matters.
type RequestedSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
