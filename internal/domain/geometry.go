package domain

// Size is a width/height pair in pixels.
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// IsValid reports whether both dimensions are non-negative.
func (s Size) IsValid() bool {
	return s.Width >= 0 && s.Height >= 0
}
