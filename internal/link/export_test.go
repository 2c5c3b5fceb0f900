package link

// NewTestLink exposes an in-memory link to external test packages. Written
// frames are discarded.
func NewTestLink() *Link {
	l, _, _ := newTestLink()
	return l
}
