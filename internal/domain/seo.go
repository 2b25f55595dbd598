package domain

// SEOMeta is the set of head values applied to a page
type SEOMeta struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	OGImage     string `json:"ogImage,omitempty"`
}

// Merge fills empty fields of m from fallback
func (m SEOMeta) Merge(fallback SEOMeta) SEOMeta {
	if m.Title == "" {
		m.Title = fallback.Title
	}
	if m.Description == "" {
		m.Description = fallback.Description
	}
	if m.Keywords == "" {
		m.Keywords = fallback.Keywords
	}
	if m.OGImage == "" {
		m.OGImage = fallback.OGImage
	}
	return m
}

func (m SEOMeta) IsZero() bool {
	return m == SEOMeta{}
}
