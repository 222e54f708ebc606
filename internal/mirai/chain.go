package mirai

import "strings"

// Element types understood by this package. Others are kept verbatim in
// Element.Type and ignored by Chain.Text.
const (
	ElementSource = "Source"
	ElementPlain  = "Plain"
	ElementImage  = "Image"
	ElementAt     = "At"
)

// Element is one entry of a message chain.
type Element struct {
	Type    string `json:"type"`
	ID      int64  `json:"id,omitempty"`
	Time    int64  `json:"time,omitempty"`
	Text    string `json:"text,omitempty"`
	ImageID string `json:"imageId,omitempty"`
	URL     string `json:"url,omitempty"`
	Target  int64  `json:"target,omitempty"`
	Display string `json:"display,omitempty"`
}

type Chain []Element

func Plain(text string) Element {
	return Element{Type: ElementPlain, Text: text}
}

// Text concatenates the Plain elements and renders images and mentions as
// short placeholders.
func (c Chain) Text() string {
	var b strings.Builder
	for _, el := range c {
		switch el.Type {
		case ElementPlain:
			b.WriteString(el.Text)
		case ElementImage:
			b.WriteString("[image]")
		case ElementAt:
			if el.Display != "" {
				b.WriteString(el.Display)
			} else {
				b.WriteString("@")
			}
		}
	}
	return b.String()
}

// SourceID returns the id of the leading Source element, if any.
func (c Chain) SourceID() (int64, bool) {
	for _, el := range c {
		if el.Type == ElementSource {
			return el.ID, true
		}
	}
	return 0, false
}
