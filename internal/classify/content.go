package classify

import (
	"mime"
	"strings"
)

type Kind int

const (
	KindUnexpected Kind = iota
	KindPDF
	KindHTML
)

func (k Kind) String() string {
	switch k {
	case KindPDF:
		return "pdf"
	case KindHTML:
		return "html"
	default:
		return "unexpected"
	}
}

// ContentType classifies a Content-Type header value.
func ContentType(contentType string) Kind {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch mediaType {
	case "application/pdf", "application/x-pdf":
		return KindPDF
	case "text/html", "application/xhtml+xml":
		return KindHTML
	default:
		return KindUnexpected
	}
}
