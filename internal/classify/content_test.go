package classify

import "testing"

func TestContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        Kind
	}{
		{contentType: "application/pdf", want: KindPDF},
		{contentType: "application/PDF; qs=0.9", want: KindPDF},
		{contentType: "text/html; charset=utf-8", want: KindHTML},
		{contentType: "application/xhtml+xml", want: KindHTML},
		{contentType: "image/png", want: KindUnexpected},
		{contentType: "", want: KindUnexpected},
		{contentType: "text/html;;", want: KindHTML},
	}
	for _, tt := range tests {
		if got := ContentType(tt.contentType); got != tt.want {
			t.Errorf("ContentType(%q) = %v, want %v", tt.contentType, got, tt.want)
		}
	}
}

func TestKindString(t *testing.T) {
	if KindPDF.String() != "pdf" || KindHTML.String() != "html" || KindUnexpected.String() != "unexpected" {
		t.Fatalf("unexpected kind names")
	}
}
