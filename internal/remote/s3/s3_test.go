package s3

import "testing"

func TestKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "absolute path", input: "/media/Photos", expected: "media/Photos"},
		{name: "root", input: "/", expected: ""},
		{name: "trailing slash", input: "/media/", expected: "media"},
		{name: "already relative", input: "media", expected: "media"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := key(tt.input); got != tt.expected {
				t.Errorf("key(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"/media/cat.JPG", "image/jpeg"},
		{"/media/clip.mp4", "video/mp4"},
		{"/media/doc.pdf", "application/pdf"},
		{"/media/blob.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := contentTypeFor(tt.path); got != tt.expected {
			t.Errorf("contentTypeFor(%q) = %q; want %q", tt.path, got, tt.expected)
		}
	}
}
