package util

import "testing"

func TestStripCodeFences(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"{\"a\":1}", "{\"a\":1}"},
		{"```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"```\n{\"a\":1}\n```", "{\"a\":1}"},
		{"  ```json {\"a\":1} ```  ", "{\"a\":1}"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := StripCodeFences(tc.in); got != tc.want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSniffMimeHTTP(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}
	if got := SniffMimeHTTP(jpeg); got != "image/jpeg" {
		t.Errorf("jpeg sniff = %q", got)
	}
	png := []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0x00}
	if got := SniffMimeHTTP(png); got != "image/png" {
		t.Errorf("png sniff = %q", got)
	}
	if got := SniffMimeHTTP(nil); got != "application/octet-stream" {
		t.Errorf("empty sniff = %q", got)
	}
}
