package util

import "testing"

func TestFileExt(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{name: "invoice.pdf", want: ".pdf"},
		{name: "scan.JPG", want: ".JPG"},
		{name: "archive.tar.gz", want: ".gz"},
		{name: "noext", want: ""},
		{name: "trailingdot.", want: ""},
		{name: "../../etc/passwd", want: ""},
		{name: `C:\docs\receipt.png`, want: ".png"},
		{name: "weird.p/ng", want: ""},
		{name: "odd.p$n g", want: ".png"},
		{name: "long.abcdefghijklmnopqrstuvwxyz", want: ""},
	}
	for _, tt := range tests {
		if got := FileExt(tt.name); got != tt.want {
			t.Fatalf("FileExt(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSanitizeFileName(t *testing.T) {
	if _, err := SanitizeFileName("../secret.pdf"); err == nil {
		t.Fatalf("expected traversal to be rejected")
	}
	got, err := SanitizeFileName(" a/b\\c.pdf ")
	if err != nil {
		t.Fatalf("SanitizeFileName: %v", err)
	}
	if got != "a_b_c.pdf" {
		t.Fatalf("unexpected sanitized name %q", got)
	}
}

func TestSHA256Hex(t *testing.T) {
	got := SHA256Hex([]byte("abc"))
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got != want {
		t.Fatalf("SHA256Hex = %s, want %s", got, want)
	}
}
