package static

import (
	"bytes"
	"io/fs"
	"testing"
)

func TestIndex(t *testing.T) {
	page, err := Index()
	if err != nil {
		t.Fatalf("Index() error = %v", err)
	}
	if !bytes.Contains(page, []byte("/api/v1/tryon/ws")) {
		t.Error("index page does not open the try-on socket")
	}
}

func TestFS(t *testing.T) {
	if _, err := fs.Stat(FS(), "index.html"); err != nil {
		t.Errorf("index.html not found at the root: %v", err)
	}
}
