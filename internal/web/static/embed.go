// Package static embeds the browser client.
package static

import (
	"embed"
	"io/fs"
)

//go:embed all:dist/*
var distFS embed.FS

// FS returns the embedded client rooted at the dist directory.
func FS() fs.FS {
	fsys, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic(err)
	}
	return fsys
}

// Index returns the client entry page.
func Index() ([]byte, error) {
	return fs.ReadFile(distFS, "dist/index.html")
}
