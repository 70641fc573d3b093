// Package web embeds the HTML templates so the binary runs from any
// working directory.
package web

import (
	"embed"
	"io/fs"
)

//go:embed templates/*.html
var files embed.FS

// Templates returns the template files with the "templates/" prefix removed.
func Templates() fs.FS {
	sub, err := fs.Sub(files, "templates")
	if err != nil {
		panic(err) // the directory is embedded above
	}
	return sub
}
