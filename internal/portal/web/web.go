// Package web embeds the default provisioning UI.
package web

import (
	"embed"
	"io/fs"
	"os"
)

//go:embed public
var assets embed.FS

// Public returns the embedded assets rooted at the public directory.
func Public() fs.FS {
	sub, err := fs.Sub(assets, "public")
	if err != nil {
		panic(err)
	}
	return sub
}

// Open returns dir as an fs.FS when set, else the embedded assets.
func Open(dir string) fs.FS {
	if dir == "" {
		return Public()
	}
	return os.DirFS(dir)
}
