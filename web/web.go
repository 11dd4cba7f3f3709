// Package web holds the static assets of the dashboard page.
package web

import (
	"embed"
	"io/fs"
	"net/http"
)

//go:embed static
var assets embed.FS

// Static returns the asset tree rooted at static/
func Static() fs.FS {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Handler serves the assets. Mount it under a prefix with http.StripPrefix.
func Handler() http.Handler {
	return http.FileServerFS(Static())
}
