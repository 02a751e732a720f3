// Package web holds the dashboard page served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"net/http"
	"os"
)

//go:embed dist/*
var dist embed.FS

// AssetsDirEnv names a directory served instead of the embedded page, so the
// dashboard can be edited without rebuilding.
const AssetsDirEnv = "ENVSIM_MONITOR_ASSETS"

// Assets returns the dashboard files.
func Assets() http.FileSystem {
	if dir := os.Getenv(AssetsDirEnv); dir != "" {
		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(sub)
}

// Handler serves the dashboard. The page polls the API for live numbers, so
// browsers must not cache it.
func Handler() http.Handler {
	files := http.FileServer(Assets())

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		files.ServeHTTP(w, r)
	})
}
