package web

import (
	"embed"
)

// staticFiles holds the web UI shipped inside the binary.
//
//go:embed static/*
var staticFiles embed.FS
