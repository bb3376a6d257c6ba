package web

import "embed"

// staticFiles holds the page served on / and its assets under /static/:
// the browser reporter script, which forwards deviceorientation events to
// POST /orient, and the stylesheet.
//
//go:embed static/*
var staticFiles embed.FS
