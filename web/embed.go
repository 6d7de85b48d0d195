package web

import "embed"

// Templates embeds the login and shell templates.
//
//go:embed templates/**/*.html
var Templates embed.FS

// Static embeds stylesheets served under /static/.
//
//go:embed static/**/*
var Static embed.FS
