package web

import "embed"

// Templates embeds the printable report layouts.
//
//go:embed templates/reports/*.html
var Templates embed.FS
