package api

import _ "embed"

// dashboardHTML is the single-page dashboard served at /.
//
//go:embed web/index.html
var dashboardHTML []byte
