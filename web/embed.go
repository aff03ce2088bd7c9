package web

import "embed"

// Content holds the embedded browser frontend (index.html, app.js, styles.css).
// The page builds its three.js scene from /api/v1/scene and moves markers from
// the /api/v1/stream/frames websocket.
//
//go:embed index.html app.js styles.css
var Content embed.FS
