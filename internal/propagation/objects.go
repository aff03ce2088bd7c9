package propagation

import (
	"log/slog"

	"github.com/star/orbitscope/internal/tle"
)

// BuildObjects binds each catalog entry to an SGP4 handle, preserving order.
// Entries whose handle cannot be initialized are logged and skipped.
func BuildObjects(entries []tle.TLEEntry, logger *slog.Logger) []Object {
	objects := make([]Object, 0, len(entries))
	for _, e := range entries {
		h, err := NewSGP4Propagator(e.Line1, e.Line2, e.NORADID, e.Epoch)
		if err != nil {
			logger.Warn("sgp4 init failed", "norad_id", e.NORADID, "name", e.Name, "error", err)
			continue
		}
		objects = append(objects, Object{
			NORADID: e.NORADID,
			Name:    e.Name,
			Epoch:   e.Epoch,
			Handle:  h,
		})
	}
	return objects
}
