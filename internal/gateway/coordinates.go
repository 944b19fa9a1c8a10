package gateway

import "blinds_bridge/internal/models"

// Invert converts between accessory coordinates (100 = open) and the
// gateway's native ones (100 = closed). It is its own inverse.
func Invert(p int) int {
	return models.MaxPercent - p
}
