// pkg/core/format.go
package core

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatEnergy renders an energy value the way the results panel shows it.
// Values below 0.01 Mt switch to exponent notation.
func FormatEnergy(megatons float64) string {
	if megatons < 0.01 {
		return fmt.Sprintf("%.2e MT", megatons)
	}
	return fmt.Sprintf("%.2f Megatons", megatons)
}

// FormatKm renders a radius in kilometres with two decimals.
func FormatKm(km float64) string {
	return fmt.Sprintf("%.2f km", km)
}

// FormatMeters renders a length in whole metres.
func FormatMeters(m float64) string {
	return fmt.Sprintf("%.0f m", m)
}

// FormatCount renders an integer with comma thousands separators.
func FormatCount(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if len(s) <= 3 {
		if neg {
			return "-" + s
		}
		return s
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 && !(neg && b.Len() == 1) {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// ResultLines returns the label/value pairs of the results panel in display order.
func (r ImpactResult) ResultLines() [][2]string {
	return [][2]string{
		{"Energy Released", FormatEnergy(r.EnergyMegatonsTNT)},
		{"Fireball Radius", FormatKm(r.FireballRadiusKm)},
		{"Crater Diameter", FormatMeters(r.CraterDiameterMeters)},
		{"Shockwave Radius", FormatKm(r.ShockwaveRadiusKm)},
		{"Thermal Radius", FormatKm(r.ThermalRadiusKm)},
		{"Casualties (est.)", FormatCount(r.EstimatedCasualties)},
	}
}
