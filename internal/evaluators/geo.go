package evaluators

import (
	"fmt"
	"math"

	"github.com/opensource-finance/sentinel/internal/domain"
)

// GeoCeiling is the maximum score the geo evaluator can contribute.
const GeoCeiling = 65

// earthRadiusKm is the Haversine sphere radius used for great-circle
// distance between two transaction locations.
const earthRadiusKm = 6371.0

// maxSpeedKmh is the implied travel speed above which two consecutive
// transactions are considered geographically impossible.
const maxSpeedKmh = 800.0

// Geo flags a transaction whose city disagrees with the user's
// registered city, and flags impossible travel when the implied speed
// between this transaction and the user's last one exceeds
// maxSpeedKmh.
func Geo(tx domain.Transaction, profile domain.UserProfile, ctx Context) Result {
	var score int
	var reasons []string

	if tx.Location.City != profile.RegisteredCity {
		score += 10
		reasons = append(reasons, fmt.Sprintf(
			"%s: transaction city %q does not match registered city %q",
			domain.ReasonGeoImpossible, tx.Location.City, profile.RegisteredCity))
	}

	if ctx.LastTx != nil {
		distance := haversineKm(ctx.LastTx.Location, tx.Location)
		deltaHours := float64(tx.Timestamp-ctx.LastTx.Timestamp) / 3_600_000.0

		if deltaHours > 0 && distance/deltaHours > maxSpeedKmh {
			score += 55
			reasons = append(reasons, fmt.Sprintf(
				"%s: %.1f km travelled in %.2f h implies impossible speed",
				domain.ReasonGeoImpossible, distance, deltaHours))
		}
	}

	if score > GeoCeiling {
		score = GeoCeiling
	}

	return Result{Score: score, Reasons: reasons}
}

// haversineKm returns the great-circle distance in kilometers between
// two locations.
func haversineKm(a, b domain.Location) float64 {
	const toRad = math.Pi / 180

	lat1, lat2 := a.Lat*toRad, b.Lat*toRad
	dLat := (b.Lat - a.Lat) * toRad
	dLon := (b.Lon - a.Lon) * toRad

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadiusKm * c
}
