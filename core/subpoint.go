package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/signalsfoundry/impact-simulator/model"
)

const tleLineLength = 69

// SubPoint propagates a TLE-tracked object to t with SGP4 and returns the
// geographic point directly beneath it. It lets a user drop the candidate
// impact location under a re-entering object instead of typing coordinates.
func SubPoint(line1, line2 string, t time.Time) (model.GeoPoint, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")
	if len(line1) < tleLineLength || !strings.HasPrefix(line1, "1 ") {
		return model.GeoPoint{}, fmt.Errorf("%w: malformed TLE line 1", ErrInvalidParameter)
	}
	if len(line2) < tleLineLength || !strings.HasPrefix(line2, "2 ") {
		return model.GeoPoint{}, fmt.Errorf("%w: malformed TLE line 2", ErrInvalidParameter)
	}

	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)

	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	posECI, _ := satellite.Propagate(sat, year, int(month), day, hour, min, sec)
	if posECI.X == 0 && posECI.Y == 0 && posECI.Z == 0 {
		return model.GeoPoint{}, fmt.Errorf("%w: TLE propagation failed at %s", ErrInvalidParameter, t.Format(time.RFC3339))
	}
	gmst := satellite.ThetaG_JD(satellite.JDay(year, int(month), day, hour, min, sec))
	_, _, ll := satellite.ECIToLLA(posECI, gmst)

	p := model.GeoPoint{
		Lat: ll.Latitude * 180 / math.Pi,
		Lon: math.Remainder(ll.Longitude*180/math.Pi, 360),
	}
	if err := ValidateGeoPoint(p); err != nil {
		return model.GeoPoint{}, err
	}
	return p, nil
}
