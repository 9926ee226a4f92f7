package domain

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidLocation marks a rejected coordinate pair.
	ErrInvalidLocation = errors.New("invalid location")
	// ErrInvalidRequest marks a request rejected for a reason other than its
	// coordinates, such as an out-of-range year or horizon.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrUpstreamUnavailable marks a failed real-provider fetch. It is always
	// recovered by the fallback generator.
	ErrUpstreamUnavailable = errors.New("upstream vegetation data unavailable")
)

// LocationError describes why a coordinate pair was rejected.
type LocationError struct {
	Lat    float64
	Lon    float64
	Reason string
}

func (e *LocationError) Error() string {
	return fmt.Sprintf("invalid location (%v, %v): %s", e.Lat, e.Lon, e.Reason)
}

func (e *LocationError) Unwrap() error { return ErrInvalidLocation }

// Coordinate is a WGS-84 point.
type Coordinate struct {
	Lat float64 `json:"lat" validate:"latitude"`
	Lon float64 `json:"lon" validate:"longitude"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateLocation rejects non-finite or out-of-range coordinates.
func ValidateLocation(lat, lon float64) error {
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return &LocationError{Lat: lat, Lon: lon, Reason: "coordinates must be finite"}
	}
	if err := validate.Struct(Coordinate{Lat: lat, Lon: lon}); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return &LocationError{Lat: lat, Lon: lon, Reason: fmt.Sprintf("%s out of range", f.Field())}
		}
		return &LocationError{Lat: lat, Lon: lon, Reason: err.Error()}
	}
	return nil
}
