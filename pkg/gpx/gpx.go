// Package gpx parses GPX documents into immutable playback routes.
package gpx

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"time"
)

// Waypoint is a single parsed track point. Time is the zero value when the
// source point carries no timestamp.
type Waypoint struct {
	Lat       float64   `json:"lat"`
	Lon       float64   `json:"lon"`
	Elevation float64   `json:"ele"`
	Time      time.Time `json:"time,omitempty"`
}

// Route is the parsed, ordered sequence of waypoints plus derived stats.
// Points are in playback order and must not be reordered after parse.
type Route struct {
	Name          string
	Points        []Waypoint
	TotalDistance float64       // meters, haversine over consecutive pairs
	TotalDuration time.Duration // 0 when the route is untimed
}

// PointCount returns the number of waypoints.
func (r *Route) PointCount() int { return len(r.Points) }

// Timed reports whether every waypoint carries a timestamp. A route with even
// one missing timestamp is treated as fully untimed: estimating the gaps would
// silently distort pacing.
func (r *Route) Timed() bool {
	for _, p := range r.Points {
		if p.Time.IsZero() {
			return false
		}
	}
	return len(r.Points) > 0
}

type gpxDocument struct {
	XMLName xml.Name   `xml:"gpx"`
	Tracks  []gpxTrack `xml:"trk"`
	Routes  []gpxRoute `xml:"rte"`
}

type gpxTrack struct {
	Name     string       `xml:"name"`
	Segments []gpxSegment `xml:"trkseg"`
}

type gpxSegment struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxRoute struct {
	Name   string     `xml:"name"`
	Points []gpxPoint `xml:"rtept"`
}

// Lat/Lon are pointers so that a point with a missing attribute can be told
// apart from one at coordinate 0.
type gpxPoint struct {
	Lat       *float64  `xml:"lat,attr"`
	Lon       *float64  `xml:"lon,attr"`
	Elevation float64   `xml:"ele"`
	Time      time.Time `xml:"time"`
}

// Parse decodes raw GPX bytes into a Route. Track points are preferred; route
// points (<rte>) are used as a fallback when the document has no tracks, which
// matches how recorded and planned GPX files are used interchangeably.
func Parse(raw []byte) (*Route, error) {
	var doc gpxDocument
	decoder := xml.NewDecoder(bytes.NewReader(raw))
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("gpx: parse: %w", err)
	}

	route := &Route{}
	for _, trk := range doc.Tracks {
		if route.Name == "" {
			route.Name = trk.Name
		}
		for _, seg := range trk.Segments {
			if err := appendPoints(route, seg.Points); err != nil {
				return nil, err
			}
		}
	}
	if len(route.Points) == 0 {
		for _, rte := range doc.Routes {
			if route.Name == "" {
				route.Name = rte.Name
			}
			if err := appendPoints(route, rte.Points); err != nil {
				return nil, err
			}
		}
	}
	if len(route.Points) == 0 {
		return nil, ErrEmptyRoute
	}

	route.TotalDistance = totalDistance(route.Points)
	route.TotalDuration = totalDuration(route)
	return route, nil
}

// ParseFile reads and parses a GPX file from disk.
func ParseFile(path string) (*Route, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gpx: read %s: %w", path, err)
	}
	return Parse(raw)
}

func appendPoints(route *Route, points []gpxPoint) error {
	for i, p := range points {
		if p.Lat == nil || p.Lon == nil {
			return fmt.Errorf("%w (point %d)", ErrMissingCoordinate, i)
		}
		lat, lon := *p.Lat, *p.Lon
		if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
			return fmt.Errorf("%w: lat=%v lon=%v (point %d)", ErrCoordinateRange, lat, lon, i)
		}
		route.Points = append(route.Points, Waypoint{
			Lat:       lat,
			Lon:       lon,
			Elevation: p.Elevation,
			Time:      p.Time,
		})
	}
	return nil
}

func totalDistance(points []Waypoint) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Haversine(points[i-1].Lat, points[i-1].Lon, points[i].Lat, points[i].Lon)
	}
	return total
}

func totalDuration(route *Route) time.Duration {
	if !route.Timed() {
		return 0
	}
	first := route.Points[0].Time
	last := route.Points[len(route.Points)-1].Time
	if last.Before(first) {
		return 0
	}
	return last.Sub(first)
}

const earthRadiusM = 6371000

// Haversine returns the great-circle distance between two coordinates in
// meters. Altitude is ignored.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return earthRadiusM * c
}
