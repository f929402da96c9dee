package main

import (
	"encoding/xml"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"
)

type options struct {
	outPath   string
	name      string
	centerLat float64
	centerLon float64
	radius    float64
	points    int
	speedKmh  float64
	startTS   string
	timed     bool
	seed      int64
	wobble    float64
}

type gpxFile struct {
	XMLName xml.Name `xml:"gpx"`
	Version string   `xml:"version,attr"`
	Creator string   `xml:"creator,attr"`
	Xmlns   string   `xml:"xmlns,attr"`
	Trk     gpxTrk   `xml:"trk"`
}

type gpxTrk struct {
	Name string   `xml:"name"`
	Seg  gpxSeg   `xml:"trkseg"`
}

type gpxSeg struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  float64 `xml:"lat,attr"`
	Lon  float64 `xml:"lon,attr"`
	Ele  float64 `xml:"ele,omitempty"`
	Time string  `xml:"time,omitempty"`
}

const earthRadius = 6371000.0

func main() {
	opts := parseFlags()

	if opts.points < 2 {
		log.Fatal("--points must be at least 2")
	}
	if opts.radius <= 0 {
		log.Fatal("--radius must be positive")
	}

	var start time.Time
	if opts.timed {
		var err error
		start, err = time.Parse(time.RFC3339, opts.startTS)
		if err != nil {
			log.Fatalf("invalid --start: %v", err)
		}
		if opts.speedKmh <= 0 {
			log.Fatal("--speed must be positive when --timed is set")
		}
	}

	rng := rand.New(rand.NewSource(opts.seed))
	points := generateLoop(opts, rng, start)

	doc := gpxFile{
		Version: "1.1",
		Creator: "gen-gpx",
		Xmlns:   "http://www.topografix.com/GPX/1/1",
		Trk: gpxTrk{
			Name: opts.name,
			Seg:  gpxSeg{Points: points},
		},
	}

	data, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Fatalf("marshal gpx: %v", err)
	}
	out := append([]byte(xml.Header), data...)
	out = append(out, '\n')

	if opts.outPath == "-" {
		if _, err := os.Stdout.Write(out); err != nil {
			log.Fatalf("write stdout: %v", err)
		}
		return
	}
	if err := os.WriteFile(opts.outPath, out, 0o644); err != nil {
		log.Fatalf("write %s: %v", opts.outPath, err)
	}
	log.Printf("wrote %d points to %s (timed=%v)", len(points), opts.outPath, opts.timed)
}

// generateLoop lays points on a circle around the center, with a small
// random wobble so the route does not look machine-perfect.
func generateLoop(opts options, rng *rand.Rand, start time.Time) []gpxPoint {
	points := make([]gpxPoint, 0, opts.points)
	circumference := 2 * math.Pi * opts.radius
	segmentLen := circumference / float64(opts.points)

	ts := start
	for i := 0; i < opts.points; i++ {
		angle := 2 * math.Pi * float64(i) / float64(opts.points)
		r := opts.radius
		if opts.wobble > 0 {
			r += rng.NormFloat64() * opts.wobble
		}
		dLat := (r * math.Cos(angle) / earthRadius) * (180 / math.Pi)
		cosLat := math.Cos(opts.centerLat * math.Pi / 180)
		if math.Abs(cosLat) < 0.01 {
			cosLat = 0.01
		}
		dLon := (r * math.Sin(angle) / (earthRadius * cosLat)) * (180 / math.Pi)

		pt := gpxPoint{
			Lat: opts.centerLat + dLat,
			Lon: opts.centerLon + dLon,
		}
		if opts.timed {
			pt.Time = ts.UTC().Format(time.RFC3339)
			metersPerSec := opts.speedKmh / 3.6
			ts = ts.Add(time.Duration(float64(time.Second) * segmentLen / metersPerSec))
		}
		points = append(points, pt)
	}
	return points
}

func parseFlags() options {
	var opt options

	flag.StringVar(&opt.outPath, "out", "route.gpx", "output GPX path ('-' for stdout)")
	flag.StringVar(&opt.name, "name", "Generated loop", "track name")
	flag.Float64Var(&opt.centerLat, "lat", 55.7522, "loop center latitude")
	flag.Float64Var(&opt.centerLon, "lon", 37.6156, "loop center longitude")
	flag.Float64Var(&opt.radius, "radius", 500, "loop radius in meters")
	flag.IntVar(&opt.points, "points", 120, "number of track points")
	flag.Float64Var(&opt.speedKmh, "speed", 5.0, "walking speed in km/h for timestamps")
	flag.StringVar(&opt.startTS, "start", time.Now().UTC().Truncate(time.Minute).Format(time.RFC3339), "RFC3339 timestamp of the first point")
	flag.BoolVar(&opt.timed, "timed", true, "emit per-point timestamps")
	flag.Int64Var(&opt.seed, "seed", time.Now().UnixNano(), "random seed for the wobble")
	flag.Float64Var(&opt.wobble, "wobble", 5.0, "radial noise stddev in meters (0 to disable)")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [options]\n\n", os.Args[0])
		fmt.Fprintln(flag.CommandLine.Output(), "Generates a circular GPX track for playback testing. Example:")
		fmt.Fprintf(flag.CommandLine.Output(), "  %s --lat 55.75 --lon 37.61 --radius 800 --points 240 --out walk.gpx\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()
	return opt
}
