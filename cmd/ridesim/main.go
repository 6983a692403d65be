// Command ridesim runs a single cycling simulation from a course and rider
// profile on disk and prints the aggregated result as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/ridesim/internal/config"
	"github.com/banshee-data/ridesim/internal/course"
	"github.com/banshee-data/ridesim/internal/engine"
	"github.com/banshee-data/ridesim/internal/fsutil"
	"github.com/banshee-data/ridesim/internal/kernel"
	"github.com/banshee-data/ridesim/internal/monitoring"
	"github.com/banshee-data/ridesim/internal/resultio"
	"github.com/banshee-data/ridesim/internal/rider"
	"github.com/banshee-data/ridesim/internal/units"
	"github.com/banshee-data/ridesim/internal/version"
)

// Exit codes follow the BSD sysexits.h convention the teacher's CLI
// commands already used.
const (
	exitOK       = 0
	exitUsage    = 64
	exitDataErr  = 65
	exitSoftware = 70
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("ridesim", flag.ContinueOnError)
	coursePath := fs.String("course", "", "path to a course JSON file")
	riderPath := fs.String("rider", "", "path to a rider profile JSON file")
	configPath := fs.String("config", "", "path to a tuning config JSON file (optional)")
	outPath := fs.String("out", "", "path to write the result JSON (default: stdout)")
	metricsAddr := fs.String("metrics-addr", "", "if set, serve Prometheus metrics on this address (e.g. :9090) before running")
	speedUnits := fs.String("speed-units", units.KMPH, "units for the printed summary line: "+units.GetValidUnitsString())
	showVersion := fs.Bool("version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *showVersion {
		fmt.Printf("ridesim %s (%s, %s)\n", version.Version, version.GitSHA, version.BuildTime)
		return exitOK
	}
	if *coursePath == "" || *riderPath == "" {
		fmt.Fprintln(os.Stderr, "ridesim: -course and -rider are required")
		return exitUsage
	}
	if !units.IsValid(*speedUnits) {
		fmt.Fprintf(os.Stderr, "ridesim: invalid -speed-units %q, must be one of: %s\n", *speedUnits, units.GetValidUnitsString())
		return exitUsage
	}

	if *metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				monitoring.Logf("ridesim: metrics server stopped: %v", err)
			}
		}()
	}

	osfs := fsutil.OSFileSystem{}

	cfg := config.Empty()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ridesim: loading config: %v\n", err)
			return exitUsage
		}
	}

	req, err := buildRequest(osfs, *coursePath, *riderPath, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ridesim: %v\n", err)
		return exitDataErr
	}

	result, err := engine.Simulate(context.Background(), req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ridesim: simulation error: %v\n", err)
		return exitSoftware
	}

	// The solver recovers from an infeasible course or a deadline that stops
	// the search early by reporting its closest or best trial rather than
	// failing outright; Diagnostics.PreliminaryResult flags that case so a
	// caller downstream of this CLI knows the numbers aren't a converged
	// optimum.
	if result.Diagnostics.PreliminaryResult {
		if !result.Diagnostics.Feasible {
			fmt.Fprintln(os.Stderr, "ridesim: warning: course is infeasible for this rider; reporting the closest attempt")
		} else {
			fmt.Fprintln(os.Stderr, "ridesim: warning: solver deadline reached before convergence; reporting the best trial found")
		}
	}

	printSummary(result, *speedUnits)

	data, err := resultio.Encode(result)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ridesim: encoding result: %v\n", err)
		return exitSoftware
	}

	if *outPath == "" {
		fmt.Println(string(data))
		return exitOK
	}
	if err := osfs.WriteFile(*outPath, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "ridesim: writing result: %v\n", err)
		return exitSoftware
	}
	return exitOK
}

// courseFile is the on-disk JSON shape for a raw-points course input.
type courseFile struct {
	Points []struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
		Ele float64 `json:"ele"`
	} `json:"points"`
}

// riderFile is the on-disk JSON shape for a rider profile.
type riderFile struct {
	CPWatts     float64 `json:"cp_w"`
	WPrimeJ     float64 `json:"w_prime_j"`
	CdA         float64 `json:"cda"`
	RiderMassKg float64 `json:"rider_mass_kg"`
	BikeMassKg  float64 `json:"bike_mass_kg"`
	Drivetrain  string  `json:"drivetrain"`
	PDC         []struct {
		DurationSec float64 `json:"duration_sec"`
		PowerW      float64 `json:"power_w"`
	} `json:"pdc"`
}

// printSummary writes a one-line human-readable summary to stderr so the
// JSON result on stdout stays machine-parseable. Speed is reported in the
// caller's chosen units; the JSON result itself always uses km/h.
func printSummary(result kernel.SimulationResult, speedUnits string) {
	speedMPS := result.AvgSpeedKmh / 3.6
	converted := units.ConvertSpeed(speedMPS, speedUnits)
	fmt.Fprintf(os.Stderr, "ridesim: finished in %.0fs, avg speed %.2f %s, NP %.0fW\n",
		result.TotalTimeSec, converted, speedUnits, result.NormalizedPowerW)
}

func buildRequest(fs fsutil.FileSystem, coursePath, riderPath string, cfg *config.TuningConfig) (engine.Request, error) {
	courseData, err := fs.ReadFile(coursePath)
	if err != nil {
		return engine.Request{}, fmt.Errorf("reading course file: %w", err)
	}
	var cf courseFile
	if err := json.Unmarshal(courseData, &cf); err != nil {
		return engine.Request{}, fmt.Errorf("parsing course file: %w", err)
	}
	points := make([]course.RawPoint, len(cf.Points))
	for i, p := range cf.Points {
		points[i] = course.RawPoint{Lat: p.Lat, Lon: p.Lon, Ele: p.Ele}
	}

	riderData, err := fs.ReadFile(riderPath)
	if err != nil {
		return engine.Request{}, fmt.Errorf("reading rider file: %w", err)
	}
	var rf riderFile
	if err := json.Unmarshal(riderData, &rf); err != nil {
		return engine.Request{}, fmt.Errorf("parsing rider file: %w", err)
	}
	anchors := make([]rider.PDCAnchor, len(rf.PDC))
	for i, a := range rf.PDC {
		anchors[i] = rider.PDCAnchor{DurationSec: a.DurationSec, PowerW: a.PowerW}
	}
	if len(anchors) == 0 {
		anchors = []rider.PDCAnchor{{DurationSec: 3600, PowerW: rf.CPWatts}}
	}
	pdc, err := rider.NewPowerDurationCurve(anchors, cfg.GetRiegelExponent())
	if err != nil {
		return engine.Request{}, fmt.Errorf("building power-duration curve: %w", err)
	}

	profile := rider.Profile{
		CPWatts: rf.CPWatts, WPrimeJ: rf.WPrimeJ, PDC: pdc, CdA: rf.CdA,
		RiderMassKg: rf.RiderMassKg, BikeMassKg: rf.BikeMassKg, Drivetrain: rider.Drivetrain(rf.Drivetrain),
	}
	if err := profile.Validate(); err != nil {
		return engine.Request{}, fmt.Errorf("validating rider profile: %w", err)
	}

	req := engine.Request{
		Course:  course.RawSource{Points: points},
		Profile: profile,
		Env:     kernel.DefaultEnvironment(),
		Cfg:     cfg,
	}
	return req, nil
}
