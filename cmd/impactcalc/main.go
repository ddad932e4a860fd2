package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/signalsfoundry/impact-simulator/core"
	"github.com/signalsfoundry/impact-simulator/internal/logging"
	"github.com/signalsfoundry/impact-simulator/internal/sim/controller"
	"github.com/signalsfoundry/impact-simulator/internal/sim/overlay"
	"github.com/signalsfoundry/impact-simulator/model"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "impactcalc: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	params      model.ImpactParameters
	location    model.GeoPoint
	radius      float64
	impactScale float64
	tle1, tle2  string
	at          string
	asJSON      bool
	materials   bool
	verbose     bool
}

func parseFlags(args []string, out io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("impactcalc", flag.ContinueOnError)
	fs.SetOutput(out)
	fs.StringVar(&o.params.Material, "material", "rock", "impactor material")
	fs.Float64Var(&o.params.DiameterMeters, "diameter", 50, "impactor diameter in meters")
	fs.Float64Var(&o.params.VelocityKmS, "velocity", 20, "impact velocity in km/s")
	fs.Float64Var(&o.location.Lat, "lat", 0, "impact latitude in degrees")
	fs.Float64Var(&o.location.Lon, "lon", 0, "impact longitude in degrees")
	fs.Float64Var(&o.radius, "globe-radius", core.DefaultGlobeRadius, "radius of the rendered globe")
	fs.Float64Var(&o.impactScale, "impact-scale", controller.DefaultImpactScale, "renderer scale applied to the shockwave diameter")
	fs.StringVar(&o.tle1, "tle1", "", "TLE line 1 of a tracked object whose sub-point is the impact location")
	fs.StringVar(&o.tle2, "tle2", "", "TLE line 2 of a tracked object")
	fs.StringVar(&o.at, "at", "", "RFC 3339 time for TLE propagation (default now)")
	fs.BoolVar(&o.asJSON, "json", false, "print JSON instead of a table")
	fs.BoolVar(&o.materials, "list-materials", false, "list known materials and exit")
	fs.BoolVar(&o.verbose, "v", false, "log controller activity to stderr")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return o, nil
}

type report struct {
	Location model.GeoPoint     `json:"location"`
	Result   model.ImpactResult `json:"result"`
	Commands []commandView      `json:"commands"`
}

type commandView struct {
	Op     string  `json:"op"`
	Kind   string  `json:"kind"`
	Handle string  `json:"handle"`
	Size   float64 `json:"size,omitempty"`
}

// run simulates one launch through the controller and prints the physics
// outputs with the renderer commands it produced.
func run(ctx context.Context, args []string, out io.Writer) error {
	o, err := parseFlags(args, out)
	if err != nil {
		return err
	}
	if o.materials {
		for _, m := range core.Materials() {
			density, _ := core.DensityOf(m)
			fmt.Fprintf(out, "%-8s %8.0f kg/m3\n", m, density)
		}
		return nil
	}

	log := logging.Noop()
	if o.verbose {
		log = logging.New(logging.Config{Level: "debug", Output: os.Stderr})
	}

	rec := &overlay.Recorder{}
	seq := 0
	overlays, err := overlay.NewManager(rec, o.radius,
		overlay.WithLogger(log),
		overlay.WithHandleSource(func() overlay.Handle {
			seq++
			return overlay.Handle(fmt.Sprintf("overlay-%d", seq))
		}),
	)
	if err != nil {
		return err
	}
	ctrl, err := controller.New(overlays,
		controller.WithLogger(log),
		controller.WithInitialParameters(o.params),
		controller.WithImpactScale(o.impactScale),
	)
	if err != nil {
		return err
	}
	if err := ctrl.Start(ctx); err != nil {
		return err
	}

	if o.tle1 != "" || o.tle2 != "" {
		var at time.Time
		if o.at != "" {
			if at, err = time.Parse(time.RFC3339, o.at); err != nil {
				return fmt.Errorf("%w: -at must be RFC 3339: %v", core.ErrInvalidParameter, err)
			}
		}
		if _, err := ctrl.SetLocationFromTLE(ctx, o.tle1, o.tle2, at); err != nil {
			return err
		}
	} else if err := ctrl.SetLocation(ctx, o.location); err != nil {
		return err
	}

	res, err := ctrl.Launch(ctx)
	if err != nil {
		return err
	}

	rep := report{Location: ctrl.Snapshot().Location, Result: res}
	for _, cmd := range rec.Commands() {
		rep.Commands = append(rep.Commands, commandView{
			Op:     cmd.Op.String(),
			Kind:   cmd.Kind.String(),
			Handle: string(cmd.Handle),
			Size:   cmd.Size,
		})
	}

	if o.asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return printReport(out, rep)
}

func printReport(out io.Writer, rep report) error {
	res := rep.Result
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Impactor\t%s, %g m at %g km/s\n", res.Params.Material, res.Params.DiameterMeters, res.Params.VelocityKmS)
	fmt.Fprintf(tw, "Location\t%s\n", rep.Location)
	fmt.Fprintf(tw, "Mass\t%.4g kg\n", res.MassKg)
	fmt.Fprintf(tw, "Kinetic energy\t%.4g J (%.4g Mt TNT)\n", res.KineticEnergyJ, res.KineticEnergyJ/4.184e15)
	fmt.Fprintf(tw, "Crater radius\t%.4f km\n", res.CraterRadiusKm)
	fmt.Fprintf(tw, "Crater depth\t%.4f km\n", res.CraterDepthKm)
	fmt.Fprintf(tw, "Lethal distance\t%.4f km\n", res.LethalDistanceKm)
	fmt.Fprintf(tw, "Shockwave diameter\t%.4f km\n", res.ShockwaveDiameterKm)
	if err := tw.Flush(); err != nil {
		return err
	}

	var b strings.Builder
	b.WriteString("\nRenderer commands:\n")
	for _, c := range rep.Commands {
		if c.Op == overlay.OpCreate.String() {
			fmt.Fprintf(&b, "  %-6s %-7s %s size=%.4g\n", c.Op, c.Kind, c.Handle, c.Size)
		} else {
			fmt.Fprintf(&b, "  %-6s %-7s %s\n", c.Op, c.Kind, c.Handle)
		}
	}
	_, err := io.WriteString(out, b.String())
	return err
}
