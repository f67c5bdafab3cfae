package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/alecthomas/kong"

	"github.com/sudorandom/lane-heat/pkg/network"
	"github.com/sudorandom/lane-heat/pkg/utils"
)

type Globals struct {
	Tolerance      float64       `help:"Douglas-Peucker tolerance in network units." default:"5"`
	MaxPoints      int           `help:"Maximum points kept per lane." default:"20"`
	MaxLanes       int           `help:"Maximum lanes kept in the model." default:"15000"`
	RoadTypes      []string      `help:"Edge types to keep besides internal and untyped edges." default:"trunk,primary,secondary"`
	Representative bool          `help:"Keep only the most detailed lane of every edge."`
	Timeout        time.Duration `help:"HTTP timeout." default:"2m"`
	Store          string        `help:"Model store directory. Successful ingestions are saved there." type:"path"`
}

func (g *Globals) options() []network.Option {
	opts := []network.Option{
		network.WithTolerance(g.Tolerance),
		network.WithMaxPointsPerLane(g.MaxPoints),
		network.WithMaxLanes(g.MaxLanes),
		network.WithRoadTypes(g.RoadTypes),
	}
	if g.Representative {
		opts = append(opts, network.WithRepresentativeLanes())
	}
	return opts
}

// ingest runs one ingestion task and waits for its single response.
func (g *Globals) ingest(ctx context.Context, url string) network.Response {
	resp := <-network.Start(ctx, network.NewFetcher(g.Timeout), network.Request{SourceURL: url}, g.options()...)
	if resp.Err == nil && g.Store != "" {
		store, err := network.OpenStore(g.Store)
		if err != nil {
			log.Printf("Error opening store: %v", err)
			return resp
		}
		defer utils.CloseQuietly(store, "model store")
		if err := store.Save(url, resp.Model); err != nil {
			log.Printf("Error saving model: %v", err)
		}
	}
	return resp
}

func writeOutput(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(append(data, '\n'))
		return err
	}
	return utils.WriteFileAtomic(path, data)
}

type FetchCmd struct {
	URL    string `arg:"" help:"Network URL or local path."`
	Out    string `short:"o" help:"Write the message here instead of stdout." type:"path"`
	Indent bool   `help:"Indent the JSON output."`
}

// Run prints the message the ingestion task would send back: the model on
// success, {"message": ...} on failure.
func (c *FetchCmd) Run(ctx context.Context, g *Globals) error {
	resp := g.ingest(ctx, c.URL)
	var data []byte
	var err error
	if c.Indent {
		data, err = json.MarshalIndent(resp.Payload(), "", "  ")
	} else {
		data, err = json.Marshal(resp.Payload())
	}
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}
	if err := writeOutput(c.Out, data); err != nil {
		return err
	}
	return resp.Err
}

type GeoJSONCmd struct {
	URL string `arg:"" help:"Network URL or local path."`
	Out string `short:"o" help:"Output file, stdout when empty." type:"path"`
}

func (c *GeoJSONCmd) Run(ctx context.Context, g *Globals) error {
	resp := g.ingest(ctx, c.URL)
	if resp.Err != nil {
		return resp.Err
	}
	data, err := resp.Model.FeatureCollection().MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode geojson: %w", err)
	}
	return writeOutput(c.Out, data)
}

type ReportCmd struct {
	URL string `arg:"" help:"Network URL or local path."`
	Top int    `help:"Number of lanes listed." default:"20"`
}

func (c *ReportCmd) Run(ctx context.Context, g *Globals) error {
	data, err := network.NewFetcher(g.Timeout).Fetch(ctx, c.URL)
	if err != nil {
		return err
	}
	lanes, sum, err := network.Report(data, g.options()...)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "LANE\tEDGE\tRAW\tSIMPLIFIED\tKEPT\tDEVIATION\n")
	for i, l := range lanes {
		if i >= c.Top {
			break
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.3f\n", l.ID, l.EdgeID, l.Raw, l.Simplified, l.Kept, l.Deviation)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	ratio := 0.0
	if sum.RawPoints > 0 {
		ratio = 100 * float64(sum.KeptPoints) / float64(sum.RawPoints)
	}
	fmt.Printf("\n%d lanes, %d -> %d points (%.1f%%), max deviation %.3f (tolerance %g)\n",
		sum.Lanes, sum.RawPoints, sum.KeptPoints, ratio, sum.MaxDeviation, g.Tolerance)
	return nil
}

type StoredCmd struct {
	Delete []string `help:"Remove the stored model of these sources." placeholder:"URL"`
}

func (c *StoredCmd) Run(g *Globals) error {
	if g.Store == "" {
		return errors.New("--store is required")
	}
	store, err := network.OpenStore(g.Store)
	if err != nil {
		return err
	}
	defer utils.CloseQuietly(store, "model store")
	for _, src := range c.Delete {
		if err := store.Delete(src); err != nil {
			return err
		}
	}
	entries, err := store.Entries()
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%s\t%s\t%d lanes\t%d bytes\n", e.Source, e.SavedAt.Format(time.RFC3339), e.Lanes, e.Bytes)
	}
	return nil
}

type CLI struct {
	Globals

	Fetch   FetchCmd   `cmd:"" help:"Ingest a network and print the result message as JSON."`
	GeoJSON GeoJSONCmd `cmd:"" name:"geojson" help:"Ingest a network and export it as GeoJSON."`
	Report  ReportCmd  `cmd:"" help:"Show how much simplification moved each lane."`
	Stored  StoredCmd  `cmd:"" help:"List or delete the models in the store."`
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("net-ingest"),
		kong.Description("Fetch a SUMO road network and reduce it to a render-ready model."),
		kong.UsageOnError(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli.Globals)
	stop()
	kctx.FatalIfErrorf(err)
}
