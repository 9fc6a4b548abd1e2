package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/landmarkhunt/hunt/internal/config"
	"github.com/landmarkhunt/hunt/internal/geo"
	"github.com/landmarkhunt/hunt/internal/importer"
	"github.com/landmarkhunt/hunt/internal/logging"
	"github.com/landmarkhunt/hunt/internal/rating"
	"github.com/landmarkhunt/hunt/internal/storage"
	"github.com/landmarkhunt/hunt/pkg/core"
)

var errUsage = errors.New("missing argument")

// parseInterleaved lets flags appear before or after positional arguments.
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

func runImport(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	fs.SetOutput(out)
	city := fs.String("city", "", "City assigned to every landmark (defaults to the city property)")
	srid := fs.Int("srid", 4326, "EPSG code of the input coordinates (4326 or 3857)")
	buffer := fs.Float64("buffer", importer.DefaultBuffer, "Half-side in meters of the square around point features")
	seed := fs.String("seed", "", "Write a landmark seed file instead of importing into storage")
	configDir := fs.String("config", ".", "Directory containing "+config.ConfigFileName)

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("import: %w: <file.geojson>", errUsage)
	}

	f, err := os.Open(positional[0])
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := importer.Read(f, importer.Options{City: *city, SRID: *srid, Buffer: *buffer})
	if err != nil {
		return err
	}
	for _, s := range res.Skipped {
		fmt.Fprintf(out, "skipped feature %d (%s): %v\n", s.Index, s.ID, s.Err)
	}

	if *seed != "" {
		if err := writeSeed(*seed, res.Landmarks); err != nil {
			return err
		}
		fmt.Fprintf(out, "wrote %d landmarks to %s\n", len(res.Landmarks), *seed)
		return nil
	}

	backend, err := openBackend(*configDir)
	if err != nil {
		return err
	}
	defer backend.Close()

	ctx := context.Background()
	for _, l := range res.Landmarks {
		if err := backend.UpsertLandmark(ctx, l); err != nil {
			return fmt.Errorf("failed to store landmark %s: %w", l.ID, err)
		}
	}
	fmt.Fprintf(out, "imported %d landmarks, skipped %d\n", len(res.Landmarks), len(res.Skipped))
	return nil
}

func runLandmarks(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("landmarks", flag.ContinueOnError)
	fs.SetOutput(out)
	configDir := fs.String("config", ".", "Directory containing "+config.ConfigFileName)
	near := fs.String("near", "", "Only landmarks around this \"lat,lng\"")
	radius := fs.Float64("radius", 500, "Search radius in meters for --near")
	mercator := fs.Bool("mercator", false, "Print Web Mercator x/y instead of lat/lng")

	positional, err := parseInterleaved(fs, args)
	if err != nil {
		return err
	}
	if len(positional) != 1 {
		return fmt.Errorf("landmarks: %w: <city>", errUsage)
	}
	city := positional[0]

	var center core.LatLng
	if *near != "" {
		if center, err = geo.LatLngFromString(*near); err != nil {
			return fmt.Errorf("landmarks: --near %q: %w", *near, err)
		}
	}

	backend, err := openBackend(*configDir)
	if err != nil {
		return err
	}
	defer backend.Close()

	var landmarks []core.Landmark
	if *near != "" {
		landmarks, err = backend.FindWithinRadius(context.Background(), center.Lat, center.Lng, *radius, city)
	} else {
		landmarks, err = backend.ListByCity(context.Background(), city)
	}
	if err != nil {
		return err
	}
	sort.Slice(landmarks, func(i, j int) bool { return landmarks[i].ID < landmarks[j].ID })
	printLandmarks(out, landmarks, *mercator)
	return nil
}

func printLandmarks(out io.Writer, landmarks []core.Landmark, mercator bool) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	if mercator {
		fmt.Fprintln(tw, "ID\tNAME\tX\tY\tRATING\tDIFFICULTY")
	} else {
		fmt.Fprintln(tw, "ID\tNAME\tLAT\tLNG\tRATING\tDIFFICULTY")
	}
	for _, l := range landmarks {
		a, b := fmt.Sprintf("%.6f", l.Centroid.Lat), fmt.Sprintf("%.6f", l.Centroid.Lng)
		if mercator {
			x, y := geo.FromWGS84(l.Centroid)
			a, b = fmt.Sprintf("%.1f", x), fmt.Sprintf("%.1f", y)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.3f\t%.0f%%\n",
			l.ID, l.Name, a, b, l.Rating, rating.DifficultyPercentile(l.Rating))
	}
	_ = tw.Flush()
}

func openBackend(configDir string) (storage.Backend, error) {
	slogManager := logging.NewSlogManager()
	slogManager.Setup(os.Stderr, "warn", nil)
	logger := slogManager.Logger()

	if err := config.Load(configDir); err != nil {
		logger.Warn("Failed to load config, using defaults!", "error", err)
	}

	backend, err := storage.NewBackend(config.GetStorageConfig(), logger)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to init storage: %w", err)
	}
	return backend, nil
}

// writeSeed writes landmarks in the format the memory backend loads on start.
func writeSeed(path string, landmarks []core.Landmark) error {
	if landmarks == nil {
		landmarks = []core.Landmark{}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	if filepath.Ext(path) != ".gz" {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(landmarks)
	}
	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(landmarks); err != nil {
		gz.Close()
		return err
	}
	return gz.Close()
}
