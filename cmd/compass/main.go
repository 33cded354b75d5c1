// Command compass matches a voter against a set of candidates, or averages
// position sets, and prints the result as JSON.
//
// Usage:
//
//	compass -voter voter.json -candidates parties.json [-weights w.json]
//	compass -average a.json,b.json [-weights-list 2,1]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahrav/go-compass/infrastructure/middleware"
	"github.com/ahrav/go-compass/internal/application"
	"github.com/ahrav/go-compass/internal/domain"
	"github.com/ahrav/go-compass/internal/logging"
	"github.com/ahrav/go-compass/internal/settings"
)

// report is the match output.
type report struct {
	ID          string                  `json:"id"`
	Profile     string                  `json:"profile"`
	GeneratedAt time.Time               `json:"generated_at"`
	Results     map[string]domain.Score `json:"results"`
}

type options struct {
	voter       string
	candidates  string
	weights     string
	average     string
	weightsList string
	config      string
	profile     string
	settings    string
	metricsOut  string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "compass: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("compass", flag.ContinueOnError)
	fs.SetOutput(stderr)

	fs.StringVar(&o.voter, "voter", "", "Voter positions JSON file")
	fs.StringVar(&o.candidates, "candidates", "", "Candidate positions JSON file (object of key to positions)")
	fs.StringVar(&o.weights, "weights", "", "Optional per-candidate weights JSON file")
	fs.StringVar(&o.average, "average", "", "Comma-separated position files to average instead of matching")
	fs.StringVar(&o.weightsList, "weights-list", "", "Comma-separated weights for -average")
	fs.StringVar(&o.config, "config", "", "Scoring configuration YAML (overrides settings)")
	fs.StringVar(&o.profile, "profile", "", "Scoring profile name (overrides settings)")
	fs.StringVar(&o.settings, "settings", "", "Process settings YAML")
	fs.StringVar(&o.metricsOut, "metrics-out", "", "Write Prometheus metrics in text format to this file")

	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	st, err := settings.Load(o.settings)
	if err != nil {
		return err
	}
	if o.config != "" {
		st.ConfigPath = o.config
	}
	if o.profile != "" {
		st.Profile = o.profile
	}

	logger := logging.Init(st.LogLevel, st.LogFormat, stderr)

	profiles := application.NewProfileRegistry()
	workers := application.DefaultMaxWorkers
	if st.ConfigPath != "" {
		loader, err := application.NewConfigLoader()
		if err != nil {
			return err
		}
		catalog, err := loader.LoadFromFile(ctx, st.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to load scoring configuration: %w", err)
		}
		profiles = catalog.Profiles
		workers = catalog.MaxWorkers
		logger.Debug("scoring configuration loaded", "name", catalog.Metadata.Name, "profiles", profiles.Names())
	}
	if st.MaxWorkers > 0 {
		workers = st.MaxWorkers
	}

	profile, err := profiles.Get(st.Profile)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	engine, err := application.NewEngine(profile,
		application.WithLogger(logger),
		application.WithMetrics(middleware.NewPrometheusMetrics(reg)),
		application.WithMaxWorkers(workers),
	)
	if err != nil {
		return err
	}

	var out any
	if o.average != "" {
		out, err = averageCmd(engine, o)
	} else {
		out, err = matchCmd(ctx, engine, o)
	}
	if err != nil {
		return err
	}

	if o.metricsOut != "" {
		if err := prometheus.WriteToTextfile(o.metricsOut, reg); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func matchCmd(ctx context.Context, engine *application.Engine, o options) (*report, error) {
	if o.voter == "" || o.candidates == "" {
		return nil, errors.New("-voter and -candidates are required unless -average is set")
	}

	var voter domain.Positions
	if err := readJSON(o.voter, &voter); err != nil {
		return nil, err
	}
	var candidates map[string]domain.Positions
	if err := readJSON(o.candidates, &candidates); err != nil {
		return nil, err
	}
	var weights map[string]float64
	if o.weights != "" {
		if err := readJSON(o.weights, &weights); err != nil {
			return nil, err
		}
	}

	results, err := engine.Match(ctx, voter, candidates, weights)
	if err != nil {
		return nil, err
	}

	return &report{
		ID:          uuid.NewString(),
		Profile:     engine.Profile().Name,
		GeneratedAt: time.Now().UTC(),
		Results:     results,
	}, nil
}

func averageCmd(engine *application.Engine, o options) (domain.Positions, error) {
	paths := strings.Split(o.average, ",")
	sets := make([]domain.Positions, len(paths))
	for i, path := range paths {
		if err := readJSON(strings.TrimSpace(path), &sets[i]); err != nil {
			return nil, err
		}
	}

	if o.weightsList == "" {
		return engine.Average(sets...), nil
	}

	weights, err := parseWeights(o.weightsList)
	if err != nil {
		return nil, err
	}
	return engine.WeightedAverage(weights, sets...)
}

func parseWeights(list string) ([]float64, error) {
	fields := strings.Split(list, ",")
	weights := make([]float64, len(fields))
	for i, f := range fields {
		w, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid weight %q: %w", f, err)
		}
		weights[i] = w
	}
	return weights, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}
