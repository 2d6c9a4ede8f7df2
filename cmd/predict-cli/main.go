package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/aquilu/jacobo/internal/analysis"
	"github.com/aquilu/jacobo/internal/config"
	"github.com/aquilu/jacobo/internal/logging"
	"github.com/aquilu/jacobo/internal/model"
	"github.com/aquilu/jacobo/internal/prediction"
	"github.com/aquilu/jacobo/internal/reconcile"
	"github.com/aquilu/jacobo/internal/table"
)

type cliOptions struct {
	configPath string
	inputPath  string
	outputPath string
	outputDir  string
	stdout     bool
}

func main() {
	opts, err := parseFlags()
	if err != nil {
		logrus.Fatalf("predict-cli: %v", err)
	}
	if err := run(opts); err != nil {
		logrus.Fatalf("predict-cli: %v", err)
	}
}

func parseFlags() (cliOptions, error) {
	var opts cliOptions
	flag.StringVar(&opts.configPath, "config", "", "Path to config file (default: ./config.yaml if present)")
	flag.StringVar(&opts.inputPath, "input", "", "CSV/TSV/XLSX/HTML file with the books to score")
	flag.StringVar(&opts.outputPath, "output", "", "CSV file to write results (default uses --output-dir/predicciones_<model>.csv)")
	flag.StringVar(&opts.outputDir, "output-dir", "csv", "Directory where result CSVs are written when --output is omitted")
	flag.BoolVar(&opts.stdout, "stdout", false, "Print summary metrics to STDOUT")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --input FILE [options]\n\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	opts.configPath = strings.TrimSpace(opts.configPath)
	opts.inputPath = strings.TrimSpace(opts.inputPath)
	opts.outputPath = strings.TrimSpace(opts.outputPath)
	opts.outputDir = strings.TrimSpace(opts.outputDir)

	if opts.inputPath == "" {
		flag.Usage()
		return opts, errors.New("missing required --input file")
	}
	return opts, nil
}

func run(opts cliOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)

	predictor, err := model.Open(cfg.Model)
	if err != nil {
		return fmt.Errorf("load model: %w", err)
	}
	defer predictor.Close()

	recOpts, err := cfg.Reconcile.Options()
	if err != nil {
		return fmt.Errorf("reconcile settings: %w", err)
	}

	input, err := readInput(opts.inputPath)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	rec := reconcile.New(recOpts).Reconcile(input)
	if err := rec.Err(); err != nil {
		return fmt.Errorf("%w (columns: %s)", err, strings.Join(input.Headers, ", "))
	}
	if len(rec.Matched) > 0 {
		logger.WithField("columns", rec.Matched).Info("Columns renamed")
	}
	if rec.Table.Len() == 0 {
		return errors.New("input file does not contain any rows")
	}

	ctx := context.Background()
	scores, err := model.Score(ctx, predictor, rec.Table.Records())
	if err != nil {
		return err
	}
	res, err := prediction.New(rec.Table, scores, predictor.Name(), time.Now())
	if err != nil {
		return err
	}

	outputPath, err := resolveOutputPath(opts.outputPath, opts.outputDir, res.FileName())
	if err != nil {
		return err
	}
	if err := writeResultCSV(outputPath, res); err != nil {
		return err
	}
	logger.WithFields(logrus.Fields{"rows": res.Len(), "output": outputPath}).Info("Predictions saved")

	if opts.stdout {
		printSummary(os.Stdout, res.Model, analysis.Summarize(res.Scores))
	}
	return nil
}

func readInput(path string) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return table.Parse(path, f)
}

func resolveOutputPath(path, dir, name string) (string, error) {
	if path != "" {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return "", fmt.Errorf("resolve output path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return "", fmt.Errorf("create output directory: %w", err)
		}
		return absPath, nil
	}
	if dir == "" {
		dir = "csv"
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve output dir: %w", err)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(absDir, name), nil
}

func writeResultCSV(path string, res *prediction.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create result file: %w", err)
	}
	if err := res.WriteCSV(f); err != nil {
		f.Close()
		return fmt.Errorf("write result: %w", err)
	}
	return f.Close()
}

func printSummary(w io.Writer, modelName string, s analysis.Summary) {
	fmt.Fprintf(w, "Modelo: %s\n", modelName)
	fmt.Fprintf(w, "Total Registros:       %d\n", s.Count)
	fmt.Fprintf(w, "Probabilidad Promedio: %.5f\n", s.Mean)
	fmt.Fprintf(w, "Probabilidad Máxima:   %.5f\n", s.Max)
	fmt.Fprintf(w, "Probabilidad Mínima:   %.5f\n", s.Min)
	fmt.Fprintf(w, "Alta Demanda (>70%%):   %d\n", s.High)
	fmt.Fprintf(w, "Demanda Media (30-70%%): %d\n", s.Medium)
	fmt.Fprintf(w, "Baja Demanda (<30%%):   %d\n", s.Low)
}
