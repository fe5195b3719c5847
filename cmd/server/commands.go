package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/scaling-viz/server/internal/data/dataset"
	"github.com/scaling-viz/server/internal/regime"
	"github.com/scaling-viz/server/internal/service"
)

// Fit flags
var (
	fitDataset    string
	fitFile       string
	fitEnd1       float64
	fitEnd2       float64
	fitStages     []string
	fitSamples    []string
	fitValue      string
	fitConvention string
	fitStrict     bool
	fitBaseline   bool
	fitOutput     string
)

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Fit scaling regimes and print the fit table",
	Long: `Fit three power-law regimes to every stage/sample condition of a
dataset and print the fit table as CSV.

Examples:
  server fit --dataset dataset_july_2021
  server fit --file scaling.csv.gz --end1 50000 --end2 2000000
  server fit --dataset dataset_july_2021 --stage G1 --sample WT --sample KO
  server fit --file scaling.csv --convention alpha_d -o fit.csv`,
	RunE: runFit,
}

var fetchCmd = &cobra.Command{
	Use:   "fetch <dataset>",
	Short: "Download a dataset archive and record it in the manifest",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List configured datasets and their local archives",
	Args:  cobra.NoArgs,
	RunE:  runDatasets,
}

func init() {
	fitCmd.Flags().StringVar(&fitDataset, "dataset", "", "Configured dataset ID (default: the default dataset)")
	fitCmd.Flags().StringVar(&fitFile, "file", "", "Local table to fit instead of a configured dataset")
	fitCmd.Flags().Float64Var(&fitEnd1, "end1", 0, "Breakpoint between regimes 1 and 2 (default from config)")
	fitCmd.Flags().Float64Var(&fitEnd2, "end2", 0, "Breakpoint between regimes 2 and 3 (default from config)")
	fitCmd.Flags().StringSliceVar(&fitStages, "stage", nil, "Stages to include (repeatable)")
	fitCmd.Flags().StringSliceVar(&fitSamples, "sample", nil, "Samples to include (repeatable)")
	fitCmd.Flags().StringVar(&fitValue, "value", "", "Value column to fit")
	fitCmd.Flags().StringVar(&fitConvention, "convention", "alpha", "Output convention: alpha or alpha_d")
	fitCmd.Flags().BoolVar(&fitStrict, "strict", false, "Fail when any regime has fewer than 2 points")
	fitCmd.Flags().BoolVar(&fitBaseline, "baseline", false, "Subtract the per-cell-line fixed-sample baseline")
	fitCmd.Flags().StringVarP(&fitOutput, "output", "o", "", "Write the fit table to a file instead of stdout")
}

func runFit(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := fitTarget(a)
	if err != nil {
		return err
	}

	conv, err := regime.ParseConvention(fitConvention)
	if err != nil {
		return err
	}
	req := service.Request{
		ValueColumn:      fitValue,
		End1:             fitEnd1,
		End2:             fitEnd2,
		Strict:           fitStrict || cfg.Fit.Strict,
		SubtractBaseline: fitBaseline,
		Convention:       conv,
	}
	if cmd.Flags().Changed("stage") {
		req.Stages = fitStages
	}
	if cmd.Flags().Changed("sample") {
		req.Samples = fitSamples
	}

	res, err := svc.Run(cmd.Context(), req)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	data, err := service.FitTableCSV(res)
	if err != nil {
		return err
	}

	if fitOutput != "" {
		return os.WriteFile(fitOutput, data, 0644)
	}
	_, err = os.Stdout.Write(data)
	return err
}

func fitTarget(a *app) (*service.ScalingService, error) {
	if fitFile != "" {
		if fitDataset != "" {
			return nil, fmt.Errorf("--file and --dataset are mutually exclusive")
		}
		return a.service(dataset.Source{ID: "file:" + fitFile, Path: fitFile}), nil
	}
	id := fitDataset
	if id == "" {
		id = cfg.Data.DefaultDataset
	}
	svc := a.registry.Get(id)
	if svc == nil {
		return nil, fmt.Errorf("%w: %s", service.ErrUnknownDataset, id)
	}
	return svc, nil
}

func runFetch(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	svc := a.registry.Get(args[0])
	if svc == nil {
		return fmt.Errorf("%w: %s", service.ErrUnknownDataset, args[0])
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Minute)
	defer cancel()
	res, err := a.loader.Fetch(ctx, svc.Source())
	if err != nil {
		return err
	}
	fmt.Printf("%s\t%s\t%d bytes\txxh64:%s\n", args[0], res.Path, res.Size, res.Checksum)
	return nil
}

func runDatasets(cmd *cobra.Command, args []string) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDEFAULT\tSOURCE\tARCHIVE\tFETCHED\tCHECKSUM")
	for _, id := range a.registry.DatasetIDs() {
		src := a.registry.Get(id).Source()
		origin := src.URL
		if origin == "" {
			origin = "local"
		}
		isDefault := ""
		if id == a.registry.DefaultDatasetID() {
			isDefault = "*"
		}

		fetched, checksum := "-", "-"
		entry, err := a.manifest.Get(id)
		if err != nil {
			return err
		}
		if entry != nil {
			fetched = entry.FetchedAt.Format(time.RFC3339)
			checksum = entry.Checksum
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", id, isDefault, origin, a.loader.ArchivePath(src), fetched, checksum)
	}
	return tw.Flush()
}
