package main

import (
	"fmt"
	"io"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"github.com/vkngwrapper/buddy/allocator"
	"github.com/vkngwrapper/buddy/buddy"
	"golang.org/x/exp/slog"
)

var (
	// Global flags
	verbose    bool
	jsonOut    bool
	validate   bool
	minOrder   int
	maxOrder   int
	pageSize   int
	regionSize int
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "buddysim [script]",
	Short: "Replay allocation scripts against a buddy allocator",
	Long: `buddysim creates a fresh buddy-managed region and replays a script of
allocations and frees against it, printing the state of the free lists on request.

Script commands, one per line (blank lines and lines starting with # are ignored):
  alloc <name> <size>   allocate a block of at least size bytes (suffixes K and M accepted)
  free <name>           free the block allocated under name
  dump                  print the free block count at every order
  stats                 print region statistics
  defrag                move allocations into the lowest free blocks until none can move

Example:
  buddysim script.txt
  echo "alloc a 5K" | buddysim --page-size 1024 --region-size 64K`,
	Version:       "0.1.0",
	Args:          cobra.MaximumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRoot(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every allocator operation to stderr")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Print stats in JSON format")
	rootCmd.PersistentFlags().BoolVar(&validate, "validate", false, "Validate allocator metadata after every operation")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Properties file with default flag values")

	rootCmd.Flags().IntVar(&minOrder, "min-order", buddy.DefaultMinOrder, "Exponent of the page size")
	rootCmd.Flags().IntVar(&maxOrder, "max-order", buddy.DefaultMaxOrder, "Exponent of the region size")
	rootCmd.Flags().Var(newSizeValue(&pageSize), "page-size", "Page size in bytes, overrides --min-order")
	rootCmd.Flags().Var(newSizeValue(&regionSize), "region-size", "Region size in bytes, overrides --max-order")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	if configPath != "" {
		if err := applyConfigFile(cmd, configPath); err != nil {
			return err
		}
	}

	config, err := resolveConfig()
	if err != nil {
		return err
	}

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	var flags allocator.CreateFlags
	if validate {
		flags |= allocator.CreateValidateOperations
	}

	var script io.Reader = cmd.InOrStdin()
	if len(args) == 1 {
		file, err := os.Open(args[0])
		if err != nil {
			return errors.Wrap(err, "failed to open script")
		}
		defer file.Close()
		script = file
	}

	sim, err := newSimulator(logger, allocator.CreateOptions{
		Flags:    flags,
		MinOrder: config.MinOrder,
		MaxOrder: config.MaxOrder,
	}, cmd.OutOrStdout(), jsonOut)
	if err != nil {
		return err
	}

	if err := sim.Run(script); err != nil {
		return err
	}

	return sim.Close()
}

func resolveConfig() (buddy.Config, error) {
	config := buddy.Config{MinOrder: minOrder, MaxOrder: maxOrder}

	if pageSize != 0 || regionSize != 0 {
		page, region := config.PageSize(), config.RegionSize()
		if pageSize != 0 {
			page = pageSize
		}
		if regionSize != 0 {
			region = regionSize
		}
		return buddy.ConfigFromSizes(page, region)
	}

	return config, config.Validate()
}
