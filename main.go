package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ossyrian/fparchive/internal/config"
	"github.com/ossyrian/fparchive/internal/extract"
	"github.com/ossyrian/fparchive/internal/fparc"
	"github.com/ossyrian/fparchive/internal/logging"
	"github.com/ossyrian/fparchive/internal/parser"
	"github.com/ossyrian/fparchive/internal/types"
)

var (
	cfgFile  string
	cfg      *config.Config
	closeLog = func() error { return nil }
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:               "fparchive",
	Short:             "List and extract encrypted FP archive files",
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
	SilenceUsage: true,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the entry index of an archive",
	RunE:  list,
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Decrypt the entries of an archive, or of every archive in a directory",
	RunE:  extractArchives,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file")

	// i/o
	rootCmd.PersistentFlags().StringP("input", "i", "", "path to archive file, or directory of archives for extract (required)")
	rootCmd.PersistentFlags().StringP("key", "k", fparc.DefaultTextKey, "text key used to decrypt entry names")

	// other opts
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentFlags().String("log-output-dir", "", "directory to write log files (if set, logs are written to both stderr and file)")

	listCmd.Flags().Bool("hash", false, "decrypt every entry and print its xxhash64")
	listCmd.Flags().Bool("json", false, "print the index as a JSON manifest")

	extractCmd.Flags().StringP("output", "o", "output", "directory to extract into")
	extractCmd.Flags().StringP("pattern", "p", "", "only extract entries matching this glob (e.g. \"**/*.lua\")")
	extractCmd.Flags().IntP("workers", "w", 4, "concurrent entry extractions per archive")
	extractCmd.Flags().Bool("dry-run", false, "decrypt without writing output (validation)")

	viper.BindPFlag("input", rootCmd.PersistentFlags().Lookup("input"))
	viper.BindPFlag("text_key", rootCmd.PersistentFlags().Lookup("key"))
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_output_dir", rootCmd.PersistentFlags().Lookup("log-output-dir"))
	viper.BindPFlag("hash", listCmd.Flags().Lookup("hash"))
	viper.BindPFlag("json", listCmd.Flags().Lookup("json"))
	viper.BindPFlag("output", extractCmd.Flags().Lookup("output"))
	viper.BindPFlag("pattern", extractCmd.Flags().Lookup("pattern"))
	viper.BindPFlag("workers", extractCmd.Flags().Lookup("workers"))
	viper.BindPFlag("dry_run", extractCmd.Flags().Lookup("dry-run"))

	rootCmd.AddCommand(listCmd, extractCmd)
}

// initConfig reads in config file and environment variables if set
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "fparchive"))
		}
		viper.AddConfigPath("/etc/fparchive")
		viper.SetConfigName("config")
		viper.SetConfigType("toml")
	}

	viper.SetEnvPrefix("FPARCHIVE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// setup loads the config and the logger shared by all commands
func setup(cmd *cobra.Command, args []string) error {
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	c, err := logging.Setup(cfg.LogLevel, cfg.LogOutputDir, os.Stderr)
	if err != nil {
		return fmt.Errorf("could not set up logging: %w", err)
	}
	closeLog = c

	return nil
}

// list prints the index of a single archive
func list(cmd *cobra.Command, args []string) error {
	logger := slog.With("file", cfg.InputFile)

	file, err := os.Open(cfg.InputFile)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer file.Close()

	index, err := parser.Parse(file, cfg.TextKey, logger)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", cfg.InputFile, err)
	}

	manifest := types.NewManifest(filepath.Base(cfg.InputFile), index)

	if cfg.Hash {
		x := parser.NewExtractor(file, index.StartPosition)
		for i, e := range index.Entries {
			data, err := x.Extract(e)
			if err != nil {
				logger.Warn("failed to extract entry", "name", e.Name, "error", err)
				manifest.Entries[i].Error = err.Error()
				continue
			}
			manifest.Entries[i].Hash = types.Hash(data)
		}
	}

	out := cmd.OutOrStdout()
	if cfg.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(manifest)
	}

	fmt.Fprintf(out, "version: %s  files: %d  body: %d  zip: %d  start: %d\n",
		manifest.Version, manifest.FileCount, manifest.BodySize, manifest.ZipFlag, manifest.StartPosition)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPOSITION\tOFFSET\tLENGTH\tHASH")
	for _, e := range manifest.Entries {
		hash := e.Hash
		if e.Error != "" {
			hash = "error"
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", e.Name, e.Position, e.Offset, e.Length, hash)
	}
	return tw.Flush()
}

// extractArchives extracts the input archive, or every archive in the input directory
func extractArchives(cmd *cobra.Command, args []string) error {
	x, err := extract.New(extract.Options{
		TextKey:   cfg.TextKey,
		OutputDir: cfg.OutputDir,
		Pattern:   cfg.Pattern,
		Workers:   cfg.Workers,
		DryRun:    cfg.DryRun,
	}, slog.Default())
	if err != nil {
		return err
	}

	results, err := x.Path(cmd.Context(), cfg.InputFile)

	var extracted, failed int
	for _, res := range results {
		extracted += res.Extracted
		failed += len(res.Errors)
	}
	slog.Info("done",
		"archives", len(results),
		"extracted", extracted,
		"failed_entries", failed,
		"dry_run", cfg.DryRun,
	)

	if err != nil {
		return fmt.Errorf("some archives could not be read: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
