package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"brainspace/config"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "brainspace",
	Short: "brainspace AI gateway",
	Long: `brainspace transcribes media into timestamped chunks and fronts the
generative text and talking-avatar services used by the brainspace app.`,
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		return runServer(cmd.Context(), cfg)
	},
}

var transcribeCmd = &cobra.Command{
	Use:   "transcribe <file>",
	Short: "Transcribe a local media file and print the transcript as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		logger := newLogger(cfg.Log, os.Stderr)

		db, err := initDB(cmd.Context(), cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		s, err := newTranscriptionService(cfg, db, logger)
		if err != nil {
			return err
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		t, err := s.Transcribe(cmd.Context(), filepath.Base(args[0]), f)
		if err != nil {
			return fmt.Errorf("transcribing %s: %w", args[0], err)
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(t)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "brainspace.toml", "config file (.toml, .yaml or .yml)")
	rootCmd.AddCommand(serveCmd, transcribeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
