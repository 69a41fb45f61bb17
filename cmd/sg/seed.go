package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/alfredjeanlab/stagegate/internal/config"
	"github.com/alfredjeanlab/stagegate/internal/seed"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Load stage, gate and requirement definitions into the database",
	Long: `Load stage, gate and requirement definitions from a TOML or YAML file
into the database. Without a file the built-in definitions are used.
Existing definitions are matched by key and updated in place.`,
	GroupID: "system",
	Args:    cobra.MaximumNArgs(1),
	// Seeding writes to the store directly; no client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			f   *seed.File
			err error
		)
		if len(args) == 1 {
			f, err = seed.LoadFile(args[0])
		} else {
			f, err = seed.Default()
		}
		if err != nil {
			return err
		}

		checkOnly, _ := cmd.Flags().GetBool("check")
		if checkOnly {
			fmt.Printf("%d stages valid\n", len(f.Stages))
			return nil
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if cfg.Memory {
			return fmt.Errorf("seed needs a persistent store; unset SG_MEMORY")
		}

		st, err := openStore(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err != nil {
			return err
		}
		defer st.Close()

		sum, err := seed.Apply(cmd.Context(), st, f)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(os.Stdout, sum)
		}
		printSeedSummary(os.Stdout, sum)
		return nil
	},
}

func init() {
	seedCmd.Flags().Bool("check", false, "validate the definitions without writing them")
}
