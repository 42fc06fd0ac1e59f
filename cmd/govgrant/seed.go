package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dukerupert/govgrant/internal/database"
	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/seed"
	"github.com/dukerupert/govgrant/internal/store"
)

var seedFile string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load households from a YAML fixture",
	Long: `Creates the reference values, households, members and spouse links
described in a fixture file. Reference values that already exist are
skipped; everything else is created new.`,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVarP(&seedFile, "file", "f", "", "fixture file (required)")
	seedCmd.MarkFlagRequired("file")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	fx, err := seed.Load(seedFile)
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	svc := household.NewService(
		store.NewHouseholdStore(db),
		store.NewFamilyMemberStore(db),
		store.NewReferenceStore(db),
		household.WithLogger(logger),
	)
	sum, err := seed.Apply(cmd.Context(), svc, fx, logger)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "seeded %d households, %d members, %d spouse links\n",
		sum.Households, sum.Members, sum.SpouseLinks)
	return nil
}
