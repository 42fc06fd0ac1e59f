package main

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/dukerupert/govgrant/internal/database"
	"github.com/dukerupert/govgrant/internal/eligibility"
	"github.com/dukerupert/govgrant/internal/store"
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Print the households matching eligibility criteria as JSON",
	Example: `  govgrant filter --max-age 16 --max-income 150000
  govgrant filter --with-spouse --housing-type HDB`,
	RunE: runFilter,
}

// filterFlags maps CLI flags onto query parameter names.
var filterFlags = []struct {
	flag, param, usage string
}{
	{"min-income", eligibility.ParamMinIncome, "household income must be above this"},
	{"max-income", eligibility.ParamMaxIncome, "household income must be below this"},
	{"min-age", eligibility.ParamMinAge, "some member must be older than this many years"},
	{"max-age", eligibility.ParamMaxAge, "some member must be younger than this many years"},
	{"with-spouse", eligibility.ParamWithSpouse, "require (true) or exclude (false) a married couple"},
	{"housing-type", eligibility.ParamHousingType, "housing type, case-insensitive"},
}

func init() {
	for _, f := range filterFlags {
		filterCmd.Flags().String(f.flag, "", f.usage)
	}
	filterCmd.Flags().Lookup("with-spouse").NoOptDefVal = "true"
}

// criteriaFromFlags parses the flags that were set through the same path
// as HTTP query strings.
func criteriaFromFlags(cmd *cobra.Command) (eligibility.Criteria, error) {
	q := url.Values{}
	for _, f := range filterFlags {
		if !cmd.Flags().Changed(f.flag) {
			continue
		}
		v, err := cmd.Flags().GetString(f.flag)
		if err != nil {
			return eligibility.Criteria{}, err
		}
		q.Set(f.param, v)
	}
	return eligibility.ParseCriteria(q)
}

func runFilter(cmd *cobra.Command, args []string) error {
	c, err := criteriaFromFlags(cmd)
	if err != nil {
		return err
	}

	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	engine := eligibility.New(store.NewHouseholdStore(db), eligibility.WithLogger(logger))
	households, err := engine.Query(cmd.Context(), c)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(households)
}
