// Package seed loads households from a YAML fixture.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/dukerupert/govgrant/internal/apperr"
	"github.com/dukerupert/govgrant/internal/household"
	"github.com/dukerupert/govgrant/internal/model"
)

// Fixture is the file format:
//
//	reference_values:
//	  occupation_type: [Retired]
//	households:
//	  - housing_type: Landed
//	    members:
//	      - name: Paul Tan
//	        dob: "2010-01-01"
//	        gender: Male
//	        marital_status: Single
//	        occupation_type: Student
//	        annual_income: 10000
type Fixture struct {
	ReferenceValues map[string][]string `yaml:"reference_values"`
	Households      []Household         `yaml:"households"`
}

type Household struct {
	HousingType string                  `yaml:"housing_type"`
	Members     []household.MemberInput `yaml:"members"`
}

// Summary counts what Apply created.
type Summary struct {
	References  int
	Households  int
	Members     int
	SpouseLinks int
}

func Load(path string) (*Fixture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func Decode(r io.Reader) (*Fixture, error) {
	var fx Fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fx); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	for name := range fx.ReferenceValues {
		if _, ok := model.ParseCategory(name); !ok {
			return nil, fmt.Errorf("decode fixture: unknown reference category %q", name)
		}
	}
	return &fx, nil
}

// Apply writes the fixture through svc. Reference values that already exist
// are skipped. Members are created first and spouses linked in a second
// pass, so a spouse may appear later in the file than the member naming it.
func Apply(ctx context.Context, svc *household.Service, fx *Fixture, logger *slog.Logger) (Summary, error) {
	var sum Summary

	for _, c := range model.Categories {
		for _, name := range fx.ReferenceValues[string(c)] {
			_, err := svc.CreateReference(ctx, c, name)
			if errors.Is(err, apperr.ErrConflict) {
				continue
			}
			if err != nil {
				return sum, fmt.Errorf("reference %s %q: %w", c, name, err)
			}
			sum.References++
		}
	}

	type pending struct {
		memberID int64
		spouse   string
	}
	var links []pending

	for i, fh := range fx.Households {
		h, err := svc.CreateHousehold(ctx, fh.HousingType)
		if err != nil {
			return sum, fmt.Errorf("household %d: %w", i, err)
		}
		sum.Households++

		for _, in := range fh.Members {
			spouse := in.Spouse
			in.Spouse = nil
			m, err := svc.AddMember(ctx, h.ID, in)
			if err != nil {
				return sum, fmt.Errorf("household %d member %q: %w", i, in.Name, err)
			}
			sum.Members++
			if spouse != nil && *spouse != "" {
				links = append(links, pending{memberID: m.ID, spouse: *spouse})
			}
		}
		logger.Debug("seeded household", "household_id", h.ID, "members", len(fh.Members))
	}

	for _, l := range links {
		spouse := l.spouse
		if _, err := svc.SetSpouse(ctx, l.memberID, &spouse); err != nil {
			return sum, fmt.Errorf("spouse %q: %w", spouse, err)
		}
		sum.SpouseLinks++
	}

	logger.Info("fixture applied",
		"references", sum.References,
		"households", sum.Households,
		"members", sum.Members,
		"spouse_links", sum.SpouseLinks,
	)
	return sum, nil
}
