package hierarchy

import (
	"context"
	"testing"

	"github.com/quay/claircore-geoindex/internal/model"
)

func TestLookupResolvesProgressiveLevels(t *testing.T) {
	admins := []model.GeonameRecord{
		{Name: "Oberland", CountryCode: "LI", Admin1: model.Opt("01")},
		{Name: "Vaduz District", CountryCode: "LI", Admin1: model.Opt("01"), Admin2: model.Opt("02")},
	}
	svc := New(admins)
	defer svc.Close()

	rec := model.GeonameRecord{
		CountryCode: "LI",
		Admin1:      model.Opt("01"),
		Admin2:      model.Opt("02"),
	}
	labels, err := svc.Lookup(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if labels.Admin1Txt.Value != "Oberland" || !labels.Admin1Txt.Present {
		t.Fatalf("got admin1 %+v", labels.Admin1Txt)
	}
	if labels.Admin2Txt.Value != "Vaduz District" || !labels.Admin2Txt.Present {
		t.Fatalf("got admin2 %+v", labels.Admin2Txt)
	}
	if labels.Admin3Txt.Present || labels.Admin4Txt.Present {
		t.Fatalf("expected admin3/4 absent, got %+v", labels)
	}
}

func TestLookupShortCircuitsOnMissingComponent(t *testing.T) {
	svc := New(nil)
	defer svc.Close()

	rec := model.GeonameRecord{CountryCode: "LI"} // no admin1 at all
	labels, err := svc.Lookup(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if labels.Admin1Txt.Present || labels.Admin2Txt.Present || labels.Admin3Txt.Present || labels.Admin4Txt.Present {
		t.Fatalf("expected all labels absent, got %+v", labels)
	}
}

func TestLookupUnresolvedLevelIsAbsent(t *testing.T) {
	// admin1 present in the index, admin2 has no matching admin record.
	admins := []model.GeonameRecord{
		{Name: "Oberland", CountryCode: "LI", Admin1: model.Opt("01")},
	}
	svc := New(admins)
	defer svc.Close()

	rec := model.GeonameRecord{
		CountryCode: "LI",
		Admin1:      model.Opt("01"),
		Admin2:      model.Opt("99"),
	}
	labels, err := svc.Lookup(context.Background(), rec)
	if err != nil {
		t.Fatal(err)
	}
	if !labels.Admin1Txt.Present || labels.Admin1Txt.Value != "Oberland" {
		t.Fatalf("got admin1 %+v", labels.Admin1Txt)
	}
	if labels.Admin2Txt.Present {
		t.Fatalf("expected admin2 absent when no match, got %+v", labels.Admin2Txt)
	}
}

func TestConcurrentLookups(t *testing.T) {
	admins := []model.GeonameRecord{
		{Name: "Oberland", CountryCode: "LI", Admin1: model.Opt("01")},
	}
	svc := New(admins)
	defer svc.Close()

	const n = 50
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			_, err := svc.Lookup(context.Background(), model.GeonameRecord{
				CountryCode: "LI",
				Admin1:      model.Opt("01"),
			})
			errs <- err
		}()
	}
	for i := 0; i < n; i++ {
		if err := <-errs; err != nil {
			t.Fatal(err)
		}
	}
}
