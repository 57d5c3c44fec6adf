package enrich

import (
	"context"
	"sort"
	"testing"

	"github.com/quay/claircore-geoindex/internal/hierarchy"
	"github.com/quay/claircore-geoindex/internal/model"
)

func TestEnrichAttachesLabels(t *testing.T) {
	admins := []model.GeonameRecord{
		{Name: "Oberland", CountryCode: "LI", Admin1: model.Opt("01")},
	}
	h := hierarchy.New(admins)
	defer h.Close()

	populated := []model.GeonameRecord{
		{ID: "1", Name: "Vaduz", CountryCode: "LI", Admin1: model.Opt("01")},
		{ID: "2", Name: "Triesen", CountryCode: "LI", Admin1: model.Opt("01")},
	}

	out, err := Enrich(context.Background(), h, populated)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 records, got %d: %+v", len(out), out)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	for _, rec := range out {
		if !rec.Admin1Txt.Present || rec.Admin1Txt.Value != "Oberland" {
			t.Fatalf("record %s: expected Admin1Txt=Oberland, got %+v", rec.ID, rec.Admin1Txt)
		}
	}
}

func TestEnrichEmptyInput(t *testing.T) {
	h := hierarchy.New(nil)
	defer h.Close()

	out, err := Enrich(context.Background(), h, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no records, got %+v", out)
	}
}

func TestEnrichDropsOnCancelledContext(t *testing.T) {
	h := hierarchy.New(nil)
	defer h.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	populated := []model.GeonameRecord{
		{ID: "1", Name: "Vaduz", CountryCode: "LI", Admin1: model.Opt("01")},
	}
	out, err := Enrich(ctx, h, populated)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if len(out) != 0 {
		t.Fatalf("expected no successful records, got %+v", out)
	}
}
