package tsv

import (
	"strings"
	"testing"
)

func row(id, name, lat, lon, fclass, fcode, cc, a1, a2, a3, a4, pop, tz string) string {
	f := make([]string, 19)
	f[0] = id
	f[1] = name
	f[4] = lat
	f[5] = lon
	f[6] = fclass
	f[7] = fcode
	f[8] = cc
	f[10] = a1
	f[11] = a2
	f[12] = a3
	f[13] = a4
	f[14] = pop
	f[17] = tz
	return strings.Join(f, "\t")
}

func TestParseAdminAndPopulated(t *testing.T) {
	lines := []string{
		row("1", "Oberland", "47.1", "9.5", "A", "ADM1", "LI", "01", "", "", "", "0", "Europe/Vaduz"),
		row("2", "Vaduz", "47.14", "9.52", "P", "PPLC", "LI", "01", "", "", "", "5400", "Europe/Vaduz"),
		"", // trailing blank line, tolerated
	}
	res, err := Parse(strings.NewReader(strings.Join(lines, "\n")), 100, 0.01, 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Admins) != 1 || res.Admins[0].Name != "Oberland" {
		t.Fatalf("got admins %+v", res.Admins)
	}
	if len(res.Populated) != 1 || res.Populated[0].Name != "Vaduz" {
		t.Fatalf("got populated %+v", res.Populated)
	}
}

func TestParsePopulationBoundary(t *testing.T) {
	lines := []string{
		row("1", "Below", "0", "0", "P", "PPL", "VA", "", "", "", "", "499", "UTC"),
		row("2", "AtBoundary", "0", "0", "P", "PPL", "VA", "", "", "", "", "500", "UTC"),
	}
	res, err := Parse(strings.NewReader(strings.Join(lines, "\n")), 100, 0.01, 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Populated) != 1 || res.Populated[0].Name != "AtBoundary" {
		t.Fatalf("expected only the boundary record kept, got %+v", res.Populated)
	}
}

func TestParseDropsUnknownFeatureCode(t *testing.T) {
	lines := []string{
		row("1", "Nope", "0", "0", "P", "PPLW", "VA", "", "", "", "", "10000", "UTC"),
		row("2", "AlsoNope", "0", "0", "A", "XYZ", "VA", "", "", "", "", "0", "UTC"),
	}
	res, err := Parse(strings.NewReader(strings.Join(lines, "\n")), 100, 0.01, 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Admins) != 0 || len(res.Populated) != 0 {
		t.Fatalf("expected both dropped, got admins=%+v populated=%+v", res.Admins, res.Populated)
	}
}

func TestParseShortRowDropped(t *testing.T) {
	// Only 5 tab-separated fields: far fewer than the required columns.
	short := "1\tFoo\t0\t0\tA"
	res, err := Parse(strings.NewReader(short), 100, 0.01, 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Admins) != 0 || len(res.Populated) != 0 {
		t.Fatalf("expected short row dropped, got %+v", res)
	}
}

func TestParseNonNumericPopulationDropped(t *testing.T) {
	lines := []string{
		row("1", "Bad", "0", "0", "P", "PPL", "VA", "", "", "", "", "not-a-number", "UTC"),
	}
	res, err := Parse(strings.NewReader(strings.Join(lines, "\n")), 100, 0.01, 500, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Populated) != 0 {
		t.Fatalf("expected non-numeric population dropped, got %+v", res.Populated)
	}
}

func TestParseProgressPulses(t *testing.T) {
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, row("1", "Filler", "0", "0", "A", "ADM1", "LI", "01", "", "", "", "0", "UTC"))
	}
	data := strings.Join(lines, "\n")
	progress := make(chan Progress, 1000)
	_, err := Parse(strings.NewReader(data), int64(len(data)), 0.01, 500, progress)
	if err != nil {
		t.Fatal(err)
	}
	close(progress)
	var last Progress
	count := 0
	for p := range progress {
		count++
		last = p
	}
	if count == 0 {
		t.Fatal("expected at least one progress pulse")
	}
	if !last.Complete || last.Pct != 100 {
		t.Fatalf("expected final pulse to be complete at 100%%, got %+v", last)
	}
}

func TestParseCountryIndexSkipsComments(t *testing.T) {
	data := "# comment line\n" +
		"#another\n" +
		"LI\tLIE\t438\tLS\tLiechtenstein\tVaduz\t160\t38000\tEU\t.li\tCHF\tFranc\t423\t\t\tde\tLI\t2658434\n"
	infos, err := ParseCountryIndex(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(infos))
	}
	if infos[0].Code != "LI" || infos[0].Name != "Liechtenstein" || infos[0].Continent != "EU" {
		t.Fatalf("got %+v", infos[0])
	}
}
