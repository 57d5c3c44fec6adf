// Package tsv implements the GeoNames TSV parser and record filter: a
// streaming tab-split reader, partitioned into administrative (class A) and
// populated-place (class P) record sequences, with byte-position progress
// reporting.
package tsv

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/quay/claircore-geoindex/internal/model"
)

// Column indices into a geoname TSV row, 1-indexed to match upstream
// documentation.
const (
	colID           = 1
	colName         = 2
	colLatitude     = 5
	colLongitude    = 6
	colFeatureClass = 7
	colFeatureCode  = 8
	colCountryCode  = 9
	colAdmin1       = 11
	colAdmin2       = 12
	colAdmin3       = 13
	colAdmin4       = 14
	colPopulation   = 15
	colTimezone     = 18
)

// adminFeatureCodes is the keep-set for feature_class A.
var adminFeatureCodes = map[string]bool{
	"ADM1": true, "ADM2": true, "ADM3": true, "ADM4": true, "ADM5": true,
	"ADMD": true, "PCL": true, "PCLD": true, "PCLF": true, "PCLI": true, "PCLS": true,
}

// populatedFeatureCodes is the keep-set for feature_class P.
var populatedFeatureCodes = map[string]bool{
	"PPL": true, "PPLA": true, "PPLA2": true, "PPLA3": true, "PPLA4": true,
	"PPLC": true, "PPLG": true, "PPLS": true, "PPLX": true,
}

// Progress is one pulse emitted during parsing, at most one per "+1%" step,
// with a final pulse carrying Complete == true after EOF.
type Progress struct {
	Pct      int // 1..100
	Complete bool
}

// Result holds the two ordered, file-order-preserving sequences the parser
// produces.
type Result struct {
	Admins    []model.GeonameRecord
	Populated []model.GeonameRecord
}

// Parse streams r, a country's full TSV, splitting records into the Admins
// and Populated sequences per the filter policy below. size is the pre-scan
// file size used to compute the progress step; progress, if non-nil,
// receives pulses and is never closed by Parse (the caller owns its
// lifetime).
func Parse(r io.Reader, size int64, progressFraction float64, minPopulation int64, progress chan<- Progress) (Result, error) {
	step := int64(float64(size) * progressFraction)
	if step <= 0 {
		step = 1
	}

	var res Result
	var consumed int64
	var lastPulse int64

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		consumed += int64(len(line)) + 1 // +1 for the newline the scanner stripped

		if rec, ok := parseLine(line, minPopulation); ok {
			if rec.IsAdmin() {
				res.Admins = append(res.Admins, rec)
			} else {
				res.Populated = append(res.Populated, rec)
			}
		}

		if progress != nil {
			for consumed/step > lastPulse {
				lastPulse++
				pct := int(lastPulse)
				if pct > 100 {
					pct = 100
				}
				progress <- Progress{Pct: pct}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return Result{}, err
	}

	if progress != nil {
		progress <- Progress{Pct: 100, Complete: true}
	}
	return res, nil
}

// parseLine parses and filters a single TSV row. A short row (fewer than 19
// fields) is kept only if every required column is present; a row missing
// any required column is dropped rather than treated as a parse error.
func parseLine(line string, minPopulation int64) (model.GeonameRecord, bool) {
	if line == "" {
		return model.GeonameRecord{}, false // tolerate a trailing blank line
	}
	fields := strings.Split(line, "\t")

	get := func(col int) (string, bool) {
		idx := col - 1
		if idx < 0 || idx >= len(fields) {
			return "", false
		}
		v := fields[idx]
		return v, v != ""
	}

	id, idOK := get(colID)
	name, nameOK := get(colName)
	lat, latOK := get(colLatitude)
	lon, lonOK := get(colLongitude)
	fcRaw, fcOK := get(colFeatureClass)
	fcode, fcodeOK := get(colFeatureCode)
	cc, ccOK := get(colCountryCode)
	popRaw, popOK := get(colPopulation)
	tz, _ := get(colTimezone)

	if !(idOK && nameOK && latOK && lonOK && fcOK && fcodeOK && ccOK && popOK) {
		return model.GeonameRecord{}, false
	}
	if len(fcRaw) != 1 {
		return model.GeonameRecord{}, false
	}
	fc := fcRaw[0]

	population, err := strconv.ParseInt(popRaw, 10, 64)
	if err != nil {
		return model.GeonameRecord{}, false // non-numeric population: drop silently
	}

	var keep bool
	switch fc {
	case 'A':
		keep = adminFeatureCodes[fcode]
	case 'P':
		keep = population >= minPopulation && populatedFeatureCodes[fcode]
	default:
		keep = false
	}
	if !keep {
		return model.GeonameRecord{}, false
	}

	admin1, _ := get(colAdmin1)
	admin2, _ := get(colAdmin2)
	admin3, _ := get(colAdmin3)
	admin4, _ := get(colAdmin4)

	rec := model.GeonameRecord{
		ID:           id,
		Name:         name,
		Latitude:     lat,
		Longitude:    lon,
		FeatureClass: fc,
		FeatureCode:  fcode,
		CountryCode:  cc,
		Admin1:       optionalOf(admin1),
		Admin2:       optionalOf(admin2),
		Admin3:       optionalOf(admin3),
		Admin4:       optionalOf(admin4),
		Population:   population,
		Timezone:     tz,
	}
	return rec, true
}

func optionalOf(v string) model.Optional {
	if v == "" {
		return model.Optional{}
	}
	return model.Opt(v)
}

// ParseCountryIndex parses countryInfo.txt, skipping comment lines (lines
// whose first byte is '#').
//
// Column 9 of countryInfo.txt is documented upstream as Continent; this is
// carried as-is rather than silently "corrected" against whatever the
// current upstream column order happens to be.
func ParseCountryIndex(r io.Reader) ([]model.CountryInfo, error) {
	var out []model.CountryInfo
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" || line[0] == '#' {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 9 {
			continue
		}
		out = append(out, model.CountryInfo{
			Code:      fields[0],
			Name:      fields[4],
			Continent: fields[8],
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
