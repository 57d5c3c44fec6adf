package worker

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/quay/claircore-geoindex/internal/model"
)

// fcpFieldCount is the number of tab-separated fields one encoded FCP row
// carries: id, name, lat, lon, feature_class, feature_code, country_code,
// admin1..4, population, timezone, admin1_txt..4_txt.
const fcpFieldCount = 17

// encodeFCP serializes records as one tab-separated row each, the on-disk
// format of <CC>_fcp.txt. Absent Optionals encode as empty fields, mirroring
// the upstream TSV's own empty-means-absent convention.
func encodeFCP(records []model.GeonameRecord) []byte {
	var buf bytes.Buffer
	for _, r := range records {
		fields := []string{
			r.ID, r.Name, r.Latitude, r.Longitude,
			string(r.FeatureClass), r.FeatureCode, r.CountryCode,
			r.Admin1.Value, r.Admin2.Value, r.Admin3.Value, r.Admin4.Value,
			strconv.FormatInt(r.Population, 10), r.Timezone,
			r.Admin1Txt.Value, r.Admin2Txt.Value, r.Admin3Txt.Value, r.Admin4Txt.Value,
		}
		buf.WriteString(strings.Join(fields, "\t"))
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// decodeFCP is encodeFCP's inverse, used by the loading_fcp state to
// deserialize an existing curated file without refetching.
func decodeFCP(data []byte) ([]model.GeonameRecord, error) {
	var out []model.GeonameRecord
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		f := strings.Split(line, "\t")
		if len(f) != fcpFieldCount {
			return nil, fmt.Errorf("worker: fcp row has %d fields, want %d", len(f), fcpFieldCount)
		}
		population, err := strconv.ParseInt(f[11], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("worker: fcp population field: %w", err)
		}
		if len(f[4]) != 1 {
			return nil, fmt.Errorf("worker: fcp feature_class field malformed: %q", f[4])
		}
		out = append(out, model.GeonameRecord{
			ID:           f[0],
			Name:         f[1],
			Latitude:     f[2],
			Longitude:    f[3],
			FeatureClass: f[4][0],
			FeatureCode:  f[5],
			CountryCode:  f[6],
			Admin1:       optionalOf(f[7]),
			Admin2:       optionalOf(f[8]),
			Admin3:       optionalOf(f[9]),
			Admin4:       optionalOf(f[10]),
			Population:   population,
			Timezone:     f[12],
			Admin1Txt:    optionalOf(f[13]),
			Admin2Txt:    optionalOf(f[14]),
			Admin3Txt:    optionalOf(f[15]),
			Admin4Txt:    optionalOf(f[16]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func optionalOf(v string) model.Optional {
	if v == "" {
		return model.Optional{}
	}
	return model.Opt(v)
}
