// Package region classifies countries into the Sub-Saharan Africa regional
// groupings used by the aggregates: AFE, AFW and SSA.
package region

import (
	"io"
	"os"
	"sort"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/drm-lab/urbanrisk/internal/apperr"
)

// Region is a regional aggregate code.
type Region string

const (
	AFE Region = "AFE"
	AFW Region = "AFW"
	SSA Region = "SSA"
)

// All lists the aggregate regions in output order.
var All = []Region{AFE, AFW, SSA}

var regionNames = map[Region]string{
	AFE: "Africa Eastern and Southern",
	AFW: "Africa Western and Central",
	SSA: "Sub-Saharan Africa",
}

// Name returns the display name of the region.
func (r Region) Name() string { return regionNames[r] }

// IsRegion reports whether code is one of the aggregate region codes.
func IsRegion(code string) bool {
	_, ok := regionNames[Region(NormalizeISO3(code))]
	return ok
}

// Country is one row of the World Bank classification.
type Country struct {
	ISO3          string `csv:"ISO3"`
	Name          string `csv:"Economy"`
	RegionCode    string `csv:"Region Code"`
	SubregionCode string `csv:"Subregion Code"`
}

// NormalizeISO3 trims and upper-cases a country code.
func NormalizeISO3(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Classifier maps ISO3 codes to regions. It is immutable after construction.
type Classifier struct {
	countries map[string]Country
	members   map[Region][]string
	memberOf  map[string][]Region
}

// NewClassifier builds a classifier from classification rows. AFE and AFW
// come from the subregion code; SSA is their union plus any row whose region
// code is SSA.
func NewClassifier(rows []Country) *Classifier {
	c := &Classifier{
		countries: make(map[string]Country, len(rows)),
		members:   make(map[Region][]string),
		memberOf:  make(map[string][]Region),
	}
	add := func(r Region, iso string) {
		for _, existing := range c.memberOf[iso] {
			if existing == r {
				return
			}
		}
		c.members[r] = append(c.members[r], iso)
		c.memberOf[iso] = append(c.memberOf[iso], r)
	}
	for _, row := range rows {
		row.ISO3 = NormalizeISO3(row.ISO3)
		row.Name = strings.TrimSpace(row.Name)
		row.RegionCode = NormalizeISO3(row.RegionCode)
		row.SubregionCode = NormalizeISO3(row.SubregionCode)
		if row.ISO3 == "" {
			continue
		}
		c.countries[row.ISO3] = row

		sub := Region(row.SubregionCode)
		if sub == AFE || sub == AFW {
			add(sub, row.ISO3)
			add(SSA, row.ISO3)
		}
		if Region(row.RegionCode) == SSA {
			add(SSA, row.ISO3)
		}
	}
	return c
}

// Parse reads a classification CSV.
func Parse(r io.Reader) (*Classifier, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "region: read classification")
	}
	var rows []Country
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, apperr.Wrap(err, apperr.KindSchema, "invalid country classification file")
	}
	return NewClassifier(rows), nil
}

// Load reads the classification file at path.
func Load(path string) (*Classifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, apperr.MissingFile("Country classification", path, err)
	}
	defer f.Close() //nolint:errcheck
	return Parse(f)
}

// Members returns the ISO3 codes belonging to a region, in file order.
func (c *Classifier) Members(r Region) []string {
	return append([]string(nil), c.members[r]...)
}

// RegionsOf returns the regions a country belongs to.
func (c *Classifier) RegionsOf(iso3 string) []Region {
	return c.memberOf[NormalizeISO3(iso3)]
}

// InSSA reports whether a country is Sub-Saharan.
func (c *Classifier) InSSA(iso3 string) bool {
	for _, r := range c.RegionsOf(iso3) {
		if r == SSA {
			return true
		}
	}
	return false
}

// Country looks up a classification row.
func (c *Classifier) Country(iso3 string) (Country, bool) {
	row, ok := c.countries[NormalizeISO3(iso3)]
	return row, ok
}

// Name returns the display name of a country or region code, or the code
// itself when it is unknown.
func (c *Classifier) Name(code string) string {
	code = NormalizeISO3(code)
	if n, ok := regionNames[Region(code)]; ok {
		return n
	}
	if row, ok := c.countries[code]; ok && row.Name != "" {
		return row.Name
	}
	return code
}

// SSACountries returns Sub-Saharan countries sorted by ISO3.
func (c *Classifier) SSACountries() []Country {
	out := make([]Country, 0, len(c.members[SSA]))
	for _, iso := range c.members[SSA] {
		out = append(out, c.countries[iso])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ISO3 < out[j].ISO3 })
	return out
}
