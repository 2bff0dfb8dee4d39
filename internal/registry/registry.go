// Package registry holds the static table of crawl targets: US states and
// the site subdomains that serve them. The table is configuration data, not
// discovered state; it is compiled in and never mutated.
package registry

import (
	"errors"

	"github.com/user/listing-harvester/internal/domain"
)

// ErrEmptyRegistry is returned when filtering leaves no targets to crawl.
// It is the one misconfiguration detected before any work begins.
var ErrEmptyRegistry = errors.New("target registry is empty")

type stateEntry struct {
	name    string
	domains []string
}

var usStates = []stateEntry{
	{"Alabama", []string{"auburn", "bham", "huntsville", "mobile", "montgomery", "tuscaloosa"}},
	{"Alaska", []string{"anchorage", "fairbanks", "juneau"}},
	{"Arizona", []string{"flagstaff", "phoenix", "prescott", "tucson", "yuma"}},
	{"Arkansas", []string{"fayar", "fortsmith", "jonesboro", "littlerock"}},
	{"California", []string{"bakersfield", "fresno", "losangeles", "orangecounty", "sacramento", "sandiego", "sfbay", "sanjose", "santabarbara", "stockton"}},
	{"Colorado", []string{"boulder", "cosprings", "denver", "fortcollins", "pueblo"}},
	{"Connecticut", []string{"hartford", "newhaven", "nwct"}},
	{"Delaware", []string{"delaware"}},
	{"District of Columbia", []string{"washingtondc"}},
	{"Florida", []string{"gainesville", "jacksonville", "miami", "orlando", "pensacola", "sarasota", "tallahassee", "tampa"}},
	{"Georgia", []string{"athensga", "atlanta", "augusta", "columbusga", "macon", "savannah"}},
	{"Hawaii", []string{"honolulu"}},
	{"Idaho", []string{"boise", "eastidaho", "twinfalls"}},
	{"Illinois", []string{"chicago", "peoria", "rockford", "springfieldil"}},
	{"Indiana", []string{"evansville", "fortwayne", "indianapolis", "southbend"}},
	{"Iowa", []string{"desmoines", "iowacity", "quadcities", "siouxcity"}},
	{"Kansas", []string{"lawrence", "topeka", "wichita"}},
	{"Kentucky", []string{"lexington", "louisville", "owensboro"}},
	{"Louisiana", []string{"batonrouge", "lafayette", "neworleans", "shreveport"}},
	{"Maine", []string{"maine"}},
	{"Maryland", []string{"annapolis", "baltimore", "frederick"}},
	{"Massachusetts", []string{"boston", "capecod", "westernmass", "worcester"}},
	{"Michigan", []string{"annarbor", "detroit", "flint", "grandrapids", "lansing"}},
	{"Minnesota", []string{"duluth", "mankato", "minneapolis", "rmn"}},
	{"Mississippi", []string{"gulfport", "jackson", "northmiss"}},
	{"Missouri", []string{"columbiamo", "joplin", "kansascity", "springfield", "stlouis"}},
	{"Montana", []string{"billings", "bozeman", "missoula"}},
	{"Nebraska", []string{"grandisland", "lincoln", "omaha"}},
	{"Nevada", []string{"elko", "lasvegas", "reno"}},
	{"New Hampshire", []string{"nh"}},
	{"New Jersey", []string{"cnj", "jerseyshore", "newjersey", "southjersey"}},
	{"New Mexico", []string{"albuquerque", "lascruces", "santafe"}},
	{"New York", []string{"albany", "buffalo", "longisland", "newyork", "rochester", "syracuse", "utica"}},
	{"North Carolina", []string{"asheville", "charlotte", "fayetteville", "greensboro", "raleigh", "wilmington"}},
	{"North Dakota", []string{"bismarck", "fargo"}},
	{"Ohio", []string{"akroncanton", "cincinnati", "cleveland", "columbus", "dayton", "toledo"}},
	{"Oklahoma", []string{"lawton", "oklahomacity", "tulsa"}},
	{"Oregon", []string{"bend", "eugene", "medford", "portland", "salem"}},
	{"Pennsylvania", []string{"erie", "harrisburg", "lancaster", "philadelphia", "pittsburgh", "scranton"}},
	{"Rhode Island", []string{"providence"}},
	{"South Carolina", []string{"charleston", "columbia", "greenville", "myrtlebeach"}},
	{"South Dakota", []string{"rapidcity", "siouxfalls"}},
	{"Tennessee", []string{"chattanooga", "knoxville", "memphis", "nashville"}},
	{"Texas", []string{"austin", "corpuschristi", "dallas", "elpaso", "houston", "lubbock", "mcallen", "sanantonio", "waco"}},
	{"Utah", []string{"logan", "ogden", "provo", "saltlakecity"}},
	{"Vermont", []string{"vermont"}},
	{"Virginia", []string{"charlottesville", "norfolk", "richmond", "roanoke"}},
	{"Washington", []string{"bellingham", "seattle", "spokane", "yakima"}},
	{"West Virginia", []string{"charlestonwv", "morgantown", "wheeling"}},
	{"Wisconsin", []string{"greenbay", "lacrosse", "madison", "milwaukee"}},
	{"Wyoming", []string{"wyoming"}},
}

// All returns every target in the registry, ordered by state then domain.
func All() []domain.CrawlTarget {
	var targets []domain.CrawlTarget
	for _, s := range usStates {
		for _, d := range s.domains {
			targets = append(targets, domain.CrawlTarget{State: s.name, Domain: d})
		}
	}
	return targets
}

// Select applies the optional domain filter and count cap to the full
// registry. An empty filter keeps all targets; a cap <= 0 means no cap.
func Select(domains []string, max int) ([]domain.CrawlTarget, error) {
	targets := All()

	if len(domains) > 0 {
		wanted := make(map[string]bool, len(domains))
		for _, d := range domains {
			wanted[d] = true
		}
		var filtered []domain.CrawlTarget
		for _, t := range targets {
			if wanted[t.Domain] {
				filtered = append(filtered, t)
			}
		}
		targets = filtered
	}

	if max > 0 && len(targets) > max {
		targets = targets[:max]
	}

	if len(targets) == 0 {
		return nil, ErrEmptyRegistry
	}
	return targets, nil
}
