// Package replication defines the fixed placement of SukunaDB's twenty
// variables across its ten sites.
//
// Even-indexed variables are replicated at every site; odd-indexed
// variables live at exactly one home site, 1 + (i mod 10).
package replication

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	// NumSites is the number of logical data sites.
	NumSites = 10
	// NumVariables is the number of variables x1..x20.
	NumVariables = 20
)

// ParseIndex extracts the numeric index from a variable name such as "x3".
// It returns an error for anything outside x1..x20.
func ParseIndex(name string) (int, error) {
	rest, ok := strings.CutPrefix(name, "x")
	if !ok {
		return 0, fmt.Errorf("invalid variable name: %s", name)
	}
	idx, err := strconv.Atoi(rest)
	if err != nil || idx < 1 || idx > NumVariables || strconv.Itoa(idx) != rest {
		return 0, fmt.Errorf("invalid variable name: %s", name)
	}
	return idx, nil
}

// VariableName returns the canonical name of variable index i.
func VariableName(index int) string {
	return "x" + strconv.Itoa(index)
}

// InitialValue returns the value committed at logical time 0 for index i.
func InitialValue(index int) int64 {
	return int64(10 * index)
}

// IsReplicated reports whether variable index i is stored at every site.
func IsReplicated(index int) bool {
	return index%2 == 0
}

// HomeSite returns the single owner of an odd-indexed variable.
func HomeSite(index int) int {
	return 1 + index%NumSites
}

// SitesFor returns the ids of the sites hosting variable index i.
func SitesFor(index int) []int {
	if IsReplicated(index) {
		sites := make([]int, 0, NumSites)
		for id := 1; id <= NumSites; id++ {
			sites = append(sites, id)
		}
		return sites
	}
	return []int{HomeSite(index)}
}

// VariablesAt returns the variable indices hosted at a site, ascending.
func VariablesAt(siteID int) []int {
	var indices []int
	for i := 1; i <= NumVariables; i++ {
		if IsReplicated(i) || HomeSite(i) == siteID {
			indices = append(indices, i)
		}
	}
	return indices
}
