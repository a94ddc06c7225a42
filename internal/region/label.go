package region

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Label returns the map label for a region name: category markers are
// abbreviated and whitespace runs collapse to a single space.
func Label(name string) string {
	s := norm.NFC.String(name)
	s = strings.Replace(s, kabupatenMarker, "Kab. ", 1)
	s = strings.Replace(s, kotaMarker, "Kota ", 1)
	return strings.Join(strings.Fields(s), " ")
}
