package flags

import (
	"strings"

	"github.com/urfave/cli"
)

func eachName(longName string, fn func(string)) {
	parts := strings.Split(longName, ",")
	for _, name := range parts {
		name = strings.Trim(name, " ")
		fn(name)
	}
}

// hasName checks whether any of the comma-separated flag names is n.
func hasName(longName, n string) bool {
	var found bool
	eachName(longName, func(name string) {
		found = found || name == n
	})
	return found
}

// MarkRequired marks flags with specified names (any of their aliases) as
// required. Flag types without Required field are left as is.
func MarkRequired(flagSet []cli.Flag, names ...string) []cli.Flag {
	res := make([]cli.Flag, 0, len(flagSet))
	for _, f := range flagSet {
		for _, n := range names {
			if !hasName(f.GetName(), n) {
				continue
			}
			switch v := f.(type) {
			case cli.StringFlag:
				v.Required = true
				f = v
			case cli.IntFlag:
				v.Required = true
				f = v
			case cli.Int64Flag:
				v.Required = true
				f = v
			case cli.UintFlag:
				v.Required = true
				f = v
			case cli.BoolFlag:
				v.Required = true
				f = v
			case AddressFlag:
				v.Required = true
				f = v
			}
			break
		}
		res = append(res, f)
	}
	return res
}
