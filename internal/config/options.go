package config

import "fmt"

// intOptionRange is a documented min/max for an integer gameplay
// option (spec.md §4.C examples: max_players, skill, frag_limit, …).
type intOptionRange struct {
	min, max int
}

var intOptionRanges = map[string]intOptionRange{
	"max_players":                 {1, MaxClients},
	"skill":                       {1, 5},
	"frag_limit":                  {0, 100000},
	"time_limit":                  {0, 100000},
	"friendly_damage_percentage":  {0, 100},
	"number_of_teams":             {0, 4},
}

// stringOptionChoices is a documented enumeration for a string
// gameplay option.
var stringOptionChoices = map[string][]string{
	"bfg_type":                   {"9000", "2704", "11000", "bouncing", "plasma burst"},
	"death_time_expired_action":  {"spectate", "respawn"},
}

// ValidateOptions range/enum-checks known gameplay options and ignores
// anything it does not recognize, for forward compatibility with newer
// config files (spec.md §4.C "unknown options are ignored").
func ValidateOptions(options map[string]interface{}) error {
	for name, raw := range options {
		if r, ok := intOptionRanges[name]; ok {
			n, ok := asInt(raw)
			if !ok {
				return fmt.Errorf("config: option %q must be an integer", name)
			}
			if n < r.min || n > r.max {
				return fmt.Errorf("config: option %q = %d out of range [%d, %d]", name, n, r.min, r.max)
			}
			continue
		}
		if choices, ok := stringOptionChoices[name]; ok {
			s, ok := raw.(string)
			if !ok {
				return fmt.Errorf("config: option %q must be a string", name)
			}
			if !contains(choices, s) {
				return fmt.Errorf("config: option %q = %q is not one of %v", name, s, choices)
			}
			continue
		}
		// Unrecognized option: ignored, not an error.
	}
	return nil
}

func asInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

func contains(list []string, want string) bool {
	for _, s := range list {
		if s == want {
			return true
		}
	}
	return false
}
