// gempack.dev/har - Configuration
// Copyright (C) 2023 The gempack.dev/har Authors; All Rights Reserved

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package har

import (
	"log"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

/*
	Configurable options for the har component go here.
	Everything else is derived from the file itself.

	From [har] section in the application's configuration file.
*/

type harConfig struct {
	vectorLimit     uint32 // override for gempackVectorLimit, 0 = use default
	strictPadding   bool   // parsed from har.strict_padding; not read: a padding mismatch is always rejected
	strictSpacer    bool   // parsed from har.strict_spacer; not read: the spacer check is always relaxed for zero-set records
	sl4Strict       bool   // parsed from har.sl4_strict; not read: the reconstructor skips out-of-range positions
	sparseThreshold float64
}

var config harConfig

func init() {
	config_set_defaults()
}

func config_set_defaults() {
	config.vectorLimit = gempackVectorLimit
	config.strictPadding = true
	config.strictSpacer = true
	config.sl4Strict = false
	config.sparseThreshold = 0.3
}

func ConfigureVariables() int {
	config_set_defaults()

	var errors int

	errors += config_parse_size(&config.vectorLimit, "har.vector_limit", 1, gempackVectorLimit)
	errors += config_parse_bool(&config.strictPadding, "har.strict_padding")
	errors += config_parse_bool(&config.strictSpacer, "har.strict_spacer")
	errors += config_parse_bool(&config.sl4Strict, "har.sl4_strict")
	errors += config_parse_ratio(&config.sparseThreshold, "har.sparse_threshold")

	return errors
}

func config_parse_bool(b *bool, key string) int {
	if !viper.IsSet(key) {
		return 0 // optional, default stands
	}
	*b = viper.GetBool(key)
	return 0
}

func config_parse_size(i *uint32, key string, lower uint32, upper uint32) int {
	if !viper.IsSet(key) {
		return 0
	}

	s := viper.GetString(key)
	multiplier := 1
	s = strings.ToUpper(strings.TrimSpace(s))
	if strings.HasSuffix(s, "K") {
		multiplier = 1024
		s = strings.TrimSuffix(s, "K")
	} else if strings.HasSuffix(s, "M") {
		multiplier = 1024 * 1024
		s = strings.TrimSuffix(s, "M")
	}

	size, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("cannot parse configuration entry %s: %q: %s", key, s, err)
		return 1
	}

	v := uint32(size) * uint32(multiplier)
	if v < lower || v > upper {
		log.Printf("configuration entry %s out of bounds (%d), must be between %d and %d", key, v, lower, upper)
		return 1
	}

	*i = v
	return 0
}

func config_parse_ratio(f *float64, key string) int {
	if !viper.IsSet(key) {
		return 0
	}

	v := viper.GetFloat64(key)
	if v < 0 || v > 1 {
		log.Printf("configuration entry %s out of bounds (%f), must be between 0 and 1", key, v)
		return 1
	}

	*f = v
	return 0
}

// EOF
