// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/gomlx/sonar/pkg/support/fsutil"
	"github.com/pkg/errors"
)

// Params is a set of named parameters with default values. The type of the current value of a
// parameter defines how a setting for it is parsed.
type Params interface {
	// GetParam returns the current value of the parameter, and whether it exists.
	GetParam(name string) (value any, found bool)

	// SetParam sets the value of a parameter, already parsed to the type of its current value.
	SetParam(name string, value any) error

	// ParamNames lists all the parameters, in the order they should be displayed.
	ParamNames() []string
}

// ParseSettings from settings -- typically the contents of a flag set by the user.
// The settings are a list separated by ";": e.g.: "param1=value1;param2=value2;...".
//
// All the parameters "param1", "param2", etc. must be known by params, and their current
// values define the type to which the string values will be parsed to.
//
// It updates params accordingly and returns the list of parameters set, or an error in
// case a parameter is unknown or the parsing failed.
//
// For integer types, "_" is removed: it allows one to enter large numbers using it as a separator, like
// in Go. E.g.: 1_000_000 = 1000000.
//
// A setting "file:<path>" reads settings from the file, one or more per line (separated by ";"),
// and lines starting with "#" are comments.
//
// Example usage:
//
//	func main() {
//		cfg := config.Default()
//		settings := commandline.CreateSettingsFlag(cfg, "")
//		flag.Parse()
//		_, err := commandline.ParseSettings(cfg, *settings)
//		if err != nil { panic(err) }
//		fmt.Println(commandline.SprintSettings(cfg))
//		...
//	}
func ParseSettings(params Params, settings string) (paramsSet []string, err error) {
	settingsList := strings.Split(settings, ";")
	for _, setting := range settingsList {
		paramsSet, err = parseSetting(params, strings.TrimSpace(setting), paramsSet)
		if err != nil {
			return
		}
	}
	return
}

func parseSetting(params Params, setting string, paramsSet []string) (newParamsSet []string, err error) {
	newParamsSet = paramsSet
	if setting == "" {
		return
	}
	if strings.HasPrefix(setting, "file:") {
		// Read parameters from a file.
		filePath := strings.TrimPrefix(setting, "file:")
		filePath, err = fsutil.ReplaceTildeInDir(filePath)
		if err != nil {
			return
		}
		var contents []byte
		contents, err = os.ReadFile(filePath)
		if err != nil {
			err = errors.Wrapf(err, "failed to read settings from file %q", filePath)
			return
		}
		lines := strings.Split(string(contents), "\n")
		for _, line := range lines {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			for _, setting := range strings.Split(line, ";") {
				newParamsSet, err = parseSetting(params, strings.TrimSpace(setting), newParamsSet)
				if err != nil {
					return
				}
			}
		}
		return
	}

	paramName, valueStr, found := strings.Cut(setting, "=")
	if !found || paramName == "" {
		err = errors.Errorf("can't parse setting %q: each setting requires the format \"<param>=<value>\"", setting)
		return
	}
	value, found := params.GetParam(paramName)
	if !found {
		err = errors.Errorf("can't set parameter %q because it is not known, valid parameters are %q",
			paramName, params.ParamNames())
		return
	}

	// Parse value accordingly.
	switch v := value.(type) {
	case int:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case int64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case uint64:
		err = json.Unmarshal([]byte(strings.ReplaceAll(valueStr, "_", "")), &v)
		value = v
	case float64:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case bool:
		err = json.Unmarshal([]byte(valueStr), &v)
		value = v
	case string:
		value = valueStr
	case []string:
		value = strings.Split(valueStr, ",")
	case []int:
		var ints []int
		for _, str := range strings.Split(valueStr, ",") {
			var asInt int
			if err = json.Unmarshal([]byte(strings.ReplaceAll(str, "_", "")), &asInt); err != nil {
				break
			}
			ints = append(ints, asInt)
		}
		value = ints
	case []float64:
		var floats []float64
		for _, str := range strings.Split(valueStr, ",") {
			var asNum float64
			if err = json.Unmarshal([]byte(str), &asNum); err != nil {
				break
			}
			floats = append(floats, asNum)
		}
		value = floats
	default:
		err = fmt.Errorf("don't know how to parse type %T for setting parameter %q", value, setting)
	}
	if err != nil {
		err = errors.Wrapf(err, "failed to parse value %q for parameter %q (default value is %#v)", valueStr, paramName, value)
		return
	}
	if err = params.SetParam(paramName, value); err != nil {
		err = errors.WithMessagef(err, "setting %q", setting)
		return
	}
	newParamsSet = append(newParamsSet, paramName)
	return
}

// CreateSettingsFlag create a string flag with the given flagName (if empty it will be named
// "set") and with a description of the parameters currently defined in params.
//
// The flag should be created before the call to `flags.Parse()`. See example in ParseSettings.
func CreateSettingsFlag(params Params, flagName string) *string {
	if flagName == "" {
		flagName = "set"
	}
	var parts []string
	parts = append(parts,
		`Set configuration parameters. `+
			`It should be a list of elements "param=value" separated by ";". `+
			`It can also be given an entry like: "file:settings_file.txt", in `+
			`which case the file will be read and the settings will be parsed, `+
			`with new-lines working as ";" to separate settings and lines starting with "#" are considered comments. `+
			`Current available parameters that can be set:`)
	for _, name := range params.ParamNames() {
		value, _ := params.GetParam(name)
		parts = append(parts, fmt.Sprintf("%q: default value is %v", name, value))
	}
	usage := strings.Join(parts, "\n")
	var settings string
	flag.StringVar(&settings, flagName, "", usage)
	return &settings
}

// SprintSettings pretty-print the current values of all parameters into a string.
func SprintSettings(params Params) string {
	var parts []string
	for _, name := range params.ParamNames() {
		value, _ := params.GetParam(name)
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", name, value, value))
	}
	return strings.Join(parts, "\n")
}

// SprintModifiedSettings pretty-print the values of the parameters set, as returned by ParseSettings.
func SprintModifiedSettings(params Params, paramsSet []string) string {
	var parts []string
	paramsSet = slices.Clone(paramsSet)
	slices.Sort(paramsSet)
	for _, name := range slices.Compact(paramsSet) {
		value, found := params.GetParam(name)
		if !found {
			continue
		}
		parts = append(parts, fmt.Sprintf("\t%q: (%T) %v", name, value, value))
	}
	return strings.Join(parts, "\n")
}
