package main

import (
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/magiconair/properties"
	"github.com/spf13/cobra"
)

// applyConfigFile reads region settings from a properties file. Keys match the flag names, and
// flags given on the command line take precedence over the file.
//
//	min-order = 10
//	region-size = 64K
//	validate = true
func applyConfigFile(cmd *cobra.Command, path string) error {
	props, err := properties.LoadFile(path, properties.UTF8)
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	flags := cmd.Flags()
	for _, key := range props.Keys() {
		if flags.Changed(key) {
			continue
		}

		value, _ := props.Get(key)

		var err error
		switch key {
		case "min-order":
			minOrder, err = strconv.Atoi(value)
		case "max-order":
			maxOrder, err = strconv.Atoi(value)
		case "page-size", "region-size":
			err = flags.Set(key, value)
		case "validate":
			validate, err = parseBool(value)
		case "verbose":
			verbose, err = parseBool(value)
		case "json":
			jsonOut, err = parseBool(value)
		default:
			return errors.Newf("unknown config key %q", key)
		}

		if err != nil {
			return errors.Wrapf(err, "config key %s", key)
		}
	}

	return nil
}

// parseBool accepts the spellings properties files commonly use for booleans
func parseBool(value string) (bool, error) {
	switch strings.ToLower(value) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	}

	return false, errors.Newf("invalid boolean %q", value)
}
