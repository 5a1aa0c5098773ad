/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// fileConfig holds the values of a TOML config file, keyed by flag name.
type fileConfig map[string]interface{}

func loadConfigFile(cmd *cobra.Command) (fileConfig, error) {
	path, err := getUserSetVar(cmd, configFileFlagName, configFileEnvKey, true)
	if err != nil {
		return nil, err
	}

	if path == "" {
		return fileConfig{}, nil
	}

	cfg := fileConfig{}

	if _, err = toml.DecodeFile(path, (*map[string]interface{})(&cfg)); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}

	for key := range cfg {
		if key == configFileFlagName || cmd.Flags().Lookup(key) == nil {
			return nil, fmt.Errorf("config file %s: unknown key %q", path, key)
		}
	}

	return cfg, nil
}

// getUserSetVar resolves a flag from the command line, then the environment, then the config file.
func (c fileConfig) getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		return getUserSetVar(cmd, flagName, envKey, isOptional)
	}

	if value, isSet := os.LookupEnv(envKey); isSet {
		return value, nil
	}

	if v, ok := c[flagName]; ok {
		switch value := v.(type) {
		case string, int64, float64, bool:
			return fmt.Sprint(value), nil
		default:
			return "", fmt.Errorf("config file: %s must be a scalar value", flagName)
		}
	}

	return getUserSetVar(cmd, flagName, envKey, isOptional)
}

func (c fileConfig) getUserSetVars(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		return getUserSetVars(cmd, flagName, envKey, isOptional)
	}

	if _, isSet := os.LookupEnv(envKey); isSet {
		return getUserSetVars(cmd, flagName, envKey, isOptional)
	}

	if v, ok := c[flagName]; ok {
		switch value := v.(type) {
		case string:
			return []string{value}, nil
		case []interface{}:
			values := make([]string, 0, len(value))

			for _, item := range value {
				s, isString := item.(string)
				if !isString {
					return nil, fmt.Errorf("config file: %s must be a list of strings", flagName)
				}

				values = append(values, s)
			}

			return values, nil
		default:
			return nil, fmt.Errorf("config file: %s must be a list of strings", flagName)
		}
	}

	return getUserSetVars(cmd, flagName, envKey, isOptional)
}

func getUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

func getUserSetVars(cmd *cobra.Command, flagName, envKey string, isOptional bool) ([]string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetStringSlice(flagName)
		if err != nil {
			return nil, fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	var values []string

	if isSet {
		values = strings.Split(value, ",")
	}

	if isOptional || isSet {
		return values, nil
	}

	return nil, fmt.Errorf(" %s not set. "+
		"It must be set via either command line or environment variable", flagName)
}
