// SPDX-License-Identifier: MPL-2.0

// Package config loads the build configuration using Viper.
//
// The project file is pychunk.cue or pychunk.toml in the project directory;
// both formats are validated against the embedded CUE schema
// (config_schema.cue). Values from a .env file and PYCHUNK_* environment
// variables override the file, e.g. PYCHUNK_OUT_DIR=build.
package config
