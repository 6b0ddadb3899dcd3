// SPDX-License-Identifier: MPL-2.0

// Package cueutil provides shared CUE schema validation helpers.
//
// A schema is embedded with //go:embed and user input is unified with one of
// its definitions, validated and decoded:
//
//	//go:embed config_schema.cue
//	var schema []byte
//
//	result, err := cueutil.ParseAndDecode[map[string]any](
//	    schema,
//	    fileBytes,
//	    "#Config",
//	    cueutil.WithFilename("pychunk.cue"),
//	    cueutil.WithConcrete(false),
//	)
//
// Input that arrives in another format (TOML) is decoded first and passed to
// DecodeValue so both formats are checked by the same schema.
package cueutil
