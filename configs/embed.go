// Package configs embeds the commented configuration template written by
// `semsearch config init`.
//
// The template mirrors config.NewConfig. Edit both together; the package
// test fails when they drift apart.
package configs

import _ "embed"

// Template is the annotated default configuration, used for both the
// project file (.semsearch.yaml) and the user file.
//
//go:embed semsearch.example.yaml
var Template string
