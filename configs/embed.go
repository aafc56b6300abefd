// Package configs holds embedded configuration templates.
//
// Templates are embedded at build time with //go:embed so they travel
// with every distribution. Embedding applications write them out on
// first run; the tests here keep them parseable against the live
// config and authority schemas.
package configs

import _ "embed"

// ConfigTemplate is the annotated maktaba.yaml starting point. Every
// value shown matches the built-in default.
//
//go:embed maktaba.example.yaml
var ConfigTemplate string

// AuthorityTemplate is a worked authority rule table showing the three
// override levels: religion default, collection, and author.
//
//go:embed authority.example.yaml
var AuthorityTemplate string
