// Package config provides configuration loading, merging, and validation
// facilities for the sync core.
//
// Configuration is assembled from multiple sources in the following priority
// order (earlier sources win, later ones only fill still-empty fields):
//  1. Environment variables (OFFSYNC_ prefix)
//  2. JSON config file
//  3. Built-in defaults
//
// The main entry point is [GetConfig].
package config
