// Package config loads, normalizes, and validates mepipe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// XNAT_PASSWORD. The Config type centralizes every knob the CLI needs: exam
// tree locations, XNAT connection settings, the vendor DICOM tag map, and
// concatenation parameters.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical tag addresses, and clear validation errors.
package config
