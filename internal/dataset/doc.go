// Package dataset describes where INEGI publishes each survey archive and where
// its tables land once extracted.
//
// A Catalog is an explicit list of Source records, one per dataset, year and
// (for ENCO) month. A Manifest maps (kind, year, month, table) to the exact
// relative path of an extracted file, so loaders never probe candidate paths.
// Both can be overridden from YAML.
package dataset
