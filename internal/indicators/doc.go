// Package indicators downloads state-level series from the INEGI indicators API
// (BIE and BISE data banks) and flattens them into one row per observation.
package indicators
