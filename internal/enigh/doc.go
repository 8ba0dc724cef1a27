// Package enigh cleans the ENIGH household income table (concentradohogar) and
// turns it into weighted observations for the inequality calculator.
//
// Raw files are located through the dataset manifest, validated, reduced to the
// columns the analysis needs and written as a tidy interim CSV per survey year.
package enigh
