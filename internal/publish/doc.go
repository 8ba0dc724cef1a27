// Package publish uploads result tables to a Google Sheets spreadsheet. Each
// dataset and level gets its own tab, which is cleared and rewritten on every
// publish.
package publish
