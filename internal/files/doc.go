// Package files provides file system helpers shared by the pipeline steps.
//
// Find lists data files under the data tree by glob, with sizes and
// modification times. WriteMetadata writes the plain-text provenance
// files that accompany every cleaned or exported table.
//
// Example usage:
//
//	tables, err := files.Find(paths.DataDir, "interim/enigh/*/*.csv")
//
//	meta := files.NewMetadata("ENIGH Data Transformation").
//		Add("Source", src).
//		Add("Tidy data saved at", out)
//	err = files.WriteMetadata(metaPath, meta, time.Now())
package files
