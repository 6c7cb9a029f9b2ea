// Package files discovers dataset files (CSV and Excel workbooks) in the
// data directory.
//
// Example usage:
//
//	discovery := files.NewDiscovery(cfg.Paths.DataDir)
//	found, err := discovery.FindDatasets("")
//	if latest, ok := files.Latest(found); ok {
//	    // load latest.Path
//	}
package files
