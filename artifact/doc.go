// Package artifact publishes documentation artifacts to disk and expires
// them.
//
// Core types:
//   - Fetcher: downloads a zip artifact and swaps its contents into a preview directory
//   - Sweeper: deletes preview directories older than the retention window
//   - Locker: per-directory mutexes shared by both so a sweep never deletes
//     a preview that is being replaced
//
// Previews live at <root>/<owner>/<repository>/<pr>. Only leaves whose name
// is an unsigned integer are managed; everything else under root is left
// alone.
//
// Example usage:
//
//	locker := &artifact.Locker{}
//	fetcher := artifact.NewFetcher(artifact.FetcherConfig{
//	    Client:  httpClient,
//	    MaxSize: 500 << 20,
//	    Locker:  locker,
//	})
//	_, err := fetcher.Fetch(ctx, downloadURL, "/var/doc-previewer/acme/site/12")
//
//	sweeper := artifact.NewSweeper(artifact.SweepConfig{
//	    Root:          "/var/doc-previewer",
//	    RetentionDays: 14,
//	    Locker:        locker,
//	})
//	deleted, err := sweeper.Sweep(ctx)
package artifact
