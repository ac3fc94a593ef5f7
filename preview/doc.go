// Package preview publishes documentation previews for pull requests.
//
// A Publisher chains the pipeline stages for one Request:
//
//  1. resolve the pull request's last commit
//  2. find the docs build check run and its workflow run id
//  3. look up the run's single artifact
//  4. download and extract it into Layout.TargetDir
//
// Each stage is logged with the pr attribute. The first failure is
// returned unchanged so callers can classify it with errors.KindOf. After
// a successful publish the retention sweep runs in the background;
// concurrent sweeps are coalesced.
//
// Example usage:
//
//	pub, err := preview.NewPublisher(preview.Config{
//	    Resolver: resolver,
//	    Fetcher:  fetcher,
//	    Sweeper:  sweeper,
//	    Layout:   preview.Layout{Root: "/var/doc-previewer", PublicURL: "https://previews.example.org/"},
//	})
//	url, err := pub.Publish(ctx, preview.Request{Owner: "acme", Repository: "site", PullRequest: 12})
package preview
