// Command assetref rewrites stored media references into proxy URLs and
// prints direct upstream URLs for server-side jobs.
package main

import (
	"os"

	"github.com/studiocms/service/internal/assetref"
	"github.com/studiocms/service/internal/config"
)

func main() {
	cfg := config.Load()
	resolver := assetref.NewResolver(cfg.ProxyBasePath, cfg.UpstreamBaseURL, cfg.UpstreamReadKey)

	if err := newRootCmd(resolver).Execute(); err != nil {
		os.Exit(1)
	}
}
