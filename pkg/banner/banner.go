package banner

import (
	"fmt"

	"aphorist/pkg/config"
)

const banner = `
 █████╗ ██████╗ ██╗  ██╗ ██████╗ ██████╗ ██╗███████╗████████╗
██╔══██╗██╔══██╗██║  ██║██╔═══██╗██╔══██╗██║██╔════╝╚══██╔══╝
███████║██████╔╝███████║██║   ██║██████╔╝██║███████╗   ██║
██╔══██║██╔═══╝ ██╔══██║██║   ██║██╔══██╗██║╚════██║   ██║
██║  ██║██║     ██║  ██║╚██████╔╝██║  ██║██║███████║   ██║
╚═╝  ╚═╝╚═╝     ╚═╝  ╚═╝ ╚═════╝ ╚═╝  ╚═╝╚═╝╚══════╝   ╚═╝
`

// Print shows the startup summary operators read first: where we listen,
// which backend we run on, and the quick production checklist.
func Print(cfg *config.Config, version string) {
	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	fmt.Printf("Listen:   %s\n", cfg.Addr())
	fmt.Printf("Backend:  %s\n", cfg.Storage.Backend)
	if cfg.Storage.Backend == config.BackendTree {
		fmt.Printf("DB Path:  %s\n", cfg.Storage.DBPath)
	} else {
		fmt.Printf("Redis:    %s (db %d)\n", cfg.Storage.Redis.Addr, cfg.Storage.Redis.DB)
	}
	fmt.Printf("State:    %s\n", cfg.Storage.StateDir)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("POST /v1/posts            - Create a post (JSON: content, authorId)")
	fmt.Println("POST /v1/replies          - Create a reply (JSON: text, parentId, quote?)")
	fmt.Println("GET  /v1/feed?limit=<n>   - Reverse-chronological feed")
	fmt.Println("GET  /v1/posts/{id}/replies - Quote threads under a post")

	fmt.Println("\n== Production? =================================================")
	if n := len(cfg.Security.APIKeys); n > 0 {
		fmt.Printf("- API keys: OK (%d)\n", n)
	} else {
		fmt.Println("- API keys: MISSING (all requests admitted unauthenticated)")
	}
	if cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != "" {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: unconfigured")
	}
	if cfg.Sweep.Enabled {
		fmt.Printf("- Integrity sweep: enabled (cron=%s)\n", cfg.Sweep.Cron)
	} else {
		fmt.Println("- Integrity sweep: disabled")
	}

	fmt.Println("\n== Logs: =================================================")
}
