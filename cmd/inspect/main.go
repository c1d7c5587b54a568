// Offline diagnostic tool: dumps the tree backend's physical paths by
// prefix so operators can see exactly what the emulation wrote. Run it
// against a copy, not a live database directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"aphorist/pkg/commands/treestore"
	"aphorist/pkg/logger"
)

func main() {
	db := flag.String("db", "", "tree database directory to open")
	prefix := flag.String("prefix", "", "physical path prefix to list (e.g. v/, h/post)")
	values := flag.Bool("values", false, "print values alongside paths")
	max := flag.Int("max", 1000, "stop after this many paths (0 = no limit)")
	flag.Parse()

	if *db == "" {
		fmt.Fprintln(os.Stderr, "--db required")
		os.Exit(2)
	}
	logger.InitWithLevel("error")

	ctx := context.Background()
	s := treestore.New(*db)
	if err := s.Connect(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *db, err)
		os.Exit(1)
	}
	defer func() { _ = s.Disconnect(ctx) }()

	paths, err := s.ListPaths(ctx, *prefix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list %q: %v\n", *prefix, err)
		os.Exit(1)
	}

	n := 0
	for _, rp := range paths {
		if *max > 0 && n >= *max {
			fmt.Printf("... truncated at %d paths (%d total)\n", *max, len(paths))
			break
		}
		if *values {
			v := rp.Value
			if len(v) > 120 {
				v = v[:120] + "..."
			}
			fmt.Printf("%s\t%s\n", rp.Path, v)
		} else {
			fmt.Println(rp.Path)
		}
		n++
	}
	fmt.Fprintf(os.Stderr, "%d paths under %q\n", len(paths), *prefix)
}
