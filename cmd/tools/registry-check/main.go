// cmd/tools/registry-check/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"course-notify/internal/common/config"
	"course-notify/internal/common/database"
	"course-notify/internal/notify/store"
	"course-notify/pkg/registry"
)

func main() {
	path := flag.String("path", "configs/notification-registry.json", "Path to registry file")
	checkTemplates := flag.Bool("templates", false, "Also check rule templates against the configured Postgres")
	flag.Usage = help
	flag.Parse()

	reg, err := registry.Load(*path)
	if err != nil {
		fmt.Printf("Error loading registry: %v\n", err)
		os.Exit(1)
	}
	if err := reg.Validate(); err != nil {
		fmt.Printf("Registry validation failed:\n%v\n", err)
		os.Exit(1)
	}

	if *checkTemplates {
		if err := verifyTemplates(reg); err != nil {
			fmt.Printf("Template check failed:\n%v\n", err)
			os.Exit(1)
		}
	}

	printTables(os.Stdout, reg)
	fmt.Println("Registry validation passed.")
}

func verifyTemplates(reg *registry.Registry) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		return err
	}
	defer pg.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pg.Ping(ctx); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	return reg.CheckTemplates(ctx, store.NewTemplateStore(pg.DB))
}

func printTables(out io.Writer, reg *registry.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TABLE\tTYPE\tOFFSET\tCHANNEL\tTEMPLATE")
	for _, t := range reg.MilestoneTables {
		for _, r := range t.Rules {
			fmt.Fprintf(w, "%s\t%s\t%+d\t%s\t%s\n", t.Name, r.Type, r.OffsetDays, r.Channel, r.TemplateID)
		}
	}
	w.Flush()

	if len(reg.Aliases) == 0 {
		return
	}
	names := make([]string, 0, len(reg.Aliases))
	for name := range reg.Aliases {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tTARGET")
	for _, name := range names {
		fmt.Fprintf(w, "%s\t%s\n", name, reg.Aliases[name])
	}
	w.Flush()
}

func help() {
	fmt.Println(`
Usage: registry-check [flags]

Validates the notification registry and prints its milestone tables.

Flags:
  -path       Path to registry file (default configs/notification-registry.json)
  -templates  Also check that each rule's template exists, is active and
              matches the rule's channel (reads configs/config.yaml)

Examples:
  registry-check -path configs/notification-registry.json
  registry-check -templates
`)
}
