// Command resolve runs the legacy sharing scope migration as a one-shot
// batch: every ALL_USERS policy is rewritten to explicit project
// permissions, orphaned project default policies are removed, and a CSV
// audit report of everything changed is written out.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "github.com/lib/pq"

	"github.com/labshare/assethub/authz"
	"github.com/labshare/assethub/internal/config"
	"github.com/labshare/assethub/lookup"
	"github.com/labshare/assethub/services"
)

func main() {
	dryRun := flag.Bool("dry-run", false, "report what would change without saving")
	flag.Parse()

	configPath := os.Getenv("ASSETHUB_CONFIG_PATH")
	if err := config.LoadConfig(configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL environment variable (or config) is required")
	}

	pg, err := sql.Open("postgres", config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	ctx := context.Background()
	_, resources, _ := authz.NewSimpleBackend(pg)
	defaults := authz.NewSimpleDefaultPolicyStore(pg)
	queue := lookup.NewUpdateQueue(pg, config.App.AuthLookupEnabled)
	sharing := services.NewSharingService(pg, queue)

	items, err := resources.ListLegacyScoped(ctx)
	if err != nil {
		log.Fatalf("Failed to list legacy scoped resources: %v", err)
	}
	log.Printf("Found %d resources with the ALL_USERS sharing scope", len(items))

	resolver := authz.NewAllUsersSharingScopeResolver()
	for _, item := range items {
		if *dryRun {
			resolver.Resolve(item)
			continue
		}
		if err := sharing.ResolveLegacyScope(ctx, resolver, item); err != nil {
			log.Fatalf("Failed to resolve %s %s: %v", item.Type, item.ID, err)
		}
	}

	if !*dryRun {
		if err := resolver.RemoveLegacyDefaultPolicies(ctx, defaults); err != nil {
			log.Fatalf("Failed to remove legacy default policies: %v", err)
		}
	}

	log.Printf("Resolved %d resources, %d required auditing", len(items), resolver.Auditor().Len())

	if resolver.Auditor().Len() > 0 {
		if err := os.MkdirAll(config.App.AuditDir, 0o755); err != nil {
			log.Fatalf("Failed to create audit directory: %v", err)
		}
		path := filepath.Join(config.App.AuditDir, fmt.Sprintf("sharing_scope_migration_%s.csv", time.Now().Format("20060102_150405")))
		if err := resolver.Auditor().Save(path); err != nil {
			log.Fatalf("Failed to write audit report: %v", err)
		}
		log.Printf("Audit report written to %s", path)
	}

	if *dryRun {
		log.Println("Dry run: no changes were saved")
	}
}
