package cmd

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/nimbus/internal/auth"
	"github.com/jmylchreest/nimbus/internal/catalog"
	"github.com/jmylchreest/nimbus/internal/database"
	"github.com/jmylchreest/nimbus/internal/repository"
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and refresh the local title catalog",
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached titles",
	RunE:  runCatalogList,
}

var catalogRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Fetch the storefront catalog and update the cache",
	RunE:  runCatalogRefresh,
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogRefreshCmd)

	catalogListCmd.Flags().String("search", "", "Filter titles by name substring")
}

func newCatalogService(logger *slog.Logger) (*catalog.Service, *database.DB, error) {
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing database: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("running migrations: %w", err)
	}
	creds := auth.NewFileSource(cfg.Auth.TokenFile, cfg.Auth.Token)
	svc := catalog.NewService(cfg.Catalog, repository.NewTitleRepository(db.DB), creds, logger)
	return svc, db, nil
}

func runCatalogList(cmd *cobra.Command, args []string) error {
	svc, db, err := newCatalogService(slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	search, _ := cmd.Flags().GetString("search")
	titles, err := svc.List(cmd.Context())
	if search != "" {
		titles, err = svc.Search(cmd.Context(), search)
	}
	if err != nil {
		return fmt.Errorf("listing titles: %w", err)
	}

	if len(titles) == 0 {
		fmt.Println("no titles cached; run 'nimbus catalog refresh'")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPUBLISHER\tMAX FPS")
	for _, t := range titles {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\n", t.RemoteID, t.Name, t.Publisher, t.MaxFrameRate)
	}
	return w.Flush()
}

func runCatalogRefresh(cmd *cobra.Command, args []string) error {
	svc, db, err := newCatalogService(slog.Default())
	if err != nil {
		return err
	}
	defer db.Close()

	count, err := svc.Refresh(cmd.Context())
	if err != nil {
		return fmt.Errorf("refreshing catalog: %w", err)
	}
	fmt.Printf("catalog refreshed: %d titles\n", count)
	return nil
}
