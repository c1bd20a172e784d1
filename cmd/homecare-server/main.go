package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/ehr/homecare/internal/domain/patient"
	"github.com/ehr/homecare/internal/domain/statement"
	"github.com/ehr/homecare/internal/platform/db"
	"github.com/ehr/homecare/internal/platform/middleware"
	"github.com/ehr/homecare/migrations"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "homecare-server",
		Short: "Home nursing care billing server",
	}
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(invoiceCmd())
	rootCmd.AddCommand(batchCmd())
	return rootCmd
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the billing API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
				count, err := m.Up(ctx, schema)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			return withMigrator(func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx, schema)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatuses(cmd.OutOrStdout(), schema, statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("schema", "public", "Target schema for migrations")
	cmd.AddCommand(statusCmd)

	return cmd
}

func withMigrator(fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	pool, err := openPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return fn(ctx, db.NewMigrator(pool, migrations.FS))
}

func printStatuses(w io.Writer, schema string, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// withApp builds the application for a one-shot command.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)
	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(ctx, a)
}

func invoiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "invoice",
		Short: "Invoice tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "next-number",
		Short: "Print the number the next invoice will get",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, a *app) error {
				n, err := a.invoicing.NextNumber(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	})

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render invoices to a PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawIDs, _ := cmd.Flags().GetStringSlice("id")
			out, _ := cmd.Flags().GetString("out")
			rawVariant, _ := cmd.Flags().GetString("variant")
			ids, err := parseIDs(rawIDs)
			if err != nil {
				return err
			}
			variant, err := statement.ParseVariant(rawVariant)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				doc, err := a.statements.Build(ctx, ids, variant)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), a.statements, doc, out)
			})
		},
	}
	renderCmd.Flags().StringSlice("id", nil, "Invoice id (repeatable)")
	renderCmd.Flags().String("out", "", "Output file or directory (defaults to the document name)")
	renderCmd.Flags().String("variant", "invoice", "Document variant: invoice or participation")
	_ = renderCmd.MarkFlagRequired("id")
	cmd.AddCommand(renderCmd)

	return cmd
}

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Invoice batch tools",
	}

	renderCmd := &cobra.Command{
		Use:   "render",
		Short: "Render the document of a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawID, _ := cmd.Flags().GetString("id")
			out, _ := cmd.Flags().GetString("out")
			store, _ := cmd.Flags().GetBool("store")
			id, err := uuid.Parse(rawID)
			if err != nil {
				return fmt.Errorf("invalid batch id %q", rawID)
			}
			return withApp(func(ctx context.Context, a *app) error {
				if store {
					b, err := a.statements.StoreBatch(ctx, id)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Stored batch document %s\n", b.FileID)
					return nil
				}
				doc, err := a.statements.BuildBatch(ctx, id)
				if err != nil {
					return err
				}
				return writeDocument(cmd.OutOrStdout(), a.statements, doc, out)
			})
		},
	}
	renderCmd.Flags().String("id", "", "Batch id")
	renderCmd.Flags().String("out", "", "Output file or directory (defaults to the document name)")
	renderCmd.Flags().Bool("store", false, "Store the document in the blob store instead of writing a file")
	_ = renderCmd.MarkFlagRequired("id")
	cmd.AddCommand(renderCmd)

	return cmd
}

func parseIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, fmt.Errorf("invalid invoice id %q", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// outputPath resolves --out: empty means the document name in the working
// directory, an existing directory receives the document name.
func outputPath(out, fileName string) string {
	if out == "" {
		return fileName
	}
	if st, err := os.Stat(out); err == nil && st.IsDir() {
		return filepath.Join(out, fileName)
	}
	return out
}

func writeDocument(stdout io.Writer, svc *statement.Service, doc *statement.Document, out string) error {
	path := outputPath(out, doc.FileName)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := svc.Write(f, doc); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Wrote %s (%d pages, total %s)\n", path, len(doc.Pages), doc.Recap.Total.StringFixed(2))
	return nil
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Env)

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.close()
	logger.Info().Msg("connected to database")

	e := newServer(a)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(a *app) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(middleware.BodyLimit(a.cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(a.cfg.RequestTimeout))

	e.GET("/health", db.HealthHandler(a.pool, db.HealthCheck{Name: "blobstore", Check: a.blobs.Ping}))
	e.GET("/metrics", echo.WrapHandler(a.metrics.Handler()))

	apiV1 := e.Group("/api/v1")
	statement.NewHandler(a.statements).RegisterRoutes(apiV1)
	patient.NewHandler(a.patients).RegisterRoutes(apiV1)
	return e
}
