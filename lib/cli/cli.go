// Package cli wires the server, admin and client commands into one
// cobra tree.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/NadeemAtDure/dhis2-core/lib/config"
	"github.com/NadeemAtDure/dhis2-core/lib/dhisclient"
	"github.com/NadeemAtDure/dhis2-core/lib/logging"
	"github.com/NadeemAtDure/dhis2-core/lib/metadb"
	"github.com/NadeemAtDure/dhis2-core/lib/server"
	"github.com/NadeemAtDure/dhis2-core/lib/trackerimport"
	"github.com/NadeemAtDure/dhis2-core/lib/version"
)

func postgresParamsFromEnv() metadb.Params {
	return metadb.Params{
		Postgres: metadb.PostgresConfig{
			PostgresHost: os.Getenv("PGHOST"),
			PostgresUser: os.Getenv("PGUSER"),
			PostgresDB:   os.Getenv("PGDATABASE"),
			PostgresPass: os.Getenv("PGPASSWORD"),
		},
	}
}

func loadServerConfig() (*config.Config, error) {
	configValue := os.Getenv("DHIS2_CONFIG")
	if configValue == "" {
		return nil, fmt.Errorf("DHIS2_CONFIG environment variable not set")
	}
	return config.Load(configValue)
}

func mkServerCommandGroup(ctx context.Context) *cobra.Command {
	var serverCmds = &cobra.Command{
		Use:   "server",
		Short: "Server commands",
	}

	var runServerCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadServerConfig()
			if err != nil {
				return err
			}

			params := postgresParamsFromEnv()
			if params.Postgres.PostgresDB == "" {
				params.Postgres = cfg.Postgres
			}

			db, err := metadb.Open(ctx, params)
			if err != nil {
				return err
			}
			defer db.Close()

			return server.New(cfg, db).Run(ctx)
		},
	}
	serverCmds.AddCommand(runServerCmd)

	var adminCmd = &cobra.Command{
		Use:   "admin",
		Short: "Admin commands that connect directly to the database",
	}
	serverCmds.AddCommand(adminCmd)

	var statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Get statistics on the metadata database using direct database access",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := metadb.Open(ctx, postgresParamsFromEnv())
			if err != nil {
				return err
			}
			defer db.Close()

			stats, err := db.GetStats(ctx)
			if err != nil {
				return err
			}

			fmt.Println("NumDataElements:", stats.NumDataElements)
			fmt.Println("NumDataSets:", stats.NumDataSets)
			fmt.Println("NumIndicators:", stats.NumIndicators)
			fmt.Println("NumPrograms:", stats.NumPrograms)
			fmt.Println("NumEvents:", stats.NumEvents)
			fmt.Println("NumTrackedEntities:", stats.NumTrackedEntity)
			fmt.Println("TotalStorageBytes:", stats.TotalSizeAllRelations)
			fmt.Println("TotalIndexBytes:", stats.TotalSizeAllIndexes)
			fmt.Println()

			for tableName, tableStats := range stats.TableStats {
				fmt.Println("Table:", tableName)
				fmt.Println("  pg_relation_size (bytes):", tableStats.PgRelationSize)
				fmt.Println("  pg_indexes_size (bytes):", tableStats.PgIndexesSize)
				fmt.Println("  pg_total_relation_size (bytes):", tableStats.PgTotalRelationSize)
				fmt.Println("  n_live_tup (approximate rows):", tableStats.NLiveTuples)
				fmt.Println("  n_dead_tup (approximate rows):", tableStats.NDeadTuples)
			}

			return nil
		},
	}
	adminCmd.AddCommand(statsCmd)

	return serverCmds
}

func mkClientCommandGroup(ctx context.Context) *cobra.Command {
	var clientCmds = &cobra.Command{
		Use:   "client",
		Short: "Client commands",
	}

	var serverFlag, userFlag string
	clientCmds.PersistentFlags().StringVar(&serverFlag, "server", "", "server alias or host to use")
	clientCmds.PersistentFlags().StringVar(&userFlag, "user", "", "username to authenticate as")

	getClient := func(ctx context.Context) (*dhisclient.Client, error) {
		cfg, err := dhisclient.LoadConfig(ctx)
		if err != nil {
			return nil, err
		}
		return dhisclient.New(ctx, cfg, dhisclient.Selector{
			Server: serverFlag,
			User:   userFlag,
		})
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "List config files",
		RunE: func(cmd *cobra.Command, args []string) error {
			filenames, err := dhisclient.ConfigFilenames(ctx)
			if err != nil {
				return err
			}

			for _, fn := range filenames {
				_, err := os.Stat(fn)
				if err != nil && !os.IsNotExist(err) {
					return err
				}

				status := "exists"
				if err != nil {
					status = "missing"
				}

				fmt.Printf("\t[%s]\t%s\n", status, fn)
			}

			return nil
		},
	}
	clientCmds.AddCommand(configCmd)

	var importDryRun bool
	var importStrategy string
	var importAsync bool
	importCmd := &cobra.Command{
		Use:   "import [events.json]",
		Short: "Import a tracker event payload",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}

			var payload struct {
				Events []trackerimport.Event `json:"events"`
			}
			if err := json.Unmarshal(data, &payload); err != nil {
				return fmt.Errorf("parsing %q: %w", args[0], err)
			}

			client, err := getClient(ctx)
			if err != nil {
				return err
			}

			opts := trackerimport.DefaultImportOptions()
			opts.DryRun = importDryRun
			if importStrategy != "" {
				opts.ImportStrategy = trackerimport.ImportStrategy(importStrategy)
			}

			var summary *trackerimport.ImportSummary
			if importAsync {
				jobID, err := client.PostEventsAsync(ctx, payload.Events, opts)
				if err != nil {
					return err
				}
				fmt.Println("Job:", jobID)

				report, err := client.WaitForJobReport(ctx, jobID)
				if err != nil {
					return err
				}
				if report.Error != "" {
					return fmt.Errorf("import job failed: %s", report.Error)
				}
				summary = report.Summary
			} else {
				summary, err = client.PostEventsSync(ctx, payload.Events, opts)
				if err != nil {
					return err
				}
			}

			return printJSON(summary)
		},
	}
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "validate without persisting")
	importCmd.Flags().StringVar(&importStrategy, "strategy", "", "import strategy (CREATE, UPDATE, CREATE_AND_UPDATE, DELETE)")
	importCmd.Flags().BoolVar(&importAsync, "async", false, "run the import as a job and wait for its report")
	clientCmds.AddCommand(importCmd)

	eventCmd := &cobra.Command{
		Use:   "event [uid]",
		Short: "Fetch the stored representation of one event",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}

			client, err := getClient(ctx)
			if err != nil {
				return err
			}

			event, err := client.GetEvent(ctx, args[0])
			if err != nil {
				return err
			}

			return printJSON(event)
		},
	}
	clientCmds.AddCommand(eventCmd)

	var queryOrder []string
	var queryLocale string
	var queryPage, queryPageSize int
	dataItemsCmd := &cobra.Command{
		Use:   "data-items [filter]...",
		Short: "Query data items, filters as attribute:operator:value",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient(ctx)
			if err != nil {
				return err
			}

			page, err := client.QueryDataItems(ctx, dhisclient.DataItemsQuery{
				Filters:  args,
				Order:    queryOrder,
				Locale:   queryLocale,
				Page:     queryPage,
				PageSize: queryPageSize,
				Paging:   true,
			})
			if err != nil {
				return err
			}

			return printJSON(page)
		},
	}
	dataItemsCmd.Flags().StringArrayVar(&queryOrder, "order", nil, "ordering as attribute:direction")
	dataItemsCmd.Flags().StringVar(&queryLocale, "locale", "", "locale for display names")
	dataItemsCmd.Flags().IntVar(&queryPage, "page", 0, "page number")
	dataItemsCmd.Flags().IntVar(&queryPageSize, "page-size", 0, "page size")
	clientCmds.AddCommand(dataItemsCmd)

	infoCmd := &cobra.Command{
		Use:   "info",
		Short: "Show server build and user identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := getClient(ctx)
			if err != nil {
				return err
			}

			info, err := client.GetSystemInfo(ctx)
			if err != nil {
				return err
			}

			return printJSON(info)
		},
	}
	clientCmds.AddCommand(infoCmd)

	return clientCmds
}

func printJSON(value interface{}) error {
	marshalled, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	os.Stdout.Write(marshalled)
	os.Stdout.Write([]byte("\n"))
	return nil
}

func Main() {
	logger, err := logging.Setup(false)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx := logging.NewContextWithLogger(context.Background(), logger, false)

	var rootCmd = &cobra.Command{Use: "dhis2"}

	var versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := version.GetInfo()
			if err != nil {
				return err
			}

			if info.CommitHash != "" {
				dirtyFlag := ""
				if info.DirtyCommit {
					dirtyFlag = " (dirty)"
				}
				fmt.Printf("Commit:       %s%s\n", info.CommitHash, dirtyFlag)
				fmt.Printf("Commit time:  %s\n", info.CommitTime)
			}
			if info.BinaryHash != "" {
				fmt.Printf("Binary hash:  %s\n", info.BinaryHash)
			}

			return nil
		},
	}

	rootCmd.AddCommand(mkServerCommandGroup(ctx), mkClientCommandGroup(ctx), versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
