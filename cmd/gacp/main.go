package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"certline/internal/config"
	"certline/internal/db"
	"certline/internal/domain"
	"certline/internal/engine"
	"certline/internal/migrate"
	"certline/internal/repo"
	"certline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gacp",
	Short: "Certline GACP certification CLI",
	Long: `Certline tracks GACP certification applications through their workflow.
An application moves draft -> submitted -> document_review -> field inspection
-> compliance_review -> pending_approval -> approved -> certificate_issued,
with rejection and expiry as exits. Every transition is recorded in an
append-only history and the event log ('gacp log tail').`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CERTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(appCmd())
	rootCmd.AddCommand(reviewCmd())
	rootCmd.AddCommand(inspectCmd())
	rootCmd.AddCommand(reinspectCmd())
	rootCmd.AddCommand(forwardCmd())
	rootCmd.AddCommand(approveCmd())
	rootCmd.AddCommand(rejectCmd())
	rootCmd.AddCommand(expireCmd())
	rootCmd.AddCommand(certCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default certline.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")
	return cmd
}

func appCmd() *cobra.Command {
	app := &cobra.Command{
		Use:   "app",
		Short: "Manage applications",
		Long:  "Applications are certification requests from farmers. Create one as a draft, attach documents, submit it, and follow it through review, inspection, and approval.",
	}
	app.AddCommand(appCreateCmd())
	app.AddCommand(appListCmd())
	app.AddCommand(appShowCmd())
	app.AddCommand(appHistoryCmd())
	app.AddCommand(appDocumentsCmd())
	app.AddCommand(appSubmitCmd())
	return app
}

func appCreateCmd() *cobra.Command {
	var opts engine.CreateOptions
	var docs []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a draft application",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.ActorID = viper.GetString("actor-id")
			parsed, err := parseDocuments(docs)
			if err != nil {
				return err
			}
			opts.Documents = parsed
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateApplication(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&opts.FarmerID, "farmer-id", "", "farmer id")
	cmd.Flags().StringVar(&opts.FarmName, "farm-name", "", "farm name")
	cmd.Flags().StringVar(&opts.CropType, "crop-type", "", "crop type")
	cmd.Flags().StringVar(&opts.FarmAddress, "farm-address", "", "farm address")
	cmd.Flags().StringArrayVar(&docs, "doc", []string{}, "document as type=reference (repeatable)")
	_ = cmd.MarkFlagRequired("farmer-id")
	_ = cmd.MarkFlagRequired("farm-name")
	return cmd
}

func appListCmd() *cobra.Command {
	var f repo.ApplicationFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				apps, err := e.Repo.ListApplications(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(apps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Farmer", "Farm", "Status", "Certificate", "Updated"})
				for _, a := range apps {
					cert := ""
					if a.CertificateID != nil {
						cert = *a.CertificateID
					}
					tw.AppendRow(table.Row{a.ID, a.FarmerID, a.FarmName, a.Status, cert, a.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.FarmerID, "farmer-id", "", "farmer filter")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max rows")
	return cmd
}

func appShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.Repo.GetApplication(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	return cmd
}

func appHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show the transition history of an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.ListHistory(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"TS", "From", "To", "Actor", "Note"})
				for _, h := range entries {
					tw.AppendRow(table.Row{h.TS, h.FromStatus, h.ToStatus, h.ActorID, h.Note})
				}
				tw.Render()
				return nil
			})
		},
	}
	return cmd
}

func appDocumentsCmd() *cobra.Command {
	var docs []string
	cmd := &cobra.Command{
		Use:   "documents <id>",
		Short: "Replace the document set of a draft or submitted application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseDocuments(docs)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateDocuments(ctx, args[0], parsed, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringArrayVar(&docs, "doc", []string{}, "document as type=reference (repeatable)")
	_ = cmd.MarkFlagRequired("doc")
	return cmd
}

func appSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit <id>",
		Short: "Submit an application for review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.SubmitApplication(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	return cmd
}

func reviewCmd() *cobra.Command {
	rev := &cobra.Command{Use: "review", Short: "Document review"}
	rev.AddCommand(reviewStartCmd())
	rev.AddCommand(reviewCompleteCmd())
	return rev
}

func reviewStartCmd() *cobra.Command {
	var reviewerID string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start document review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reviewerID == "" {
				reviewerID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.StartDocumentReview(ctx, args[0], reviewerID)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&reviewerID, "reviewer-id", "", "reviewer id (defaults to actor)")
	return cmd
}

func reviewCompleteCmd() *cobra.Command {
	var result engine.DocumentReviewResult
	var missing []string
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Complete document review (approve, request documents, or reject)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result.MissingDocuments = missing
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteDocumentReview(ctx, args[0], result, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().BoolVar(&result.Approved, "approve", false, "documents approved, schedule inspection")
	cmd.Flags().BoolVar(&result.RequestMoreDocuments, "request-documents", false, "send back for more documents")
	cmd.Flags().StringArrayVar(&missing, "missing", []string{}, "missing document type (repeatable)")
	cmd.Flags().StringVar(&result.InspectorID, "inspector-id", "", "inspector for the scheduled inspection")
	cmd.Flags().StringVar(&result.InspectionDate, "inspection-date", "", "inspection date (RFC 3339)")
	cmd.Flags().StringVar(&result.Reason, "reason", "", "rejection reason")
	cmd.Flags().StringVar(&result.Note, "note", "", "note for the history entry")
	return cmd
}

func inspectCmd() *cobra.Command {
	insp := &cobra.Command{Use: "inspect", Short: "Field inspection"}
	insp.AddCommand(inspectStartCmd())
	insp.AddCommand(inspectCompleteCmd())
	return insp
}

func inspectStartCmd() *cobra.Command {
	var inspectorID string
	cmd := &cobra.Command{
		Use:   "start <id>",
		Short: "Start the field inspection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inspectorID == "" {
				inspectorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.StartFieldInspection(ctx, args[0], inspectorID)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&inspectorID, "inspector-id", "", "inspector id (defaults to actor)")
	return cmd
}

func inspectCompleteCmd() *cobra.Command {
	var report domain.InspectionReport
	cmd := &cobra.Command{
		Use:   "complete <id>",
		Short: "Record the inspection report and continue the workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteFieldInspection(ctx, args[0], report, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&report.InspectorID, "inspector-id", "", "inspector id (defaults to actor)")
	cmd.Flags().Float64Var(&report.Score, "score", 0, "inspection score 0..100")
	cmd.Flags().BoolVar(&report.Passed, "passed", false, "inspection passed")
	cmd.Flags().BoolVar(&report.SOPImplemented, "sop-implemented", false, "SOPs implemented on site")
	cmd.Flags().BoolVar(&report.TraceabilityReady, "traceability", false, "traceability records in place")
	cmd.Flags().BoolVar(&report.QualityControl, "quality-control", false, "quality control measures in place")
	cmd.Flags().StringVar(&report.Notes, "notes", "", "inspector notes")
	_ = cmd.MarkFlagRequired("score")
	return cmd
}

func reinspectCmd() *cobra.Command {
	var inspectorID, date string
	cmd := &cobra.Command{
		Use:   "reinspect <id>",
		Short: "Schedule a re-inspection from compliance review",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if inspectorID == "" {
				inspectorID = viper.GetString("actor-id")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RequestReinspection(ctx, args[0], inspectorID, date, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&inspectorID, "inspector-id", "", "inspector id (defaults to actor)")
	cmd.Flags().StringVar(&date, "date", "", "inspection date (RFC 3339)")
	return cmd
}

func forwardCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "forward <id>",
		Short: "Forward a compliance-review application for approval",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ForwardToApproval(ctx, args[0], viper.GetString("actor-id"), note)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note for the history entry")
	return cmd
}

func approveCmd() *cobra.Command {
	var note string
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve an application and issue its certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ApproveApplication(ctx, args[0], viper.GetString("actor-id"), note)
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "note for the history entry")
	return cmd
}

func rejectCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject an application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.RejectApplication(ctx, args[0], reason, viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "rejection reason")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func expireCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expire <id>",
		Short: "Expire an issued certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ExpireApplication(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printResult(res)
			})
		},
	}
	return cmd
}

func certCmd() *cobra.Command {
	cert := &cobra.Command{Use: "cert", Short: "Certificates"}
	cert.AddCommand(certShowCmd())
	cert.AddCommand(certVerifyCmd())
	return cert
}

func certShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <number>",
		Short: "Show a certificate by number",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.Repo.GetCertificate(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func certVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a signed certificate token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.VerifyCertificateToken(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	return cmd
}

func statsCmd() *cobra.Command {
	var f engine.StatisticsFilters
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Workflow statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				stats, err := e.WorkflowStatistics(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(stats)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Status", "Count", "Avg dwell (s)"})
				for _, s := range stats {
					tw.AppendRow(table.Row{s.Status, s.Count, fmt.Sprintf("%.1f", s.AvgDwellSecs)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.FarmerID, "farmer-id", "", "farmer filter")
	cmd.Flags().StringVar(&f.CreatedAfter, "created-after", "", "created at or after (RFC 3339)")
	cmd.Flags().StringVar(&f.CreatedBefore, "created-before", "", "created at or before (RFC 3339)")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect scheme config"}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate certline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Printf("config OK (scheme %s)\n", cfg.Scheme.ID)
			return nil
		},
	}
	return cmd
}

func logCmd() *cobra.Command {
	lg := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	lg.AddCommand(logTailCmd())
	return lg
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, applicationID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				events, err := e.Repo.LatestEvents(ctx, n, 0, applicationID, evtType)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&applicationID, "application-id", "", "application filter")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.LoadOptional(workspace)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath})
			if err != nil {
				return err
			}
			server.StartEventDispatcher(e)
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Certline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return err
	}
	return fn(ctx, engine.New(conn, cfg))
}

func parseDocuments(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	docs := make(map[string]string, len(pairs))
	for _, p := range pairs {
		docType, ref, ok := strings.Cut(p, "=")
		if !ok || docType == "" {
			return nil, fmt.Errorf("invalid --doc %q, expected type=reference", p)
		}
		docs[docType] = ref
	}
	return docs, nil
}

func printResult(res engine.Result) error {
	for _, w := range res.Warnings {
		fmt.Fprintln(os.Stderr, "warning:", w)
	}
	return printJSONOrTable(res.Application)
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
