package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/spf13/cobra"

	"github.com/c360studio/artificer/archive"
	"github.com/c360studio/artificer/artifact"
	"github.com/c360studio/artificer/derive"
	"github.com/c360studio/artificer/jar"
	"github.com/c360studio/artificer/processor/ingester"
	"github.com/c360studio/artificer/query"
	"github.com/c360studio/artificer/query/adapter"
	"github.com/c360studio/artificer/query/eval"
)

func withApp(flags *globalFlags, fn func(ctx context.Context, app *App) error) error {
	app, err := NewApp(flags)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(context.Background(), app)
}

func queryCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Parse and run S-RAMP queries",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "parse <xpath>",
		Short: "Print the canonical form of a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := query.Parse(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), query.Format(q))
			return nil
		},
	})

	var (
		params     []string
		orderBy    string
		descending bool
		start      int
		count      int
	)
	run := &cobra.Command{
		Use:   "run <xpath>",
		Short: "Run a query against the configured store",
		Long: `Run a query against the configured store. Each ? in the query is
replaced by the next --param value. Values are strings unless prefixed
with int:, float:, date: (2006-01-02) or datetime: (RFC 3339).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *App) error {
				q, err := app.Query(ctx, args[0])
				if err != nil {
					return err
				}
				for _, p := range params {
					param, err := parseParam(p)
					if err != nil {
						return err
					}
					q.SetParam(param)
				}
				if orderBy != "" {
					q.OrderBy(orderBy)
				}
				if descending {
					q.Descending()
				}
				q.StartIndex(start).Count(count)

				set, err := q.Execute(ctx)
				if err != nil {
					return err
				}
				return printArtifacts(cmd.OutOrStdout(), set.Artifacts, set.Total)
			})
		},
	}
	run.Flags().StringArrayVarP(&params, "param", "p", nil, "Replacement parameter, in order")
	run.Flags().StringVar(&orderBy, "order-by", "", "Property to order by")
	run.Flags().BoolVar(&descending, "desc", false, "Order descending")
	run.Flags().IntVar(&start, "start", 0, "Index of the first result")
	run.Flags().IntVar(&count, "count", 0, "Maximum number of results (0 = all)")
	cmd.AddCommand(run)

	return cmd
}

// parseParam reads a typed --param value.
func parseParam(v string) (adapter.Param, error) {
	kind, value, found := strings.Cut(v, ":")
	if !found {
		return adapter.StringParam(v), nil
	}
	switch kind {
	case "int":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse int param %q: %w", value, err)
		}
		return adapter.NumberParam{Int: n}, nil
	case "float":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return nil, fmt.Errorf("parse float param %q: %w", value, err)
		}
		return adapter.NumberParam{Float: f, IsFloat: true}, nil
	case "date":
		t, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return nil, fmt.Errorf("parse date param %q: %w", value, err)
		}
		return adapter.DateParam(t), nil
	case "datetime":
		t, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return nil, fmt.Errorf("parse datetime param %q: %w", value, err)
		}
		return adapter.DateTimeParam(t), nil
	case "string":
		return adapter.StringParam(value), nil
	default:
		return adapter.StringParam(v), nil
	}
}

func printArtifacts(w io.Writer, artifacts []*artifact.Artifact, total int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UUID\tTYPE\tNAME")
	for _, a := range artifacts {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.UUID, a.Type, a.Name)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d artifacts\n", len(artifacts), total)
	return nil
}

func archiveCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect and build S-RAMP archives",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list <file>",
		Short: "List the entries of an S-RAMP archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(_ context.Context, app *App) error {
				a, err := archive.Open(args[0],
					archive.WithBaseDir(app.cfg.Archive.WorkDir),
					archive.WithLogger(app.logger))
				if err != nil {
					return err
				}
				defer a.CloseQuietly()
				return listEntries(cmd.OutOrStdout(), a)
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "pack <dir> <out>",
		Short: "Pack a directory of content and .atom files into an S-RAMP archive",
		Long: `Pack a directory into an S-RAMP archive. Each file is an entry and its
metadata is read from the file's .atom sidecar. Files without a sidecar
get metadata from their extension and content. Sidecars without content
become metadata-only entries.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(_ context.Context, app *App) error {
				a, err := archive.New(
					archive.WithBaseDir(app.cfg.Archive.WorkDir),
					archive.WithLogger(app.logger))
				if err != nil {
					return err
				}
				defer a.CloseQuietly()

				n, err := addDirectory(a, args[0])
				if err != nil {
					return err
				}
				if err := a.PackTo(args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Packed %d entries into %s\n", n, args[1])
				return nil
			})
		},
	})

	return cmd
}

func listEntries(w io.Writer, a *archive.Archive) error {
	entries, err := a.Entries()
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PATH\tTYPE\tUUID")
	for _, e := range entries {
		meta, err := e.Metadata()
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Path, meta.Type, meta.UUID)
	}
	return tw.Flush()
}

// addDirectory adds every file under dir to a, pairing content with its
// sidecar.
func addDirectory(a *archive.Archive, dir string) (int, error) {
	var added int
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if strings.HasSuffix(rel, archive.MetadataSuffix) {
			// Sidecars with content are handled with their content file
			contentPath := strings.TrimSuffix(p, archive.MetadataSuffix)
			if _, err := os.Stat(contentPath); err == nil {
				return nil
			}
			meta, err := readSidecar(p)
			if err != nil {
				return err
			}
			added++
			return a.AddEntry(strings.TrimSuffix(rel, archive.MetadataSuffix), meta, nil)
		}

		meta, err := entryMetadata(p)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		added++
		return a.AddEntry(rel, meta, f)
	})
	if err != nil {
		return 0, fmt.Errorf("add directory %s: %w", dir, err)
	}
	return added, nil
}

func readSidecar(p string) (*artifact.Artifact, error) {
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	meta, err := artifact.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("read sidecar %s: %w", p, err)
	}
	return meta, nil
}

// entryMetadata reads p's sidecar, or builds metadata from the file itself.
func entryMetadata(p string) (*artifact.Artifact, error) {
	sidecar := p + archive.MetadataSuffix
	if _, err := os.Stat(sidecar); err == nil {
		return readSidecar(sidecar)
	}

	meta := artifact.New(artifact.TypeForExtension(filepath.Ext(p)))
	meta.Name = filepath.Base(p)
	meta.EnsureUUID()
	if mt, err := mimetype.DetectFile(p); err == nil {
		meta.ContentType = mt.String()
	}
	if info, err := os.Stat(p); err == nil {
		meta.ContentSize = info.Size()
	}
	return meta, nil
}

func convertCmd(flags *globalFlags) *cobra.Command {
	var acceptAll bool
	cmd := &cobra.Command{
		Use:   "convert <jar> <out>",
		Short: "Convert a JAR, WAR or EAR into an S-RAMP archive",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *App) error {
				filter, err := app.Filter()
				if err != nil {
					return err
				}
				if acceptAll {
					filter = jar.AcceptAll
				}
				opts := []jar.Option{
					jar.WithFilter(filter),
					jar.WithBaseDir(app.cfg.Archive.WorkDir),
					jar.WithLogger(app.logger),
					jar.WithMetrics(app.metrics),
				}

				archiveType := ingester.DefaultArchiveType
				expander, err := jar.DefaultExpanders.Detect(args[0])
				switch {
				case err == nil:
					archiveType = expander.Type
					opts = append(opts, jar.WithExpander(expander), jar.WithFilter(expander.Filter(filter)))
				case !errors.Is(err, jar.ErrUnknownArchiveType):
					return err
				}

				conv, err := jar.NewConverter(args[0], opts...)
				if err != nil {
					return err
				}
				defer conv.CloseQuietly()

				out, err := conv.Convert(ctx)
				if err != nil {
					return err
				}
				defer out.CloseQuietly()

				if err := out.PackTo(args[1]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Converted %s (%s) into %s\n", args[0], archiveType, args[1])
				return listEntries(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolVar(&acceptAll, "all", false, "Archive every file, not only allow-listed ones")
	return cmd
}

func deriveCmd(flags *globalFlags) *cobra.Command {
	var (
		typeName string
		resolve  bool
	)
	cmd := &cobra.Command{
		Use:   "derive <file>",
		Short: "Derive artifacts from a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			t := artifact.TypeForExtension(filepath.Ext(args[0]))
			if typeName != "" {
				if t, err = artifact.TypeOfDocument(typeName, true); err != nil {
					return err
				}
			}

			return withApp(flags, func(ctx context.Context, app *App) error {
				opts := []derive.DeriverOption{
					derive.WithMetrics(app.metrics),
					derive.WithLogger(app.logger),
				}
				if resolve {
					store, err := app.Store(ctx)
					if err != nil {
						return err
					}
					exec := eval.NewExecutor(store, app.logger)
					opts = append(opts, derive.WithLookup(derive.ExecutorLookup(exec, adapter.WithMetrics(app.metrics))))
				}

				primary := artifact.New(t)
				primary.Name = filepath.Base(args[0])
				derived, err := derive.NewDeriver(nil, opts...).Derive(ctx, primary, content)
				if err != nil {
					return err
				}
				return printDerived(cmd.OutOrStdout(), primary, derived)
			})
		},
	}
	cmd.Flags().StringVarP(&typeName, "type", "t", "", "Artifact type of the document (default: from the extension)")
	cmd.Flags().BoolVar(&resolve, "resolve", false, "Resolve references to other documents in the configured store")
	return cmd
}

func printDerived(w io.Writer, primary *artifact.Artifact, derived []*artifact.Artifact) error {
	fmt.Fprintf(w, "%s %s (%s)\n", primary.Type, primary.Name, primary.UUID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tNAME\tRELATIONSHIPS")
	for _, a := range derived {
		var rels []string
		for _, r := range a.Relationships {
			if r.Type == artifact.RelatedDocument {
				continue
			}
			rels = append(rels, fmt.Sprintf("%s(%d)", r.Type, len(r.Targets)))
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", a.Type, a.Name, strings.Join(rels, " "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "%d derived artifacts\n", len(derived))
	return nil
}

func ingestCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file>...",
		Short: "Convert, store and derive archives into the configured store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *App) error {
				in, err := app.Ingester(ctx)
				if err != nil {
					return err
				}
				for _, file := range args {
					res, err := in.IngestFile(ctx, file)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d entries, %d derived\n",
						file, res.ArchiveType, len(res.Entries), len(res.Derived))
					for _, f := range res.Failed {
						fmt.Fprintf(cmd.OutOrStdout(), "  %s: derivation failed: %v\n", f.Entry.Name, f.Err)
					}
				}
				return nil
			})
		},
	}
}

func watchCmd(flags *globalFlags) *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch [dir]",
		Short: "Ingest archives dropped into a directory until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(flags, func(ctx context.Context, app *App) error {
				dir := app.cfg.Watch.Dir
				if len(args) == 1 {
					dir = args[0]
				}
				if dir == "" {
					return fmt.Errorf("no watch directory: pass one or set watch.dir")
				}

				// Setup signal handling
				signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
				defer signalCancel()

				in, err := app.Ingester(signalCtx)
				if err != nil {
					return err
				}
				w, err := ingester.NewWatcher(ingester.WatcherConfig{
					Dir:           dir,
					Patterns:      app.cfg.Watch.Patterns,
					DebounceDelay: app.cfg.Watch.Debounce,
					Logger:        app.logger,
				}, in)
				if err != nil {
					return err
				}

				if metricsAddr != "" {
					srv := &http.Server{Addr: metricsAddr, Handler: app.metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
					go func() {
						if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
							app.logger.Error("Metrics server failed", "error", err)
						}
					}()
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = srv.Shutdown(shutdownCtx)
					}()
					app.logger.Info("Serving metrics", "addr", metricsAddr)
				}

				if err := w.Start(signalCtx); err != nil {
					return err
				}
				go func() {
					if err := w.Scan(signalCtx); err != nil && signalCtx.Err() == nil {
						app.logger.Warn("Initial scan failed", "error", err)
					}
				}()

				// Events close once the signal context is done
				for ev := range w.Events() {
					if ev.Error != nil {
						app.logger.Warn("Watch event failed", slog.String("path", ev.Path), slog.String("error", ev.Error.Error()))
						continue
					}
					app.logger.Info("Watch event", slog.String("path", ev.Path), slog.String("op", string(ev.Operation)))
				}

				app.logger.Info("Received shutdown signal")
				return w.Stop()
			})
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}
