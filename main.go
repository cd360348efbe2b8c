package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/tom2tomtomtom/airwave/apiclient"
	"github.com/tom2tomtomtom/airwave/cache"
	"github.com/tom2tomtomtom/airwave/internal/config"
	"github.com/tom2tomtomtom/airwave/internal/logger"
)

const version = "airwave v0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCLI(ctx, os.Args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(ctx context.Context, args []string, out io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	app := newApp(cfg, out)
	return app.Run(ctx, args)
}

// session holds what every subcommand needs once the root flags are parsed
type session struct {
	api     *apiclient.Client
	fetcher *cache.Fetcher
	dir     string
	out     io.Writer
	json    bool
}

func newApp(cfg config.ClientConfig, out io.Writer) *cli.Command {
	var s session

	return &cli.Command{
		Name:    "airwave",
		Usage:   "query the AIrWAVE catalog API through a local cache",
		Version: version,
		Writer:  out,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "api-url", Usage: "API base URL", Value: cfg.APIURL},
			&cli.StringFlag{Name: "token", Usage: "bearer token", Value: cfg.Token},
			&cli.StringFlag{Name: "cache-dir", Usage: "directory for cached responses", Value: cfg.CacheDir},
			&cli.DurationFlag{Name: "cache-ttl", Usage: "how long responses stay cached", Value: cfg.CacheTTL},
			&cli.BoolFlag{Name: "no-cache", Usage: "keep cached responses in memory only"},
			&cli.BoolFlag{Name: "json", Usage: "print JSON instead of tables"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Value: "warn"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			if err := s.open(cmd, out); err != nil {
				return ctx, err
			}
			return ctx, nil
		},
		Commands: []*cli.Command{
			clientsCommand(&s),
			assetsCommand(&s),
			campaignsCommand(&s),
			cacheCommand(&s),
			serverCommand(&s),
		},
	}
}

func (s *session) open(cmd *cli.Command, out io.Writer) error {
	log := logger.NewWithWriter(os.Stderr, cmd.String("log-level"), true)

	var store cache.Store
	if cmd.Bool("no-cache") {
		store = cache.NewMemoryStore()
	} else {
		dir := cmd.String("cache-dir")
		if dir == "" {
			d, err := cache.DefaultFileDir()
			if err != nil {
				return fmt.Errorf("locate cache dir: %w", err)
			}
			dir = d
		}
		fs, err := cache.NewFileStore(dir, nil)
		if err != nil {
			return err
		}
		store = fs
		s.dir = dir
	}

	s.fetcher = cache.NewFetcher(cache.Instrument(store),
		cache.WithLogger(log),
		cache.WithDefaultTTL(cmd.Duration("cache-ttl")),
	)

	opts := []apiclient.Option{
		apiclient.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
		apiclient.WithFetcher(s.fetcher),
		apiclient.WithTTL(cmd.Duration("cache-ttl")),
		apiclient.WithLogger(log.With().Str("component", "apiclient").Logger()),
	}
	if tok := cmd.String("token"); tok != "" {
		opts = append(opts, apiclient.WithToken(tok))
	}
	api, err := apiclient.New(cmd.String("api-url"), opts...)
	if err != nil {
		return err
	}
	s.api = api
	s.out = out
	s.json = cmd.Bool("json")
	return nil
}

func (s *session) printJSON(v any) error {
	enc := json.NewEncoder(s.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s *session) table(header ...string) *tabwriter.Writer {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	return tw
}

func clientsCommand(s *session) *cli.Command {
	clientFlags := func() []cli.Flag {
		return []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "display name"},
			&cli.StringFlag{Name: "slug", Usage: "URL slug, derived from the name when empty"},
			&cli.StringFlag{Name: "industry"},
			&cli.StringFlag{Name: "social-token", Usage: "social platform access token, stored encrypted"},
		}
	}
	input := func(cmd *cli.Command) apiclient.ClientInput {
		return apiclient.ClientInput{
			Name:        cmd.String("name"),
			Slug:        cmd.String("slug"),
			Industry:    cmd.String("industry"),
			SocialToken: cmd.String("social-token"),
		}
	}

	return &cli.Command{
		Name:  "clients",
		Usage: "list and manage clients",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			clients, err := s.api.ListClients(ctx)
			if err != nil {
				return err
			}
			return s.printClients(clients...)
		},
		Commands: []*cli.Command{
			{
				Name:      "get",
				Usage:     "show one client",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "client id")
					if err != nil {
						return err
					}
					c, err := s.api.GetClient(ctx, id)
					if err != nil {
						return err
					}
					return s.printClients(*c)
				},
			},
			{
				Name:  "create",
				Usage: "create a client",
				Flags: clientFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					in := input(cmd)
					if in.Name == "" {
						return fmt.Errorf("--name is required")
					}
					c, err := s.api.CreateClient(ctx, in)
					if err != nil {
						return err
					}
					return s.printClients(*c)
				},
			},
			{
				Name:      "update",
				Usage:     "update a client",
				ArgsUsage: "<id>",
				Flags:     clientFlags(),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "client id")
					if err != nil {
						return err
					}
					c, err := s.api.UpdateClient(ctx, id, input(cmd))
					if err != nil {
						return err
					}
					return s.printClients(*c)
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a client with its assets and campaigns",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := requireArg(cmd, "client id")
					if err != nil {
						return err
					}
					if err := s.api.DeleteClient(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(s.out, "deleted client %s\n", id)
					return nil
				},
			},
		},
	}
}

func (s *session) printClients(clients ...apiclient.ClientInfo) error {
	if s.json {
		return s.printJSON(clients)
	}
	tw := s.table("ID", "NAME", "SLUG", "INDUSTRY", "SOCIAL", "UPDATED")
	for _, c := range clients {
		social := "-"
		if c.HasSocialToken {
			social = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Slug, orDash(c.Industry), social, ago(c.UpdatedAt))
	}
	return tw.Flush()
}

func assetsCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "assets",
		Usage: "list and create assets",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "client", Usage: "only assets of this client id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			assets, err := s.api.ListAssets(ctx, cmd.String("client"))
			if err != nil {
				return err
			}
			return s.printAssets(assets...)
		},
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "register an asset for a client",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "client", Usage: "owning client id", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.StringFlag{Name: "type", Usage: "image, video, audio, document or copy", Value: "image"},
					&cli.StringFlag{Name: "url", Required: true},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					a, err := s.api.CreateAsset(ctx, apiclient.AssetInput{
						ClientID: cmd.String("client"),
						Name:     cmd.String("name"),
						Type:     cmd.String("type"),
						URL:      cmd.String("url"),
					})
					if err != nil {
						return err
					}
					return s.printAssets(*a)
				},
			},
		},
	}
}

func (s *session) printAssets(assets ...apiclient.Asset) error {
	if s.json {
		return s.printJSON(assets)
	}
	tw := s.table("ID", "CLIENT", "NAME", "TYPE", "URL", "CREATED")
	for _, a := range assets {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", a.ID, a.ClientID, a.Name, a.Type, a.URL, ago(a.CreatedAt))
	}
	return tw.Flush()
}

func campaignsCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "campaigns",
		Usage: "list campaigns",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "client", Usage: "only campaigns of this client id"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			campaigns, err := s.api.ListCampaigns(ctx, cmd.String("client"))
			if err != nil {
				return err
			}
			if s.json {
				return s.printJSON(campaigns)
			}
			tw := s.table("ID", "CLIENT", "NAME", "STATUS", "STARTS")
			for _, c := range campaigns {
				starts := "-"
				if c.StartsAt != nil {
					starts = c.StartsAt.Format(time.DateOnly)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.ClientID, c.Name, c.Status, starts)
			}
			return tw.Flush()
		},
	}
}

func cacheCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "inspect the local response cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "show local cache statistics",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st := s.fetcher.Stats()
					if s.json {
						return s.printJSON(st)
					}
					where := s.dir
					if where == "" {
						where = "memory"
					}
					fmt.Fprintf(s.out, "location: %s\n", where)
					fmt.Fprintf(s.out, "entries:  %s\n", humanize.Comma(int64(st.Size)))
					return nil
				},
			},
			{
				Name:      "invalidate",
				Usage:     "drop cached responses whose key contains pattern",
				ArgsUsage: "<pattern>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pattern, err := requireArg(cmd, "pattern")
					if err != nil {
						return err
					}
					n, err := s.api.Invalidate(ctx, pattern)
					if err != nil {
						return err
					}
					fmt.Fprintf(s.out, "removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
					return nil
				},
			},
			{
				Name:  "clear",
				Usage: "drop every cached response",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := s.fetcher.Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(s.out, "local cache cleared")
					return nil
				},
			},
		},
	}
}

func serverCommand(s *session) *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "manage the API server's cache",
		Commands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "show server cache statistics",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					st, err := s.api.ServerCacheStats(ctx)
					if err != nil {
						return err
					}
					if s.json {
						return s.printJSON(st)
					}
					printStats(s.out, st)
					return nil
				},
			},
			{
				Name:      "invalidate",
				Usage:     "drop server cache entries whose key contains pattern",
				ArgsUsage: "<pattern>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pattern, err := requireArg(cmd, "pattern")
					if err != nil {
						return err
					}
					n, err := s.api.InvalidateServerCache(ctx, pattern)
					if err != nil {
						return err
					}
					fmt.Fprintf(s.out, "server removed %s %s\n", humanize.Comma(int64(n)), plural(n, "entry", "entries"))
					return nil
				},
			},
			{
				Name:  "warm",
				Usage: "refresh server cache entries ahead of traffic",
				Flags: []cli.Flag{
					&cli.StringSliceFlag{Name: "resource", Usage: "clients, assets or campaigns; all when omitted"},
					&cli.StringFlag{Name: "client", Usage: "limit assets and campaigns to one client id"},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					res, err := s.api.WarmServerCache(ctx, cmd.StringSlice("resource"), cmd.String("client"))
					if err != nil {
						return err
					}
					if s.json {
						return s.printJSON(res)
					}
					if res.TaskID != "" {
						fmt.Fprintf(s.out, "queued warm task %s on %s (%d targets)\n", res.TaskID, res.Queue, res.Targets)
						return nil
					}
					fmt.Fprintf(s.out, "warmed %d targets, %d failed\n", res.Targets, res.Errors)
					return nil
				},
			},
		},
	}
}

func printStats(w io.Writer, st cache.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := []struct {
		name  string
		value int64
	}{
		{"hits", st.Hits},
		{"misses", st.Misses},
		{"loads", st.Loads},
		{"load errors", st.LoadErrors},
		{"shared loads", st.Shared},
		{"background refreshes", st.Refreshes},
		{"invalidated", st.Invalidated},
		{"in flight", st.InFlight},
		{"entries", int64(st.Size)},
	}
	for _, r := range rows {
		fmt.Fprintf(tw, "%s:\t%s\n", r.name, humanize.Comma(r.value))
	}
	fmt.Fprintf(tw, "hit rate:\t%s%%\n", humanize.FtoaWithDigits(st.HitRate*100, 1))
	_ = tw.Flush()
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	if cmd.Args().Len() < 1 || cmd.Args().First() == "" {
		return "", fmt.Errorf("missing %s", name)
	}
	return cmd.Args().First(), nil
}

func ago(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
