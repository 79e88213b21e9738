package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"findash/internal/dashboard"
	"findash/internal/domain"
	"findash/internal/live"
	"findash/pkg/findash"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: findash-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version     Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  status      Show findash-server status\n")
		fmt.Fprintf(os.Stderr, "  metrics     List available metrics\n")
		fmt.Fprintf(os.Stderr, "  industries  List industries, or one industry's companies\n")
		fmt.Fprintf(os.Stderr, "  chart       Print a chart table and optionally save the image\n")
		fmt.Fprintf(os.Stderr, "  ask         Ask a question about a company's metrics\n")
		fmt.Fprintf(os.Stderr, "  charts      List saved charts\n")
		fmt.Fprintf(os.Stderr, "  export      Download a saved chart\n")
		fmt.Fprintf(os.Stderr, "  live        Follow the revenue feed over gRPC\n")
		fmt.Fprintf(os.Stderr, "\nThe server is read from FINDASH_URL (default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	serverURL := "http://localhost:8080"
	if u := os.Getenv("FINDASH_URL"); u != "" {
		serverURL = u
	}
	client := findash.NewClient(serverURL)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("findash-cli %s\n", version)
	case "status":
		err = status(ctx, client)
	case "metrics":
		err = metrics(ctx, client)
	case "industries":
		err = industries(ctx, client, os.Args[2:])
	case "chart":
		err = chartCmd(ctx, client, os.Args[2:])
	case "ask":
		err = ask(ctx, client, os.Args[2:])
	case "charts":
		err = listCharts(ctx, client)
	case "export":
		err = export(ctx, client, os.Args[2:])
	case "live":
		err = follow(ctx, os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func status(ctx context.Context, c *findash.Client) error {
	h, err := c.Health(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("status:   %s\n", h.Status)
	fmt.Printf("sessions: %d\n", h.Sessions)
	if !h.CatalogLoadedAt.IsZero() {
		fmt.Printf("catalog:  loaded %s\n", h.CatalogLoadedAt.Local().Format(time.DateTime))
	}
	if h.CatalogError != "" {
		fmt.Printf("catalog error: %s\n", h.CatalogError)
	}
	return nil
}

func metrics(ctx context.Context, c *findash.Client) error {
	ms, err := c.Metrics(ctx)
	if err != nil {
		return err
	}
	for _, m := range ms {
		fmt.Printf("%-28s %-28s %s\n", m.Name, m.Label, m.Color)
	}
	return nil
}

func industries(ctx context.Context, c *findash.Client, args []string) error {
	if len(args) > 0 {
		ind, err := c.Industry(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Printf("%s (%d companies)\n", ind.Name, len(ind.Companies))
		for _, t := range ind.Companies {
			fmt.Println("  " + t)
		}
		return nil
	}
	list, err := c.Industries(ctx)
	if err != nil {
		return err
	}
	for _, raw := range list {
		fmt.Println(string(raw))
	}
	return nil
}

// panelFlags are the filter flags shared by chart and ask.
type panelFlags struct {
	ticker, metrics, period, tab   string
	peers, peerMetric              string
	industry, industryMetrics, sel string
}

func (f *panelFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.ticker, "ticker", "", "company ticker")
	fs.StringVar(&f.metrics, "metrics", "", "comma-separated metrics")
	fs.StringVar(&f.period, "period", string(domain.DefaultPeriod), "lookback period (1Y..20Y)")
	fs.StringVar(&f.tab, "tab", string(domain.TabMetrics), "metrics, peers or industry")
	fs.StringVar(&f.peers, "peers", "", "comma-separated peers, TICKER or TICKER:Name")
	fs.StringVar(&f.peerMetric, "peer-metric", "", "metric compared across peers")
	fs.StringVar(&f.industry, "industry", "", "industry name")
	fs.StringVar(&f.industryMetrics, "industry-metrics", "", "comma-separated industry metrics (max 3)")
	fs.StringVar(&f.sel, "select", "", "ticker highlighted in the industry chart")
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (f *panelFlags) patch() (findash.Patch, error) {
	var p findash.Patch
	period, err := domain.ParsePeriod(f.period)
	if err != nil {
		return p, err
	}
	tab := domain.Tab(f.tab)
	p.Period, p.Tab = &period, &tab
	if f.ticker != "" {
		p.Ticker = &f.ticker
	}
	if m := splitList(f.metrics); m != nil {
		p.Metrics = &m
	}
	if f.peers != "" {
		var peers []domain.Company
		for _, s := range splitList(f.peers) {
			c, err := domain.ParseCompany(s)
			if err != nil {
				return p, err
			}
			peers = append(peers, c)
		}
		p.Peers = &peers
	}
	if f.peerMetric != "" {
		p.PeerMetric = &f.peerMetric
	}
	if f.industry != "" {
		p.Industry = &f.industry
	}
	if m := splitList(f.industryMetrics); m != nil {
		p.IndustryMetrics = &m
	}
	if f.sel != "" {
		p.SelectedTicker = &f.sel
	}
	return p, nil
}

// withSession runs fn against a fresh session built from the flags and
// deletes the session afterwards.
func withSession(ctx context.Context, c *findash.Client, f *panelFlags, fn func(s *findash.Session) error) error {
	p, err := f.patch()
	if err != nil {
		return err
	}
	s, err := c.CreateSession(ctx, &p)
	if err != nil {
		return err
	}
	defer c.DeleteSession(context.Background(), s.ID)
	return fn(s)
}

func printPanel(p *findash.Panel) {
	fmt.Println(p.Title)
	if p.Error != "" {
		fmt.Println("error:", p.Error)
		return
	}
	if p.Message != "" {
		fmt.Println(p.Message)
		return
	}
	for _, w := range p.Warnings {
		fmt.Println("warning:", w)
	}
	for _, line := range dashboard.TextTable(p, 14) {
		fmt.Println(line)
	}
}

func chartCmd(ctx context.Context, c *findash.Client, args []string) error {
	fs := flag.NewFlagSet("chart", flag.ExitOnError)
	var pf panelFlags
	pf.register(fs)
	out := fs.String("out", "", "write the rendered chart to this file (.png or .svg)")
	save := fs.String("save", "", "save the chart on the server under this title")
	width := fs.Int("width", 0, "image width in pixels")
	height := fs.Int("height", 0, "image height in pixels")
	fs.Parse(args)

	return withSession(ctx, c, &pf, func(s *findash.Session) error {
		if s.Panel == nil {
			return fmt.Errorf("server returned no panel")
		}
		printPanel(s.Panel)

		if *out != "" {
			format := "png"
			if strings.HasSuffix(strings.ToLower(*out), ".svg") {
				format = "svg"
			}
			img, err := c.Chart(ctx, s.ID, format, *width, *height)
			if err != nil {
				return err
			}
			if err := os.WriteFile(*out, img, 0o644); err != nil {
				return err
			}
			fmt.Printf("wrote %s (%d bytes)\n", *out, len(img))
		}
		if *save != "" {
			id, err := c.SaveChart(ctx, s.ID, *save)
			if err != nil {
				return err
			}
			fmt.Printf("saved chart %s\n", id)
		}
		return nil
	})
}

func ask(ctx context.Context, c *findash.Client, args []string) error {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	var pf panelFlags
	pf.register(fs)
	fs.Parse(args)
	question := strings.Join(fs.Args(), " ")
	if question == "" {
		return fmt.Errorf("usage: findash-cli ask -ticker T -metrics m1,m2 <question>")
	}

	return withSession(ctx, c, &pf, func(s *findash.Session) error {
		resp, err := c.Ask(ctx, s.ID, question)
		if err != nil {
			return err
		}
		if resp.Reply != nil {
			fmt.Println(resp.Reply.Content)
		}
		return nil
	})
}

func listCharts(ctx context.Context, c *findash.Client) error {
	list, err := c.Charts(ctx)
	if err != nil {
		return err
	}
	for _, m := range list {
		img := ""
		if m.HasImage {
			img = "png"
		}
		fmt.Printf("%s  %s  %-8s %-4s %-3s %s\n", m.ID, m.CreatedAt.Local().Format(time.DateTime), m.Tab, m.Period, img, m.Title)
	}
	return nil
}

func export(ctx context.Context, c *findash.Client, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	out := fs.String("out", "", "write the stored PNG to this file")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: findash-cli export [-out file.png] <chart-id>")
	}

	saved, err := c.LoadChart(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s, %s)\n", saved.Title, saved.Tab, saved.Period)
	for _, r := range saved.Rows {
		var b strings.Builder
		b.WriteString(dashboard.PadOrTrunc(r.Name, 12))
		for _, k := range r.Keys {
			b.WriteString(dashboard.PadLeft(k+"="+dashboard.FormatValue(r.Values[k]), 22))
		}
		fmt.Println(b.String())
	}

	if *out != "" {
		img, err := c.ChartImage(ctx, saved.ID)
		if err != nil {
			return err
		}
		if err := os.WriteFile(*out, img, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %s (%d bytes)\n", *out, len(img))
	}
	return nil
}

func follow(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("live", flag.ExitOnError)
	addr := fs.String("addr", "localhost:9090", "findash-server gRPC address")
	size := fs.Int("window", live.DefaultWindow, "points kept in the window")
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	w := live.NewWindow(*size)
	id, ch := w.Subscribe(64)
	defer w.Unsubscribe(id)

	errc := make(chan error, 1)
	go func() { errc <- live.NewMirror(*addr, w, logger).Sync(ctx) }()

	fmt.Printf("%-12s %14s %14s\n", "period", "revenue", "profit")
	for {
		select {
		case p := <-ch:
			fmt.Printf("%-12s %14s %14s\n", p.Period, dashboard.FormatValue(&p.Revenue), dashboard.FormatValue(&p.Profit))
		case err := <-errc:
			return err
		case <-ctx.Done():
			return nil
		}
	}
}
