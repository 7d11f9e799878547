package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"quantdesk/internal/api"
	"quantdesk/internal/domain"
	"quantdesk/pkg/quantdesk"
)

const version = "0.1.0"

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: quantdesk-cli <command> [options]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  version    Print the CLI version\n")
	fmt.Fprintf(os.Stderr, "  health     Check market-data credentials\n")
	fmt.Fprintf(os.Stderr, "  modules    List indicators, strategies and intervals\n")
	fmt.Fprintf(os.Stderr, "  backtest   Run a backtest\n")
	fmt.Fprintf(os.Stderr, "  heatmap    Scan trailing price changes\n")
	fmt.Fprintf(os.Stderr, "  runs       List recorded backtests\n")
	fmt.Fprintf(os.Stderr, "\nRun 'quantdesk-cli <command> -h' for command options.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "version":
		fmt.Printf("quantdesk-cli %s\n", version)
	case "health":
		err = runHealth(ctx, args)
	case "modules":
		err = runModules(ctx, args)
	case "backtest":
		err = runBacktest(ctx, args)
	case "heatmap":
		err = runHeatmap(ctx, args)
	case "runs":
		err = runRuns(ctx, args)
	case "-h", "--help", "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

// common holds the flags every server command accepts.
type common struct {
	server    string
	apiKey    string
	apiSecret string
	jsonOut   bool
}

func newFlags(name string) (*flag.FlagSet, *common) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	c := &common{}
	server := os.Getenv("QUANTDESK_URL")
	if server == "" {
		server = "http://localhost:8080"
	}
	fs.StringVar(&c.server, "server", server, "quantdesk-server base URL ($QUANTDESK_URL)")
	fs.StringVar(&c.apiKey, "api-key", os.Getenv("APCA_API_KEY_ID"), "market-data API key (default: server's)")
	fs.StringVar(&c.apiSecret, "api-secret", os.Getenv("APCA_API_SECRET_KEY"), "market-data API secret")
	fs.BoolVar(&c.jsonOut, "json", false, "print raw JSON")
	return fs, c
}

func (c *common) client() *quantdesk.Client { return quantdesk.NewClient(c.server) }

func (c *common) creds() quantdesk.Credentials {
	return quantdesk.Credentials{APIKey: c.apiKey, APISecret: c.apiSecret}
}

func runHealth(ctx context.Context, args []string) error {
	fs, c := newFlags("health")
	fs.Parse(args)

	h, err := c.client().Health(ctx, c.creds())
	if err != nil {
		return err
	}
	if c.jsonOut {
		return printJSON(os.Stdout, h)
	}
	fmt.Printf("status: %s\ncredentials_valid: %v\n", h.Status, h.CredentialsValid)
	if h.AccountStatus != "" {
		fmt.Printf("account_status: %s\n", h.AccountStatus)
	}
	if h.Error != "" {
		fmt.Printf("error: %s\n", h.Error)
	}
	return nil
}

func runModules(ctx context.Context, args []string) error {
	fs, c := newFlags("modules")
	fs.Parse(args)

	m, err := c.client().Modules(ctx)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return printJSON(os.Stdout, m)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tDEFAULTS\tDESCRIPTION")
	for _, s := range m.Strategies {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, formatParams(s.Defaults), s.Description)
	}
	fmt.Fprintln(tw, "\nINDICATOR\tDEFAULTS\tOUTPUTS")
	for _, ind := range m.Indicators {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ind.Name, formatParams(ind.Defaults), strings.Join(ind.Outputs, ","))
	}
	fmt.Fprintf(tw, "\nintervals: %s\n", strings.Join(m.Intervals, ", "))
	return tw.Flush()
}

func runBacktest(ctx context.Context, args []string) error {
	fs, c := newFlags("backtest")
	var (
		req        quantdesk.BacktestRequest
		params     string
		indicators string
		horizon    int
		grpcAddr   string
	)
	fs.StringVar(&req.Symbol, "symbol", "SPY", "symbol or crypto pair")
	fs.StringVar(&req.Interval, "interval", "1d", "bar interval")
	fs.StringVar(&req.StartDate, "start", "", "start date YYYY-MM-DD (required)")
	fs.StringVar(&req.EndDate, "end", "", "end date YYYY-MM-DD (required)")
	fs.Float64Var(&req.StartingCapital, "capital", 10000, "starting capital")
	fs.StringVar(&req.StrategyName, "strategy", "sma_cross", "strategy name")
	fs.StringVar(&params, "params", "", "strategy parameters, e.g. fast=10,slow=30")
	fs.StringVar(&indicators, "indicators", "", "chart indicators, e.g. sma:50;rsi:14")
	fs.IntVar(&horizon, "horizon", 0, "projection horizon in bars (default max(5, n/4))")
	fs.StringVar(&grpcAddr, "grpc", "", "call the gRPC endpoint at host:port instead of HTTP")
	fs.Parse(args)

	p, err := parseParams(params)
	if err != nil {
		return err
	}
	req.StrategyParams = p
	if indicators != "" {
		req.ActiveIndicators = strings.Split(indicators, ";")
	}
	if horizon != 0 {
		req.HorizonBars = &horizon
	}
	req.Credentials = c.creds()

	var res *quantdesk.BacktestResult
	if grpcAddr != "" {
		conn, err := grpc.NewClient(grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return fmt.Errorf("connecting to %s: %w", grpcAddr, err)
		}
		defer conn.Close()
		res, err = api.NewGRPCClient(conn).Run(ctx, req)
		if err != nil {
			return err
		}
	} else if res, err = c.client().Backtest(ctx, req); err != nil {
		return err
	}

	if c.jsonOut {
		return printJSON(os.Stdout, res)
	}
	printSummary(os.Stdout, req, res)
	return nil
}

func runHeatmap(ctx context.Context, args []string) error {
	fs, c := newFlags("heatmap")
	symbols := fs.String("symbols", "", "comma-separated symbols (default: tradable universe)")
	quiet := fs.Bool("quiet", false, "suppress progress output")
	interactive := fs.Bool("tui", false, "interactive sortable view")
	fs.Parse(args)

	req := quantdesk.HeatmapRequest{Credentials: c.creds()}
	if *symbols != "" {
		req.Symbols = strings.Split(*symbols, ",")
	}
	if *interactive {
		return runHeatmapTUI(ctx, c.client(), req)
	}

	progress := func(p quantdesk.Progress) {
		if *quiet {
			return
		}
		fmt.Fprintf(os.Stderr, "\r%-12s %5.1f%%  %d/%d  batch %d/%d  eta %.0fs   ",
			p.Stage, p.ProgressPct, p.Loaded, p.Total, p.Batch, p.TotalBatches, p.ETASeconds)
		if p.Stage == "done" {
			fmt.Fprintln(os.Stderr)
		}
	}
	res, err := c.client().Heatmap(ctx, req, progress)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return printJSON(os.Stdout, res)
	}

	names := make([]string, 0, len(res.Symbols))
	for sym := range res.Symbols {
		names = append(names, sym)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tPRICE\t1D\t1W\t1M\t1Y\t")
	for _, sym := range names {
		ch := res.Symbols[sym]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t\n", sym,
			formatNull(ch.Price, ""), formatNull(ch.D1, "%"), formatNull(ch.W1, "%"), formatNull(ch.M1, "%"), formatNull(ch.Y1, "%"))
	}
	return tw.Flush()
}

func runRuns(ctx context.Context, args []string) error {
	fs, c := newFlags("runs")
	limit := fs.Int("limit", 20, "maximum runs to list")
	id := fs.String("id", "", "show one run")
	fs.Parse(args)

	if *id != "" {
		rec, err := c.client().Run(ctx, *id)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, rec)
	}

	runs, err := c.client().Runs(ctx, *limit)
	if err != nil {
		return err
	}
	if c.jsonOut {
		return printJSON(os.Stdout, runs)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSYMBOL\tINTERVAL\tSTRATEGY\tRETURN%\tSHARPE")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%.2f\n", r.ID, r.CreatedAt.Format("2006-01-02 15:04"),
			r.Symbol, r.Interval, r.Strategy, r.Performance.TotalReturnPct, r.Performance.Sharpe)
	}
	return tw.Flush()
}

func printSummary(w io.Writer, req quantdesk.BacktestRequest, res *quantdesk.BacktestResult) {
	p := res.Performance
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "%s %s %s → %s (%d bars)\n", strings.ToUpper(req.Symbol), req.StrategyName,
		req.StartDate, req.EndDate, len(res.Chart.Dates))
	fmt.Fprintf(tw, "capital\t%.2f\tend\t%.2f\n", p.StartingCapital, p.EndCapital)
	fmt.Fprintf(tw, "return\t%.2f%%\tbuy & hold\t%.2f%%\n", p.TotalReturnPct, p.BHReturnPct)
	fmt.Fprintf(tw, "annualized\t%.2f%%\tsharpe\t%.2f\n", p.AnnualizedReturnPct, p.Sharpe)
	fmt.Fprintf(tw, "max drawdown\t%.2f%%\tcalmar\t%.2f\n", p.MaxDrawdownPct, p.Calmar)
	fmt.Fprintf(tw, "trades\t%d\twin rate\t%.2f%%\n", p.TotalTrades, p.WinRatePct)
	fmt.Fprintf(tw, "profit factor\t%.2f\t\t\n", p.ProfitFactor)
	if proj := res.Equity.Projection; len(proj.Mid) > 0 {
		last := len(proj.Mid) - 1
		fmt.Fprintf(tw, "projection %s\t%.2f\t[%.2f, %.2f]\t\n", proj.Dates[last], proj.Mid[last], proj.Lower[last], proj.Upper[last])
	}
	if res.RunID != "" {
		fmt.Fprintf(tw, "run id\t%s\t\t\n", res.RunID)
	}
	tw.Flush()
}

// parseParams parses "k=v,k=v".
func parseParams(s string) (map[string]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	out := make(map[string]float64)
	for _, kv := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("parameter %q: want key=value", kv)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", kv, err)
		}
		out[strings.TrimSpace(k)] = f
	}
	return out, nil
}

func formatParams(p map[string]float64) string {
	if len(p) == 0 {
		return "-"
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + strconv.FormatFloat(p[k], 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}

func formatNull(v domain.NullFloat, suffix string) string {
	if !v.Valid {
		return "-"
	}
	return strconv.FormatFloat(v.Float64, 'f', 2, 64) + suffix
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
