package main

import (
	"fmt"
	"io"
	"time"

	"github.com/conceptlab/conceptci/internal/concepts"
	"github.com/conceptlab/conceptci/internal/quotes"
	"github.com/conceptlab/conceptci/internal/spinner"
	"github.com/conceptlab/conceptci/internal/statistics"
	"github.com/conceptlab/conceptci/internal/wizard"
	"github.com/spf13/cobra"
)

func newConceptCommand(app *appContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concept",
		Short: "Manage A-share concept boards",
		Long: `Search, store and quote A-share concept boards.

Constituents are found by a web-search enabled chat model and kept in the
JSON store configured by store.path (data/concepts.json by default).
Deleted concepts can be restored until they are purged. Search answers are
cached for search.cache_ttl (24h by default); refresh always searches again.
chart shows minute prices or daily bars for a single stock.`,
	}

	cmd.AddCommand(
		newConceptSearchCommand(app),
		newConceptAddCommand(app),
		newConceptListCommand(app),
		newConceptShowCommand(app),
		newConceptRefreshCommand(app),
		newConceptDeleteCommand(app),
		newConceptDeletedCommand(app),
		newConceptRestoreCommand(app),
		newConceptPurgeCommand(app),
		newConceptQuotesCommand(app),
		newConceptChartCommand(app),
		newConceptClearCacheCommand(app),
	)
	return cmd
}

// searchStocks runs a constituent search behind a spinner. Cached answers
// are used unless noCache is set; refresh always searches and updates the
// cache.
func searchStocks(cmd *cobra.Command, app *appContext, name string, noCache, refresh bool) ([]concepts.Stock, error) {
	cfg, err := app.config()
	if err != nil {
		return nil, err
	}

	stop := spinner.Start(cmd.ErrOrStderr(), "搜索 "+name)
	defer stop()

	if noCache {
		searcher, err := app.searcher(cfg)
		if err != nil {
			return nil, err
		}
		return searcher.Search(cmd.Context(), name)
	}
	searcher, err := app.cachedSearcher(cfg)
	if err != nil {
		return nil, err
	}
	if refresh {
		return searcher.Refresh(cmd.Context(), name)
	}
	return searcher.Search(cmd.Context(), name)
}

func conceptStore(app *appContext) (*concepts.FileStore, error) {
	cfg, err := app.config()
	if err != nil {
		return nil, err
	}
	return app.store(cfg), nil
}

func newConceptSearchCommand(app *appContext) *cobra.Command {
	var (
		format  string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search constituents of a concept without saving",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			stocks, err := searchStocks(cmd, app, args[0], noCache, false)
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), stocks)
			}
			printStocks(cmd.OutOrStdout(), stocks)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached search answers")
	return cmd
}

func newConceptAddCommand(app *appContext) *cobra.Command {
	var noCache bool
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Search a concept and save it to the store",
		Long: `Search the constituents of a concept and save it.

Without a name argument the name is asked for interactively.`,
		Args: inputArgs(cobra.MaximumNArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			var name string
			if len(args) == 1 {
				name = args[0]
			} else {
				var err error
				name, err = wizard.AskConceptName(cmd.InOrStdin(), cmd.ErrOrStderr())
				if err != nil {
					return inputError(err)
				}
			}
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			stocks, err := searchStocks(cmd, app, name, noCache, false)
			if err != nil {
				return err
			}
			c, err := store.Create(name, stocks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%s) with %d stocks\n", c.Name, c.ID, len(c.Stocks)) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "Ignore cached search answers")
	return cmd
}

func newConceptListCommand(app *appContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved concepts",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			list, err := store.List()
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printConcepts(cmd.OutOrStdout(), list, false)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newConceptShowCommand(app *appContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a concept and its constituents",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			c, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), c)
			}
			out := cmd.OutOrStdout()
			headerColor.Fprintf(out, "%s  %s\n", c.Name, c.ID)                                 //nolint:errcheck
			dimColor.Fprintf(out, "created %s\n\n", c.CreatedAt.Local().Format(time.DateTime)) //nolint:errcheck
			printStocks(out, c.Stocks)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newConceptRefreshCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh <id>",
		Short: "Search a saved concept again and replace its constituents",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			c, err := store.Get(args[0])
			if err != nil {
				return err
			}
			stocks, err := searchStocks(cmd, app, c.Name, false, true)
			if err != nil {
				return err
			}
			updated, err := store.UpdateStocks(c.ID, stocks)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Refreshed %s: %d -> %d stocks\n", updated.Name, len(c.Stocks), len(updated.Stocks)) //nolint:errcheck
			return nil
		},
	}
}

func newConceptDeleteCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Move a concept to the deleted list",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			if err := store.Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0]) //nolint:errcheck
			return nil
		},
	}
}

func newConceptDeletedCommand(app *appContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "deleted",
		Short: "List deleted concepts",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			list, err := store.ListDeleted()
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), list)
			}
			printConcepts(cmd.OutOrStdout(), list, true)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newConceptRestoreCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "restore <id>",
		Short: "Restore a deleted concept",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			c, err := store.Restore(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %s (%s)\n", c.Name, c.ID) //nolint:errcheck
			return nil
		},
	}
}

func newConceptPurgeCommand(app *appContext) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "purge <id>",
		Short: "Permanently remove a deleted concept",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := conceptStore(app)
			if err != nil {
				return err
			}
			if !yes {
				ok, err := wizard.Confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), fmt.Sprintf("Permanently remove %s?", args[0]))
				if err != nil {
					return inputError(err)
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted") //nolint:errcheck
					return nil
				}
			}
			if err := store.Purge(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Purged %s\n", args[0]) //nolint:errcheck
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func newConceptQuotesCommand(app *appContext) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "quotes <id>",
		Short: "Show real-time quotes and a board summary for a concept",
		Args:  inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, err := app.config()
			if err != nil {
				return err
			}
			c, err := app.store(cfg).Get(args[0])
			if err != nil {
				return err
			}

			refs := make([]quotes.Ref, len(c.Stocks))
			for i, s := range c.Stocks {
				refs[i] = quotes.Ref{Code: s.Code, Name: s.Name, Market: s.Market}
			}
			stop := spinner.Start(cmd.ErrOrStderr(), "行情 "+c.Name)
			qs, err := app.fetcher(cfg).Fetch(cmd.Context(), refs)
			stop()
			if err != nil {
				return err
			}

			summary, err := quotes.Summarize(qs, quotes.SummaryOptions{
				Iterations:      cfg.Bootstrap.Iterations,
				ConfidenceLevel: cfg.Bootstrap.Confidence,
				Rand:            statistics.NewRand(cfg.Seed()),
			})
			if err != nil {
				return err
			}

			if format == "json" {
				return writeJSON(cmd.OutOrStdout(), boardQuotes{
					Concept:   c.Name,
					ConceptID: c.ID,
					Quotes:    qs,
					Summary:   summary,
				})
			}
			out := cmd.OutOrStdout()
			printQuotes(out, qs)
			fmt.Fprintln(out) //nolint:errcheck
			printSummary(out, summary)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

type boardQuotes struct {
	Concept   string              `json:"concept"`
	ConceptID string              `json:"conceptId"`
	Quotes    []quotes.Quote      `json:"quotes"`
	Summary   quotes.BoardSummary `json:"summary"`
}

func newConceptChartCommand(app *appContext) *cobra.Command {
	var (
		daily  bool
		format string
	)
	cmd := &cobra.Command{
		Use:   "chart <code>",
		Short: "Show intraday minute prices or recent daily bars for a stock",
		Long: `Show today's minute prices for a stock, or its recent daily bars with
--daily. The code may carry an sh or sz prefix (sh600519); otherwise the
exchange is inferred from the first digit.`,
		Args: inputArgs(cobra.ExactArgs(1)),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ref, err := quotes.ParseRef(args[0])
			if err != nil {
				return inputError(err)
			}
			cfg, err := app.config()
			if err != nil {
				return err
			}
			fetcher := app.fetcher(cfg)
			out := cmd.OutOrStdout()

			stop := spinner.Start(cmd.ErrOrStderr(), "走势 "+ref.Symbol())
			if daily {
				chart, err := fetcher.Daily(cmd.Context(), ref)
				stop()
				if err != nil {
					return err
				}
				if format == "json" {
					return writeJSON(out, chart)
				}
				printDailyChart(out, chart)
				return nil
			}

			chart, err := fetcher.Minute(cmd.Context(), ref)
			stop()
			if err != nil {
				return err
			}
			if format == "json" {
				return writeJSON(out, chart)
			}
			printMinuteChart(out, chart)
			return nil
		},
	}
	cmd.Flags().BoolVar(&daily, "daily", false, "Show daily bars instead of today's minute prices")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")
	return cmd
}

func newConceptClearCacheCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-cache",
		Short: "Remove cached search answers",
		Args:  inputArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.config()
			if err != nil {
				return err
			}
			if err := app.searchCache(cfg).Clear(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", cfg.CacheDir()) //nolint:errcheck
			return nil
		},
	}
}

func checkFormat(format string) error {
	if format != "table" && format != "json" {
		return inputError(fmt.Errorf("unsupported format %q: must be table or json", format))
	}
	return nil
}

func printStocks(w io.Writer, stocks []concepts.Stock) {
	if len(stocks) == 0 {
		fmt.Fprintln(w, "No stocks") //nolint:errcheck
		return
	}
	t := newTable("CODE", "NAME", "MARKET", "REASON")
	for _, s := range stocks {
		t.add(s.Code, s.Name, s.Market, s.Reason)
	}
	t.render(w, nil)
}

func printConcepts(w io.Writer, list []concepts.Concept, deleted bool) {
	if len(list) == 0 {
		fmt.Fprintln(w, "No concepts") //nolint:errcheck
		return
	}
	when := "CREATED"
	if deleted {
		when = "DELETED"
	}
	t := newTable("ID", "NAME", "STOCKS", when).alignRight(2)
	for _, c := range list {
		ts := c.CreatedAt
		if deleted && c.DeletedAt != nil {
			ts = *c.DeletedAt
		}
		t.add(c.ID, c.Name, fmt.Sprint(len(c.Stocks)), ts.Local().Format(time.DateTime))
	}
	t.render(w, nil)
}

func printQuotes(w io.Writer, qs []quotes.Quote) {
	t := newTable("CODE", "NAME", "PRICE", "CHANGE", "CHANGE%", "STATUS").alignRight(2, 3, 4)
	for _, q := range qs {
		t.add(q.Code, q.Name, fmt.Sprintf("%.2f", q.Price), fmt.Sprintf("%+.2f", q.Change), formatPercent(q.ChangePercent), string(q.Status))
	}
	t.render(w, func(row, col int, padded string) string {
		if col < 2 || col > 4 {
			return padded
		}
		if c := directionColor(qs[row].Direction()); c != nil {
			return c.Sprint(padded)
		}
		return padded
	})
}

func printSummary(w io.Writer, s quotes.BoardSummary) {
	fmt.Fprintf(w, "%d stocks: %s up, %s down, %d flat, %d stopped, %d errors\n", //nolint:errcheck
		s.Total, upColor.Sprint(s.Up), downColor.Sprint(s.Down), s.Flat, s.Stopped, s.Errors)
	if s.CI == nil {
		fmt.Fprintln(w, "No live prices") //nolint:errcheck
		return
	}
	fmt.Fprintf(w, "Average change %s, %g%% CI [%s, %s]\n", //nolint:errcheck
		formatPercent(s.AvgChangePercent), s.CI.ConfidenceLevel*100,
		formatPercent(s.CI.Lower), formatPercent(s.CI.Upper))
}

func printMinuteChart(w io.Writer, c quotes.MinuteChart) {
	fmt.Fprintf(w, "%s  prev close %.2f", c.Code, c.PrevClose) //nolint:errcheck
	if c.DayHigh > 0 && c.DayLow > 0 {
		fmt.Fprintf(w, "  high %.2f  low %.2f", c.DayHigh, c.DayLow) //nolint:errcheck
	}
	fmt.Fprintln(w) //nolint:errcheck

	changes := make([]float64, len(c.Prices))
	t := newTable("TIME", "PRICE", "CHANGE%").alignRight(1, 2)
	for i, p := range c.Prices {
		changes[i] = (p - c.PrevClose) / c.PrevClose * 100
		t.add(c.Times[i], fmt.Sprintf("%.2f", p), formatPercent(changes[i]))
	}
	t.render(w, func(row, col int, padded string) string {
		if col == 0 {
			return padded
		}
		return colorMove(changes[row], padded)
	})
}

// printDailyChart prints one row per bar. A bar's change is against the
// previous bar's close, so the oldest bar has none.
func printDailyChart(w io.Writer, c quotes.DailyChart) {
	changes := make([]float64, len(c.Candles))
	t := newTable("DATE", "OPEN", "HIGH", "LOW", "CLOSE", "CHANGE%", "VOLUME").alignRight(1, 2, 3, 4, 5, 6)
	for i, bar := range c.Candles {
		change := ""
		if i > 0 && c.Candles[i-1].Close > 0 {
			prev := c.Candles[i-1].Close
			changes[i] = (bar.Close - prev) / prev * 100
			change = formatPercent(changes[i])
		}
		t.add(c.Dates[i],
			fmt.Sprintf("%.2f", bar.Open), fmt.Sprintf("%.2f", bar.High),
			fmt.Sprintf("%.2f", bar.Low), fmt.Sprintf("%.2f", bar.Close),
			change, fmt.Sprint(bar.Volume))
	}
	t.render(w, func(row, col int, padded string) string {
		if col != 4 && col != 5 {
			return padded
		}
		return colorMove(changes[row], padded)
	})
}
