package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LJTian/TickerNews/internal/app"
	"github.com/LJTian/TickerNews/internal/config"
	"github.com/LJTian/TickerNews/internal/news"
	"github.com/LJTian/TickerNews/internal/scheduler"
)

var flagFresh bool

var rootCmd = &cobra.Command{
	Use:   "collect",
	Short: "Ticker news collector",
	Long:  "collect runs a single aggregation from the command line, without starting the API server.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if err := godotenv.Load(); err != nil {
			log.Printf("no .env file loaded: %v", err)
		}
	},
	SilenceUsage: true,
}

var newsCmd = &cobra.Command{
	Use:   "news TICKER",
	Short: "Aggregate news for one ticker and print it as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := app.New(config.Load())
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cmd.Context()
		var res news.AggregateResult
		if flagFresh {
			res = a.News.Refresh(ctx, args[0])
		} else {
			res = a.News.GetNews(ctx, args[0])
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if res.Status != news.StatusSuccess {
			return fmt.Errorf("%s: %s", res.Ticker, res.Message)
		}
		return nil
	},
}

// 与 cmd/api 的定时任务相同，只执行一轮后退出
var prewarmCmd = &cobra.Command{
	Use:   "prewarm",
	Short: "Refresh the cache for every watched ticker once",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		a, err := app.New(cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := scheduler.New(cfg.CronSpec, a.News, cfg.WatchTickers, a.WatchLister(), cfg.RequestTimeout)
		if err != nil {
			return err
		}
		s.RunOnce()
		return nil
	},
}

func init() {
	newsCmd.Flags().BoolVar(&flagFresh, "fresh", false, "skip the cache and scrape every source")

	rootCmd.AddCommand(newsCmd)
	rootCmd.AddCommand(prewarmCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}
