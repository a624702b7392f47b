package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/TobiSchelling/pulsefeed/internal/feed"
	"github.com/TobiSchelling/pulsefeed/internal/service"
	"github.com/TobiSchelling/pulsefeed/internal/trending"
)

// --- trending command ---

var (
	trendingCount       int
	trendingCategory    string
	trendingMinScore    float64
	trendingRefresh     bool
	trendingPerCategory bool
	trendingDryRun      bool
)

var trendingCmd = &cobra.Command{
	Use:   "trending",
	Short: "Show trending topics, optionally recomputing them first",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		svc := newService(db)

		if trendingRefresh || trendingDryRun {
			result, err := svc.RefreshTrending(ctx, service.RefreshOptions{
				Category:    trendingCategory,
				PerCategory: trendingPerCategory || cfg.Scoring.PerCategory,
				DryRun:      trendingDryRun,
			})
			if err != nil {
				return err
			}
			fmt.Printf("Scored %d interactions (%s to %s) into %d topics",
				result.Samples, result.WindowStart.Local().Format("Jan 2 15:04"),
				result.WindowEnd.Local().Format("Jan 2 15:04"), len(result.Topics))
			if result.Pruned > 0 {
				fmt.Printf(", pruned %d stale", result.Pruned)
			}
			if result.Superseded > 0 {
				fmt.Printf(", dropped %d no longer trending", result.Superseded)
			}
			fmt.Println()

			if trendingDryRun {
				fmt.Println("[dry-run] Nothing was stored.")
				printTopics(result.Topics, trendingCount)
				return nil
			}
		}

		topics, err := svc.Trending(ctx, trendingCategory, trendingMinScore, trendingCount)
		if err != nil {
			return err
		}
		if len(topics) == 0 {
			fmt.Println("No trending topics yet. Record some interactions, then run: pulsefeed trending --refresh")
			return nil
		}
		printTopics(topics, trendingCount)
		return nil
	},
}

func init() {
	trendingCmd.Flags().IntVarP(&trendingCount, "count", "n", 0, "Number of topics to show (default: max_trending_topics)")
	trendingCmd.Flags().StringVar(&trendingCategory, "category", "", "Only show topics in this category")
	trendingCmd.Flags().Float64Var(&trendingMinScore, "min-score", 0, "Minimum trend score")
	trendingCmd.Flags().BoolVar(&trendingRefresh, "refresh", false, "Recompute trending topics before listing")
	trendingCmd.Flags().BoolVar(&trendingPerCategory, "per-category", false, "Rank topics within each category")
	trendingCmd.Flags().BoolVar(&trendingDryRun, "dry-run", false, "Recompute and print without storing")
}

func printTopics(topics []trending.TrendingTopic, limit int) {
	if limit > 0 && len(topics) > limit {
		topics = topics[:limit]
	}
	fmt.Printf("\n%-4s %-30s %-16s %10s %8s\n", "#", "Topic", "Category", "Score", "Events")
	for i, t := range topics {
		fmt.Printf("%-4d %-30s %-16s %10.2f %8d\n", i+1, truncate(t.Topic, 30), truncate(t.Category, 16), t.TrendScore, t.TotalInteractions)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// --- related command ---

var (
	relatedCategory string
	relatedLimit    int
)

var relatedCmd = &cobra.Command{
	Use:   "related <topic>",
	Short: "List recent articles about a topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		articles, err := newService(db).RelatedArticles(ctx, args[0], relatedCategory, relatedLimit)
		if err != nil {
			return err
		}
		if len(articles) == 0 {
			fmt.Printf("No articles found for %q\n", args[0])
			return nil
		}
		for _, a := range articles {
			fmt.Printf("  [%d] %s (%s, %s)\n", a.ArticleID, a.Title, a.Category, a.PublishedAt.Local().Format("Jan 2 15:04"))
			if a.URL != "" {
				fmt.Printf("        %s\n", a.URL)
			}
		}
		return nil
	},
}

func init() {
	relatedCmd.Flags().StringVar(&relatedCategory, "category", "", "Restrict to one category")
	relatedCmd.Flags().IntVarP(&relatedLimit, "limit", "n", 10, "Maximum number of articles")
}

// --- prune command ---

var pruneMaxAge float64

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete trending topics not refreshed recently",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		maxAge := cfg.Scoring.RetentionHours
		if cmd.Flags().Changed("max-age-hours") {
			maxAge = pruneMaxAge
		}
		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		removed, err := newService(db).Prune(ctx, maxAge)
		if err != nil {
			return err
		}
		fmt.Printf("Pruned %d trending topics older than %gh\n", removed, maxAge)
		return nil
	},
}

func init() {
	pruneCmd.Flags().Float64Var(&pruneMaxAge, "max-age-hours", 0, "Retention in hours (default: scoring.retention_hours)")
}

// --- feed command ---

var feedExclude []string

var feedCmd = &cobra.Command{
	Use:   "feed <user>",
	Short: "Show a user's personalized feed",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		items, err := newService(db).Feed(ctx, args[0], feedExclude)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			fmt.Println("No articles available. Run: pulsefeed collect")
			return nil
		}
		fmt.Printf("%-4s %-7s %-50s %-14s %6s %6s %6s %6s\n", "#", "ID", "Title", "Category", "Score", "Pers", "Fresh", "Pop")
		for i, s := range items {
			fmt.Printf("%-4d %-7d %-50s %-14s %6.3f %6.2f %6.2f %6.2f\n",
				i+1, s.ArticleID, truncate(s.Title, 50), truncate(s.Category, 14),
				s.Composite, s.Personalization, s.Freshness, s.Popularity)
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().StringSliceVar(&feedExclude, "exclude", nil, "Categories to leave out of this request")
}

// --- interact command ---

var interactCmd = &cobra.Command{
	Use:   "interact <user> <article-id> <like|comment|view>",
	Short: "Record an engagement event",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		articleID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid article ID: %s", args[1])
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		if err := newService(db).RecordInteraction(ctx, args[0], articleID, args[2]); err != nil {
			return err
		}
		fmt.Printf("Recorded %s on article %d for %s\n", strings.ToLower(args[2]), articleID, args[0])
		return nil
	},
}

// --- feed-config command ---

var feedConfigCmd = &cobra.Command{
	Use:   "feed-config",
	Short: "Show or change a user's feed configuration",
}

var feedConfigShowCmd = &cobra.Command{
	Use:   "show <user>",
	Short: "Print a user's feed configuration as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()

		fc, err := newService(db).FeedConfiguration(ctx, args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(fc)
	},
}

var (
	setPersonalization float64
	setFreshness       float64
	setPopularity      float64
	setSerendipity     float64
	setMaxArticles     int
	setPreferred       []string
	setExcluded        []string
)

var feedConfigSetCmd = &cobra.Command{
	Use:   "set <user>",
	Short: "Update fields of a user's feed configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		ctx, cancel := withTimeout(cmd.Context())
		defer cancel()
		svc := newService(db)

		fc, err := svc.FeedConfiguration(ctx, args[0])
		if err != nil {
			return err
		}
		applyFeedFlags(cmd, &fc)
		if err := svc.UpdateFeedConfiguration(ctx, fc); err != nil {
			return err
		}
		fmt.Printf("Updated feed configuration for %s\n", args[0])
		return nil
	},
}

func applyFeedFlags(cmd *cobra.Command, fc *feed.Configuration) {
	flags := cmd.Flags()
	if flags.Changed("personalization") {
		fc.PersonalizationWeight = setPersonalization
	}
	if flags.Changed("freshness") {
		fc.FreshnessWeight = setFreshness
	}
	if flags.Changed("popularity") {
		fc.PopularityWeight = setPopularity
	}
	if flags.Changed("serendipity") {
		fc.SerendipityWeight = setSerendipity
	}
	if flags.Changed("max-articles") {
		fc.MaxArticlesPerFeed = setMaxArticles
	}
	if flags.Changed("preferred") {
		fc.PreferredCategories = setPreferred
	}
	if flags.Changed("excluded") {
		fc.ExcludedCategories = setExcluded
	}
}

func init() {
	f := feedConfigSetCmd.Flags()
	f.Float64Var(&setPersonalization, "personalization", 0, "Personalization weight")
	f.Float64Var(&setFreshness, "freshness", 0, "Freshness weight")
	f.Float64Var(&setPopularity, "popularity", 0, "Popularity weight")
	f.Float64Var(&setSerendipity, "serendipity", 0, "Serendipity weight")
	f.IntVar(&setMaxArticles, "max-articles", 0, "Maximum articles per feed")
	f.StringSliceVar(&setPreferred, "preferred", nil, "Preferred categories")
	f.StringSliceVar(&setExcluded, "excluded", nil, "Excluded categories")

	feedConfigCmd.AddCommand(feedConfigShowCmd)
	feedConfigCmd.AddCommand(feedConfigSetCmd)
}
