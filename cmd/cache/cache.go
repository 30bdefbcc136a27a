package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/tphakala/imagelens/internal/cache"
	"github.com/tphakala/imagelens/internal/conf"
	"github.com/tphakala/imagelens/internal/datastore"
)

// Command creates the cache administration command group.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the result cache",
	}

	cmd.AddCommand(
		statsCommand(settings),
		clearCommand(settings),
		pruneCommand(settings),
		removeCommand(settings),
	)
	return cmd
}

func statsCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache entry count, size and age range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), settings, func(c *cache.Cache) error {
				stats, err := c.Stats(cmd.Context())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), stats)
			})
		},
	}
}

func clearCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cached result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), settings, func(c *cache.Cache) error {
				if err := c.Clear(cmd.Context()); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
				return err
			})
		},
	}
}

func pruneCommand(settings *conf.Settings) *cobra.Command {
	var maxAge time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove cached results older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			age := maxAge
			if age == 0 {
				age = settings.Cache.MaxAge
			}
			if age <= 0 {
				return fmt.Errorf("no maximum age configured, pass --max-age")
			}
			return withCache(cmd.Context(), settings, func(c *cache.Cache) error {
				n, err := c.PruneByAge(cmd.Context(), age)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries older than %s\n", n, age)
				return err
			})
		},
	}

	cmd.Flags().DurationVar(&maxAge, "max-age", 0, "Maximum entry age, defaults to cache.maxage")
	return cmd
}

func removeCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "remove [image-hash]",
		Short: "Remove the cached result for one image hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(cmd.Context(), settings, func(c *cache.Cache) error {
				if err := c.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				return err
			})
		},
	}
}

// withCache opens the datastore and cache without age pruning so that
// inspection does not modify the table, then runs fn.
func withCache(ctx context.Context, settings *conf.Settings, fn func(*cache.Cache) error) error {
	store, err := datastore.Open(settings)
	if err != nil {
		return err
	}
	defer store.Close()

	c, err := cache.New(ctx, store, cache.Options{MaxEntries: settings.Cache.MaxEntries})
	if err != nil {
		return err
	}
	return fn(c)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
