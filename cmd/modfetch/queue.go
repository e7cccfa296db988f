package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datallboy/modfetch/internal/api"
	"github.com/datallboy/modfetch/internal/api/controllers"
)

// newAPIClient points at the server configured under api.url.
func newAPIClient() (*api.Client, error) {
	cfg, log, err := setup(false)
	if err != nil {
		return nil, err
	}
	return api.NewClient(cfg.API.URL, log), nil
}

func newAddCmd() *cobra.Command {
	var (
		flags      transferFlags
		priority   int
		maxRetries int
	)

	cmd := &cobra.Command{
		Use:   "add URL",
		Short: "Queue a download on the running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			opts, err := flags.options()
			if err != nil {
				return err
			}

			id, err := client.Enqueue(cmd.Context(), controllers.EnqueueRequest{
				URL:        args[0],
				OutputPath: flags.output,
				Priority:   priority,
				MaxRetries: maxRetries,
				Options:    opts,
			})
			if err != nil {
				return err
			}

			fmt.Println(id)
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "lower runs sooner")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 0, "attempts before giving up (default from server config)")
	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			items, err := client.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRI\tPROGRESS\tRETRIES\tQUEUED\tFILE")
			for _, it := range items {
				progress := humanize.Bytes(uint64(it.BytesDownloaded))
				if it.TotalBytes > 0 {
					progress += " / " + humanize.Bytes(uint64(it.TotalBytes))
				}
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d/%d\t%s\t%s\n",
					it.ID, it.Status, it.Priority, progress, it.RetryCount, it.MaxRetries,
					humanize.RelTime(it.QueuedAt, time.Now(), "ago", "from now"), it.FileName)
				if it.LastError != "" {
					fmt.Fprintf(w, "\t\t\t\t\t\t  last error: %s\n", it.LastError)
				}
			}
			return w.Flush()
		},
	}
}

// idCommand builds the pause/resume/remove commands, which only differ
// in the client call they make.
func idCommand(use, short, done string, call func(*api.Client, *cobra.Command, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			if err := call(client, cmd, args[0]); err != nil {
				return err
			}
			fmt.Printf("%s %s\n", done, args[0])
			return nil
		},
	}
}

func newPauseCmd() *cobra.Command {
	return idCommand("pause", "Pause a running download", "Paused", func(c *api.Client, cmd *cobra.Command, id string) error {
		return c.Pause(cmd.Context(), id)
	})
}

func newResumeCmd() *cobra.Command {
	return idCommand("resume", "Resume a paused download", "Resumed", func(c *api.Client, cmd *cobra.Command, id string) error {
		return c.Resume(cmd.Context(), id)
	})
}

func newRemoveCmd() *cobra.Command {
	return idCommand("remove", "Remove a download from the queue", "Removed", func(c *api.Client, cmd *cobra.Command, id string) error {
		return c.Remove(cmd.Context(), id)
	})
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every item from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}
			return client.Clear(cmd.Context())
		},
	}
}

func newQuotaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quota",
		Short: "Show the remaining API quota",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newAPIClient()
			if err != nil {
				return err
			}

			st, err := client.Quota(cmd.Context())
			if err != nil {
				return err
			}

			now := time.Now()
			fmt.Printf("Daily:  %d / %d (resets %s)\n", st.DailyRemaining, st.DailyLimit, humanize.RelTime(st.DailyReset, now, "ago", "from now"))
			fmt.Printf("Hourly: %d / %d (resets %s)\n", st.HourlyRemaining, st.HourlyLimit, humanize.RelTime(st.HourlyReset, now, "ago", "from now"))
			return nil
		},
	}
}
