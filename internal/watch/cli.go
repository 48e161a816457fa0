package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// CLI is the aiweather-watch command line.
type CLI struct {
	rootCmd *cobra.Command
	cfg     Config
}

// NewCLI builds the command tree.
func NewCLI() *CLI {
	c := &CLI{}
	rootCmd := &cobra.Command{
		Use:           "aiweather-watch",
		Short:         "Observe the weather visualization stream",
		Long:          "Connects to the service websocket, prints every message and checks the order of the initial state burst.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          c.runWatch,
	}

	rootCmd.InitDefaultHelpFlag()
	rootCmd.Flags().Lookup("help").Usage = "Show help for command"

	rootCmd.PersistentFlags().StringVarP(&c.cfg.BaseURL, "url", "u", DefaultBaseURL, "Base URL of the service")
	rootCmd.PersistentFlags().DurationVarP(&c.cfg.Timeout, "timeout", "t", DefaultTimeout, "HTTP request and handshake timeout")
	rootCmd.Flags().DurationVarP(&c.cfg.Duration, "duration", "d", 0, "Stop after this long (0 waits for a signal)")
	rootCmd.Flags().StringVarP(&c.cfg.Output, "output", "o", "", "Write every message as a JSON line to this file")
	rootCmd.Flags().BoolVarP(&c.cfg.Verbose, "verbose", "v", false, "Print full payloads instead of summaries")

	c.rootCmd = rootCmd
	rootCmd.AddCommand(c.newRefreshCmd())
	rootCmd.AddCommand(c.newStatsCmd())
	return c
}

// Execute runs the root command with the given context.
func (c *CLI) Execute(ctx context.Context) error {
	c.rootCmd.SetContext(ctx)
	return c.rootCmd.Execute()
}

// SetArgs sets the arguments for the root command. Used for testing.
func (c *CLI) SetArgs(args []string) {
	c.rootCmd.SetArgs(args)
}

// SetOutput redirects command output. Used for testing.
func (c *CLI) SetOutput(w io.Writer) {
	c.rootCmd.SetOut(w)
	c.rootCmd.SetErr(w)
}

func (c *CLI) runWatch(cmd *cobra.Command, _ []string) error {
	out := cmd.OutOrStdout()
	sum, err := Run(cmd.Context(), c.cfg, out)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "received %d message types in %s: %v\n", len(sum.Messages), sum.Elapsed.Round(time.Millisecond), sum.Messages)
	if !sum.Complete {
		_, _ = fmt.Fprintln(out, "initial state burst incomplete")
	}
	if len(sum.Problems) > 0 {
		return fmt.Errorf("%w: %s", ErrOrdering, strings.Join(sum.Problems, "; "))
	}
	return nil
}

func (c *CLI) newRefreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Ask the service to start a cycle now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, body, err := c.call(cmd.Context(), http.MethodPost, "/refresh")
			if err != nil {
				return err
			}
			switch status {
			case http.StatusAccepted:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "refresh started")
			case http.StatusConflict:
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "refresh already in flight")
			default:
				return fmt.Errorf("refresh: unexpected status %d: %s", status, body)
			}
			return nil
		},
	}
}

func (c *CLI) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print service statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, body, err := c.call(cmd.Context(), http.MethodGet, "/stats")
			if err != nil {
				return err
			}
			if status != http.StatusOK {
				return fmt.Errorf("stats: unexpected status %d: %s", status, body)
			}
			var pretty map[string]any
			if err := json.Unmarshal(body, &pretty); err != nil {
				return fmt.Errorf("stats: %w", err)
			}
			b, _ := json.MarshalIndent(pretty, "", "  ")
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return nil
		},
	}
}

func (c *CLI) call(ctx context.Context, method, path string) (int, []byte, error) {
	base, _, err := c.cfg.endpoints()
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, base+path, http.NoBody)
	if err != nil {
		return 0, nil, err
	}
	resp, err := (&http.Client{Timeout: c.cfg.Timeout}).Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	return resp.StatusCode, body, err
}
