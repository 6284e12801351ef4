package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	redisclient "github.com/vietddude/faultline/internal/infra/redis"
)

var issuesLimit int

var issuesCmd = &cobra.Command{
	Use:   "issues",
	Short: "Show the most frequent error groups",
	RunE:  runIssues,
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <key>",
	Short: "Remove an error group",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolve,
}

func init() {
	issuesCmd.Flags().IntVar(&issuesLimit, "limit", 20, "number of groups to show")
	issuesCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(issuesCmd)
}

func openIssues(cmd *cobra.Command) (*redisclient.IssueRepo, func(), error) {
	cfg, err := setup(cmd)
	if err != nil {
		return nil, nil, err
	}
	if cfg.Redis.URL == "" {
		return nil, nil, errors.New("redis.url is not configured")
	}
	client, err := redisclient.NewClient(cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	repo := redisclient.NewIssueRepo(client, cfg.Redis.Namespace, cfg.Redis.IssueTTL)
	return repo, func() { _ = client.Close() }, nil
}

func runIssues(cmd *cobra.Command, args []string) error {
	repo, closeFn, err := openIssues(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	issues, err := repo.Top(cmd.Context(), issuesLimit)
	if err != nil {
		return fmt.Errorf("failed to list issues: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "KEY\tCOUNT\tLEVEL\tLAST SEEN\tTITLE")
	for _, issue := range issues {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
			issue.Key, issue.Count, issue.Level, issue.LastSeen.Format(time.RFC3339), issue.Title)
	}
	return w.Flush()
}

func runResolve(cmd *cobra.Command, args []string) error {
	repo, closeFn, err := openIssues(cmd)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := repo.Resolve(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("failed to resolve %s: %w", args[0], err)
	}
	_, _ = fmt.Fprintf(os.Stdout, "resolved %s\n", args[0])
	return nil
}
