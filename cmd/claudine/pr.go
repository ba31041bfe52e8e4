package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/claudine-dev/claudine/pkg/osutil"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/claudine-dev/claudine/pkg/review"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type PRInitReviewConfig struct {
	Output string
}

func NewPRInitReviewConfig() *PRInitReviewConfig {
	return &PRInitReviewConfig{
		Output: "",
	}
}

var prCmd = &cobra.Command{
	Use:   "pr",
	Short: "Pull request review helpers built on the gh CLI",
	Long: `Fetch pull request data, check pull requests out into review worktrees, and post
a whole review in one batch. The repository is --github-repo or the origin remote.

A review session usually goes:
  claudine pr checkout 42
  claudine pr init-review 42
  (fill in .reviews/pr-42-review.json)
  claudine pr post .reviews/pr-42-review.json
  claudine pr cleanup 42`,
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Help()
	},
}

func prDataCommand(use, short string, fetch func(c *review.Client, ctx context.Context, repo review.Repo, number int) (json.RawMessage, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <pr-number>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			ctx := cmd.Context()
			client, repo, number := prTarget(ctx, args[0])
			data, err := fetch(client, ctx, repo, number)
			if err != nil {
				presenter.Error(err, "Request failed")
				os.Exit(1)
			}
			printJSON(data)
		},
	}
}

var prFilesCmd = prDataCommand("files", "List the files changed by a pull request", (*review.Client).Files)

var prCommentsCmd = prDataCommand("comments", "List the review comments of a pull request", (*review.Client).Comments)

var prReviewsCmd = prDataCommand("reviews", "List the reviews of a pull request", (*review.Client).Reviews)

var prIssueCmd = prDataCommand("issue", "Show an issue", (*review.Client).Issue)

var prHeadCmd = &cobra.Command{
	Use:   "head <pr-number>",
	Short: "Print the head commit SHA of a pull request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, repo, number := prTarget(ctx, args[0])
		sha, err := client.Head(ctx, repo, number)
		if err != nil {
			presenter.Error(err, "Failed to read the head commit")
			os.Exit(1)
		}
		fmt.Println(sha)
	},
}

var prPostCmd = &cobra.Command{
	Use:   "post <batch.json>",
	Short: "Post a review batch as a single pull request review",
	Long: `Validate a review batch file and post it as one review with all its inline
comments. Run 'claudine pr schema' for the file format.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		batch, err := review.LoadBatch(args[0])
		if err != nil {
			presenter.Error(err, "Invalid review batch")
			os.Exit(1)
		}

		client := review.NewClient(runner, workingDir())
		data, err := client.Post(ctx, batch)
		if err != nil {
			presenter.Error(err, "Failed to post review")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Posted %s review with %d comment(s) on %s#%d",
			batch.Event, len(batch.Comments), batch.RepoRef(), batch.PRNumber))
		printJSON(data)
	},
}

var prReplyCmd = &cobra.Command{
	Use:   "reply <pr-number> <comment-id> <body>",
	Short: "Reply to a review comment",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, repo, number := prTarget(ctx, args[0])

		commentID, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || commentID <= 0 {
			presenter.Error(errors.Errorf("invalid comment id %q", args[1]), "")
			os.Exit(1)
		}

		data, err := client.Reply(ctx, repo, number, commentID, args[2])
		if err != nil {
			presenter.Error(err, "Failed to reply")
			os.Exit(1)
		}
		printJSON(data)
	},
}

var prResolveCmd = &cobra.Command{
	Use:   "resolve <thread-id>",
	Short: "Resolve a review thread",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client := review.NewClient(runner, workingDir())
		data, err := client.Resolve(ctx, args[0])
		if err != nil {
			presenter.Error(err, "Failed to resolve thread")
			os.Exit(1)
		}
		printJSON(data)
	},
}

var prCheckoutCmd = &cobra.Command{
	Use:   "checkout <pr-number>",
	Short: "Check a pull request out into a review worktree",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		client, repo, number := prTarget(ctx, args[0])
		path, err := client.Checkout(ctx, repo, number)
		if err != nil {
			presenter.Error(err, "Checkout failed")
			os.Exit(1)
		}
		presenter.Success("Checked out PR #" + args[0] + " into " + path)
	},
}

var prCleanupCmd = &cobra.Command{
	Use:   "cleanup <pr-number>",
	Short: "Remove the review worktree of a pull request",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		number, err := review.ParseNumber(args[0])
		if err != nil {
			presenter.Error(err, "")
			os.Exit(1)
		}
		client := review.NewClient(runner, workingDir())
		if err := client.Cleanup(cmd.Context(), number); err != nil {
			presenter.Error(err, "Cleanup failed")
			os.Exit(1)
		}
		presenter.Success("Removed " + client.WorktreePath(number))
	},
}

var prInitReviewCmd = &cobra.Command{
	Use:   "init-review <pr-number>",
	Short: "Write an empty review batch for a pull request",
	Long: `Write a review batch skeleton holding the repository, the pull request number
and its head commit SHA. Defaults to .reviews/pr-<n>-review.json.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		config := getPRInitReviewConfigFromFlags(cmd)
		client, repo, number := prTarget(ctx, args[0])

		path := config.Output
		if path == "" {
			path = client.BatchPath(number)
		}
		batch, err := client.InitReview(ctx, repo, number, path)
		if err != nil {
			presenter.Error(err, "Failed to initialize review")
			os.Exit(1)
		}
		presenter.Success(fmt.Sprintf("Review batch for %s#%d at %s written to %s", batch.RepoRef(), number, batch.CommitID, path))
	},
}

var prSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of review batch files",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		data, err := json.MarshalIndent(review.Schema(), "", "  ")
		if err != nil {
			presenter.Error(err, "Failed to render schema")
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

func init() {
	initDefaults := NewPRInitReviewConfig()
	prInitReviewCmd.Flags().StringP("output", "o", initDefaults.Output, "Where to write the batch file")

	prCmd.AddCommand(prFilesCmd, prCommentsCmd, prReviewsCmd, prHeadCmd, prIssueCmd)
	prCmd.AddCommand(prPostCmd, prReplyCmd, prResolveCmd)
	prCmd.AddCommand(prCheckoutCmd, prCleanupCmd, prInitReviewCmd, prSchemaCmd)
	rootCmd.AddCommand(prCmd)
}

func getPRInitReviewConfigFromFlags(cmd *cobra.Command) *PRInitReviewConfig {
	config := NewPRInitReviewConfig()
	if output, err := cmd.Flags().GetString("output"); err == nil {
		config.Output = output
	}
	return config
}

// prTarget resolves the client, repository and number a pr subcommand acts on
func prTarget(ctx context.Context, arg string) (*review.Client, review.Repo, int) {
	number, err := review.ParseNumber(arg)
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}

	if err := osutil.ValidateGHCLI(ctx, runner); err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}

	name, err := resolveRepo(ctx, loadConfig())
	if err != nil {
		presenter.Error(err, "Failed to resolve repository")
		os.Exit(1)
	}
	repo, err := review.ParseRepo(name)
	if err != nil {
		presenter.Error(err, "")
		os.Exit(1)
	}

	return review.NewClient(runner, workingDir()), repo, number
}

func workingDir() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

func printJSON(data json.RawMessage) {
	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		fmt.Println(string(data))
		return
	}
	fmt.Println(out.String())
}
