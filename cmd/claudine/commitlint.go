package main

import (
	"io"
	"os"

	"github.com/claudine-dev/claudine/pkg/commitlint"
	"github.com/claudine-dev/claudine/pkg/config"
	"github.com/claudine-dev/claudine/pkg/presenter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

type CommitlintConfig struct {
	File string
}

func NewCommitlintConfig() *CommitlintConfig {
	return &CommitlintConfig{
		File: "",
	}
}

var commitlintCmd = &cobra.Command{
	Use:   "commitlint",
	Short: "Check a commit message against the conventional commit rules",
	Long: `Check a commit message against the conventional commit rules. The message is
read from --file, which is how git passes it to a commit-msg hook, or from stdin.

The allowed types and scopes come from the commitlint section of the config file.

Examples:
  claudine commitlint --file .git/COMMIT_EDITMSG
  echo "feat(sync): link AGENTS.md" | claudine commitlint`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		config := getCommitlintConfigFromFlags(cmd)

		message, err := readCommitMessage(config.File, cmd.InOrStdin())
		if err != nil {
			presenter.Error(err, "Failed to read the commit message")
			os.Exit(1)
		}

		if err := commitRules(loadConfig()).Lint(message); err != nil {
			violations := commitlint.Violations(err)
			if len(violations) == 0 {
				presenter.Error(err, "Invalid commit message")
			}
			for _, v := range violations {
				presenter.Error(v, "")
			}
			os.Exit(1)
		}
		presenter.Success("Commit message follows the conventional commit format")
	},
}

func init() {
	defaults := NewCommitlintConfig()
	commitlintCmd.Flags().StringP("file", "f", defaults.File, "File holding the commit message (reads stdin when empty)")

	rootCmd.AddCommand(commitlintCmd)
}

func getCommitlintConfigFromFlags(cmd *cobra.Command) *CommitlintConfig {
	config := NewCommitlintConfig()
	if file, err := cmd.Flags().GetString("file"); err == nil {
		config.File = file
	}
	return config
}

func readCommitMessage(file string, stdin io.Reader) (string, error) {
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", errors.Wrapf(err, "failed to read %s", file)
		}
		return string(data), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", errors.Wrap(err, "failed to read stdin")
	}
	return string(data), nil
}

func commitRules(cfg *config.Config) commitlint.Rules {
	return commitlint.Rules{
		Types:           cfg.Commitlint.Types,
		Scopes:          cfg.Commitlint.Scopes,
		MaxHeaderLength: cfg.Commitlint.MaxHeaderLength,
	}
}
