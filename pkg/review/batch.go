// Package review drives pull request reviews through the gh CLI: reading
// files, comments and reviews, posting a batch of inline comments as one
// review, and managing a per-PR worktree to review in.
package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// Review events accepted by the GitHub API
const (
	EventComment        = "COMMENT"
	EventApprove        = "APPROVE"
	EventRequestChanges = "REQUEST_CHANGES"
)

// Diff sides a comment can anchor to
const (
	SideLeft  = "LEFT"
	SideRight = "RIGHT"
)

// Batch is a review file: one review body plus its inline comments
type Batch struct {
	Owner    string    `json:"owner" jsonschema:"description=Repository owner"`
	Repo     string    `json:"repo" jsonschema:"description=Repository name"`
	PRNumber int       `json:"pr_number" jsonschema:"description=Pull request number,minimum=1"`
	CommitID string    `json:"commit_id" jsonschema:"description=Head commit SHA the comments refer to"`
	Body     string    `json:"body" jsonschema:"description=Top level review summary"`
	Event    string    `json:"event" jsonschema:"enum=COMMENT,enum=APPROVE,enum=REQUEST_CHANGES"`
	Comments []Comment `json:"comments"`
}

// Comment is an inline review comment
type Comment struct {
	Path string `json:"path" jsonschema:"description=File path relative to the repository root"`
	Line int    `json:"line" jsonschema:"description=Line number in the diff side,minimum=1"`
	Side string `json:"side" jsonschema:"enum=LEFT,enum=RIGHT"`
	Body string `json:"body" jsonschema:"description=Markdown comment body"`
}

// NewBatch returns an empty COMMENT review for the given PR head
func NewBatch(repo Repo, number int, commitID string) *Batch {
	return &Batch{
		Owner:    repo.Owner,
		Repo:     repo.Name,
		PRNumber: number,
		CommitID: commitID,
		Event:    EventComment,
		Comments: []Comment{},
	}
}

// Validate reports every problem with the batch at once
func (b *Batch) Validate() error {
	var result *multierror.Error

	if b.Owner == "" {
		result = multierror.Append(result, errors.New("owner is required"))
	}
	if b.Repo == "" {
		result = multierror.Append(result, errors.New("repo is required"))
	}
	if b.PRNumber <= 0 {
		result = multierror.Append(result, errors.New("pr_number must be a positive integer"))
	}
	if b.CommitID == "" {
		result = multierror.Append(result, errors.New("commit_id is required"))
	}
	switch b.Event {
	case EventComment, EventApprove, EventRequestChanges:
	default:
		result = multierror.Append(result, errors.Errorf("event must be one of COMMENT, APPROVE, REQUEST_CHANGES, got %q", b.Event))
	}
	if b.Event == EventRequestChanges && strings.TrimSpace(b.Body) == "" {
		result = multierror.Append(result, errors.New("body is required for REQUEST_CHANGES"))
	}

	for i, c := range b.Comments {
		prefix := fmt.Sprintf("comments[%d]", i)
		if c.Path == "" {
			result = multierror.Append(result, errors.Errorf("%s: path is required", prefix))
		}
		if c.Line <= 0 {
			result = multierror.Append(result, errors.Errorf("%s: line must be a positive integer", prefix))
		}
		if c.Side != SideLeft && c.Side != SideRight {
			result = multierror.Append(result, errors.Errorf("%s: side must be LEFT or RIGHT, got %q", prefix, c.Side))
		}
		if strings.TrimSpace(c.Body) == "" {
			result = multierror.Append(result, errors.Errorf("%s: body is required", prefix))
		}
	}

	return result.ErrorOrNil()
}

// RepoRef returns the repository the batch targets
func (b *Batch) RepoRef() Repo {
	return Repo{Owner: b.Owner, Name: b.Repo}
}

// LoadBatch reads and validates a batch file
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read batch file %s", path)
	}

	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, errors.Wrapf(err, "invalid batch file %s", path)
	}
	if b.Comments == nil {
		b.Comments = []Comment{}
	}
	if err := b.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid batch file %s", path)
	}
	return &b, nil
}

// Save writes the batch as indented JSON, creating parent directories
func (b *Batch) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create batch directory")
	}
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal batch")
	}
	return errors.Wrap(os.WriteFile(path, append(data, '\n'), 0o644), "failed to write batch file")
}

// reviewRequest is the body of POST /repos/{owner}/{repo}/pulls/{n}/reviews
type reviewRequest struct {
	CommitID string    `json:"commit_id"`
	Body     string    `json:"body,omitempty"`
	Event    string    `json:"event"`
	Comments []Comment `json:"comments"`
}

func (b *Batch) request() reviewRequest {
	return reviewRequest{CommitID: b.CommitID, Body: b.Body, Event: b.Event, Comments: b.Comments}
}

// Schema returns the JSON schema of the batch file
func Schema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&Batch{})
}
