package posts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// quoteMatchWindow bounds the creation-time distance between a post and its
// quote record during heuristic resolution.
const quoteMatchWindow = time.Second

// PostSource is the read-side collaborator the assembler walks.
type PostSource interface {
	GetByID(ctx context.Context, id int64) (*Post, error)
	Children(ctx context.Context, parentID int64) ([]Post, error)
	FindQuote(ctx context.Context, authorID int64, content string, at time.Time, window time.Duration) (*QuoteRecord, error)
}

// ReplyNode is one node of the materialized reply tree.
type ReplyNode struct {
	Post    PostView    `json:"post"`
	Replies []ReplyNode `json:"replies"`
}

// Conversation bundles a post with its ancestor chain (oldest first) and its
// fully materialized reply tree.
type Conversation struct {
	MainPost  PostView    `json:"main_post"`
	Ancestors []PostView  `json:"ancestors"`
	Replies   []ReplyNode `json:"replies"`
}

// AssemblerConfig describes the dependencies of the conversation assembler.
type AssemblerConfig struct {
	Source PostSource
	Logger *zap.Logger
}

// Assembler reconstructs conversation threads from the post store.
type Assembler struct {
	source PostSource
	logger *zap.Logger
}

// NewAssembler constructs an Assembler.
func NewAssembler(cfg AssemblerConfig) (*Assembler, error) {
	if cfg.Source == nil {
		return nil, errors.New("posts: assembler requires a post source")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Assembler{source: cfg.Source, logger: logger}, nil
}

// Assemble reconstructs the conversation around postID: the ancestor chain up
// to the root, the post itself, and the full reply tree beneath it. Returns
// ErrPostNotFound when postID does not exist. A missing parent mid-walk
// truncates the ancestor chain silently; a missing quote match leaves the
// quoted post absent. Any other store failure aborts the whole assembly.
func (a *Assembler) Assemble(ctx context.Context, postID, viewerID int64) (Conversation, error) {
	root, err := a.source.GetByID(ctx, postID)
	if err != nil {
		if errors.Is(err, ErrPostNotFound) {
			return Conversation{}, fmt.Errorf("%w: %d", ErrPostNotFound, postID)
		}
		return Conversation{}, err
	}

	ancestors, err := a.walkAncestors(ctx, root)
	if err != nil {
		return Conversation{}, err
	}

	ancestorViews := make([]PostView, 0, len(ancestors))
	for i := range ancestors {
		quoted, err := a.ResolveQuoted(ctx, &ancestors[i])
		if err != nil {
			return Conversation{}, err
		}
		ancestorViews = append(ancestorViews, FormatPost(&ancestors[i], quoted, viewerID))
	}

	rootQuoted, err := a.ResolveQuoted(ctx, root)
	if err != nil {
		return Conversation{}, err
	}

	replies, err := a.fetchReplies(ctx, root.ID, viewerID)
	if err != nil {
		return Conversation{}, err
	}

	return Conversation{
		MainPost:  FormatPost(root, rootQuoted, viewerID),
		Ancestors: ancestorViews,
		Replies:   replies,
	}, nil
}

// walkAncestors follows parent references from start up to the root,
// returning the chain oldest first. The visited set, seeded with the
// starting post, guards against reference cycles; a dangling parent
// reference ends the walk without error.
func (a *Assembler) walkAncestors(ctx context.Context, start *Post) ([]Post, error) {
	visited := map[int64]struct{}{start.ID: {}}
	var chain []Post

	current := start
	for current.ParentID != nil {
		parent, err := a.source.GetByID(ctx, *current.ParentID)
		if errors.Is(err, ErrPostNotFound) {
			a.logger.Debug("ancestor walk truncated on missing parent",
				zap.Int64("post_id", current.ID),
				zap.Int64("parent_id", *current.ParentID))
			break
		}
		if err != nil {
			return nil, err
		}
		if _, seen := visited[parent.ID]; seen {
			a.logger.Warn("ancestor walk detected parent cycle",
				zap.Int64("post_id", current.ID),
				zap.Int64("parent_id", parent.ID))
			break
		}
		visited[parent.ID] = struct{}{}
		chain = append([]Post{*parent}, chain...)
		current = parent
	}

	return chain, nil
}

// ResolveQuoted attaches the quoted post for p, if any. Resolution is a
// heuristic join on author, exact content and creation time within a one
// second window; no match means no quoted post, never an error.
func (a *Assembler) ResolveQuoted(ctx context.Context, p *Post) (*Post, error) {
	content := ""
	if p.Content != nil {
		content = *p.Content
	}
	record, err := a.source.FindQuote(ctx, p.AuthorID, content, p.CreatedAt, quoteMatchWindow)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Quoted == nil {
		return nil, nil
	}
	return record.Quoted, nil
}

// fetchReplies materializes the full reply tree beneath parentID. Sibling
// subtrees are fetched concurrently; each node resolves its own quote before
// fanning out to its children. Depth is unbounded.
func (a *Assembler) fetchReplies(ctx context.Context, parentID, viewerID int64) ([]ReplyNode, error) {
	children, err := a.source.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if len(children) == 0 {
		return []ReplyNode{}, nil
	}

	nodes := make([]ReplyNode, len(children))
	group, groupCtx := errgroup.WithContext(ctx)
	for i := range children {
		index := i
		child := children[i]
		group.Go(func() error {
			quoted, err := a.ResolveQuoted(groupCtx, &child)
			if err != nil {
				return err
			}
			subtree, err := a.fetchReplies(groupCtx, child.ID, viewerID)
			if err != nil {
				return err
			}
			nodes[index] = ReplyNode{
				Post:    FormatPost(&child, quoted, viewerID),
				Replies: subtree,
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return nodes, nil
}
