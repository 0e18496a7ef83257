package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/lox/rpsbot/internal/fileutil"
)

// FilePublisher writes each board to path as indented JSON, replacing the
// previous file atomically.
func FilePublisher(path string) Publisher {
	return PublisherFunc(func(ctx context.Context, board Board) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(board)
		})
	})
}

// Publishers fans a board out to every publisher, skipping nils. All are
// attempted; their errors are joined.
func Publishers(ps ...Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, board Board) error {
		var errs []error
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Publish(ctx, board); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
