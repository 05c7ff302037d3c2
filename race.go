package corplink

import (
	"context"
	"errors"
	"sync"

	"github.com/ProtonMail/gluon/async"
	"golang.org/x/sync/errgroup"
)

// ErrBranchPanicked is the result of a race branch that panicked.
var ErrBranchPanicked = errors.New("race branch panicked")

// Branch is one contender of a Race.
type Branch struct {
	Name string
	Run  func(ctx context.Context) error
}

// Race runs the branches concurrently. The first branch to return wins: the others
// are cancelled and awaited before Race returns the winner's name and error.
func Race(ctx context.Context, panicHandler async.PanicHandler, branches ...Branch) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		group  errgroup.Group
		once   sync.Once
		winner string
		result error
	)

	for _, branch := range branches {
		branch := branch

		group.Go(func() error {
			err := ErrBranchPanicked

			defer func() {
				once.Do(func() {
					winner, result = branch.Name, err
					cancel()
				})
			}()

			if panicHandler != nil {
				defer panicHandler.HandlePanic()
			}

			err = branch.Run(ctx)

			return nil
		})
	}

	_ = group.Wait()

	return winner, result
}
