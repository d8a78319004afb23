package docker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// DefaultPullConcurrency bounds simultaneous registry pulls.
const DefaultPullConcurrency = 3

// ImagePuller is the subset of Client needed to pull images.
type ImagePuller interface {
	PullImage(image string, opts PullOptions) error
}

// PullImages pulls the given images, at most maxConcurrent at a time.
// Every image is attempted even when earlier pulls fail; the returned
// error joins the individual failures.
func PullImages(ctx context.Context, cli ImagePuller, logger *slog.Logger, images []string, maxConcurrent int) error {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultPullConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Use a semaphore to limit concurrent pulls
	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	errs := make([]error, len(images))

	for i, img := range images {
		wg.Add(1)
		go func(i int, img string) {
			defer wg.Done()

			// Acquire semaphore
			select {
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			case sem <- struct{}{}:
				defer func() { <-sem }()
			}

			logger.Info("pulling image", "image", img)
			if err := cli.PullImage(img, PullOptions{}); err != nil {
				logger.Error("image pull failed", "image", img, "error", err)
				errs[i] = err
				return
			}
			logger.Debug("image pulled", "image", img)
		}(i, img)
	}

	wg.Wait()
	return errors.Join(errs...)
}
