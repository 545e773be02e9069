package services

import (
	"context"
	"fmt"
	"time"
)

const (
	DefaultVideoPollInterval = 10 * time.Second
	DefaultVideoPollTimeout  = 10 * time.Minute
)

// AwaitVideoOperation polls a started video job until it completes, the
// timeout elapses or the context is cancelled. On completion the clip bytes
// are returned, fetching the download URI when the provider only handed back
// a reference.
func AwaitVideoOperation(ctx context.Context, provider GenAIProvider, op *VideoOperation, interval time.Duration, timeout time.Duration) ([]byte, error) {
	if interval <= 0 {
		interval = DefaultVideoPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultVideoPollTimeout
	}
	deadline := time.Now().Add(timeout)

	for !op.Done {
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("video generation timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		refreshed, err := provider.PollVideoOperation(ctx, op)
		if err != nil {
			return nil, err
		}
		op = refreshed
		fmt.Printf("[Video: %s] polled, done=%v\n", op.Name, op.Done)
	}

	if len(op.VideoBytes) > 0 {
		return op.VideoBytes, nil
	}
	if op.DownloadURI != "" {
		return provider.FetchVideo(ctx, op.DownloadURI)
	}
	return nil, fmt.Errorf("video generation completed but no output was returned")
}
