package bot

import (
	"context"
	"fmt"
	"time"
)

// sendChunks replies with each chunk in order, waiting delay between sends.
func (b *Bot) sendChunks(ctx context.Context, to InboundMessage, chunks []string, waitFirst bool) error {
	for i, chunk := range chunks {
		if i > 0 || waitFirst {
			if err := b.wait(ctx, b.chunkDelay); err != nil {
				return err
			}
		}
		if _, err := b.platform.Reply(ctx, to, chunk); err != nil {
			return fmt.Errorf("unable to send chunk %d of %d: %w", i+1, len(chunks), err)
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
