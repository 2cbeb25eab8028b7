package reveal

import (
	"context"
	"time"
	"unicode/utf8"
)

// Typewriter reveals a reply a few runes at a time.
type Typewriter struct {
	// Step is the number of runes added per tick; values below 1 mean 1.
	Step int
	// Interval is the pause between ticks; zero reveals without pausing.
	Interval time.Duration
}

// Reveal calls emit with successively longer prefixes of text, ending with
// text itself. It stops as soon as ctx is done and returns ctx.Err() without
// emitting again.
func (t Typewriter) Reveal(ctx context.Context, text string, emit func(partial string)) error {
	step := t.Step
	if step < 1 {
		step = 1
	}

	var ticker *time.Ticker
	if t.Interval > 0 {
		ticker = time.NewTicker(t.Interval)
		defer ticker.Stop()
	}

	offset := 0
	for offset < len(text) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if ticker != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
			}
		}

		for i := 0; i < step && offset < len(text); i++ {
			_, size := utf8.DecodeRuneInString(text[offset:])
			offset += size
		}
		emit(text[:offset])
	}
	return ctx.Err()
}
