package harvest

import "context"

// TokenCounter counts model tokens in text. Used for ingest reporting only.
type TokenCounter interface {
	CountTokens(ctx context.Context, text string) (int, error)
}
