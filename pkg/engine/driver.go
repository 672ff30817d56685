package engine

import "context"

// pageDriver is the minimal page surface the act and agent loops need.
// PlaywrightEngine implements it; tests substitute a stub.
type pageDriver interface {
	Content(ctx context.Context) (string, error)
	ClickText(ctx context.Context, text string) error
	ClickSelector(ctx context.Context, selector string) error
	FillSelector(ctx context.Context, selector, value string) error
	Navigate(ctx context.Context, url string) error
	PageTitle(ctx context.Context) (string, error)
	PageURL() string
}
