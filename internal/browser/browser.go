package browser

import "context"

// Indicator reports which join-page element appeared first.
type Indicator int

const (
	IndicatorNone Indicator = iota
	IndicatorSuccess
	IndicatorError
)

func (i Indicator) String() string {
	switch i {
	case IndicatorSuccess:
		return "success"
	case IndicatorError:
		return "error"
	}
	return "none"
}

// Engine launches isolated browser instances of one kind.
type Engine interface {
	Kind() Kind
	// Launch starts one instance. The returned Instance owns an exclusive
	// fault domain; callers must Close (or Kill) it on every exit path.
	Launch(ctx context.Context) (Instance, error)
}

// Instance is one running browser. Safe for concurrent page use.
type Instance interface {
	NewPage(ctx context.Context) (Page, error)
	// Close shuts the instance down gracefully.
	Close() error
	// Kill force-terminates the instance, releasing the underlying process
	// immediately. Used on task timeout so capacity is not leaked to later
	// waves.
	Kill()
}

// Page drives a single tab.
type Page interface {
	// Navigate opens url and returns the HTTP status of the main document.
	Navigate(ctx context.Context, url string) (status int, err error)
	// WaitIndicator blocks until either selector appears and reports which.
	WaitIndicator(ctx context.Context, successSel, errorSel string) (Indicator, error)
	Close() error
}

// Set bundles one Engine per Kind, in enumeration order.
type Set map[Kind]Engine
