package guard

import goSession "github.com/MrEthical07/goSession"

// InvalidationSource is satisfied by *goSession.Client.
type InvalidationSource interface {
	OnInvalidated(fn func(goSession.InvalidationEvent)) func()
}

// Navigator moves the presentation layer to path.
type Navigator interface {
	Navigate(path string)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }

// Follow navigates to the event's entry path once per invalidation. The
// returned func stops following.
func Follow(src InvalidationSource, nav Navigator) func() {
	if src == nil || nav == nil {
		return func() {}
	}
	return src.OnInvalidated(func(ev goSession.InvalidationEvent) {
		nav.Navigate(ev.EntryPath)
	})
}
