package login

import "sync"

// NavigatorFunc adapts a function to Navigator
type NavigatorFunc func(url string)

func (fn NavigatorFunc) Navigate(url string) {
	fn(url)
}

// Recorder is a Navigator that remembers the last target. HTTP handlers
// use it to turn a navigation into a response.
type Recorder struct {
	mu  sync.Mutex
	url string
}

func (r *Recorder) Navigate(url string) {
	r.mu.Lock()
	r.url = url
	r.mu.Unlock()
}

// URL returns the last navigation target, or ""
func (r *Recorder) URL() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.url
}
