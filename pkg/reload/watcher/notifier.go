package watcher

import "github.com/fsnotify/fsnotify"

// Notifier is the OS filesystem notification facility. Delivery is
// at-least-once; duplicates are expected.
type Notifier interface {
	Add(dir string) error
	Remove(dir string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	Close() error
}

type fsNotifier struct {
	w *fsnotify.Watcher
}

// NewNotifier returns a Notifier backed by fsnotify.
func NewNotifier() (Notifier, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &fsNotifier{w: w}, nil
}

func (n *fsNotifier) Add(dir string) error          { return n.w.Add(dir) }
func (n *fsNotifier) Remove(dir string) error       { return n.w.Remove(dir) }
func (n *fsNotifier) Events() <-chan fsnotify.Event { return n.w.Events }
func (n *fsNotifier) Errors() <-chan error          { return n.w.Errors }
func (n *fsNotifier) Close() error                  { return n.w.Close() }
