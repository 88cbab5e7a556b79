package queueaccess

import (
	"errors"
	"fmt"

	"townhall/internal/api"
	"townhall/internal/queue"
	"townhall/internal/videos"
)

// Dialer connects to a running daemon. It fails when none is reachable.
type Dialer func() (*api.Client, error)

// StoreOpener opens the local queue and video stores.
type StoreOpener func() (*queue.Store, *videos.Store, error)

// Session is an Access plus whatever must be released when the caller is done.
type Session struct {
	Access Access
	// DialErr holds the reason the daemon was not used, if any.
	DialErr error

	release func() error
}

// Close releases the local stores when the session opened them.
func (s Session) Close() error {
	if s.release == nil {
		return nil
	}
	return s.release()
}

// OpenWithFallback prefers the daemon API. When dial is nil or fails, the
// stores are opened in-process instead.
func OpenWithFallback(dial Dialer, open StoreOpener) (Session, error) {
	var dialErr error
	if dial != nil {
		client, err := dial()
		if err == nil {
			return Session{Access: NewHTTPAccess(client)}, nil
		}
		dialErr = err
	}
	if open == nil {
		return Session{}, errors.Join(dialErr, errors.New("open queue store: no store opener configured"))
	}

	jobs, records, err := open()
	if err != nil {
		if dialErr != nil {
			return Session{}, fmt.Errorf("daemon unreachable (%v) and local stores unavailable: %w", dialErr, err)
		}
		return Session{}, fmt.Errorf("open queue store: %w", err)
	}
	return Session{
		Access:  NewStoreAccess(jobs, records),
		DialErr: dialErr,
		release: func() error { return errors.Join(records.Close(), jobs.Close()) },
	}, nil
}
