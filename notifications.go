package accounts

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultDispatchTimeout bounds a single background dispatch
const DefaultDispatchTimeout = 10 * time.Second

// Notification is one dispatch request. Empty channels are skipped.
type Notification struct {
	UserID       string
	Email        string
	EmailSubject string
	EmailToken   string
	Phone        string
	SMSToken     string
}

// Dispatcher sends notifications in the background. Callers never wait on
// it and failures are only logged.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   Logger
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, timeout time.Duration, logger Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = DefaultDispatchTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   resolveLogger(logger),
	}
}

// Dispatch returns immediately. The send outlives ctx cancellation but not
// the dispatcher timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	if d == nil || d.notifier == nil {
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		var g errgroup.Group
		if n.Email != "" && n.EmailToken != "" {
			g.Go(func() error {
				err := d.notifier.SendEmail(ctx, n.Email, n.EmailSubject, n.EmailToken)
				if err != nil {
					d.logger.Error("failed to send email notification", "user_id", n.UserID, "subject", n.EmailSubject, "error", err)
				}
				return err
			})
		}
		if n.Phone != "" && n.SMSToken != "" {
			g.Go(func() error {
				err := d.notifier.SendSMS(ctx, n.Phone, n.SMSToken)
				if err != nil {
					d.logger.Error("failed to send sms notification", "user_id", n.UserID, "error", err)
				}
				return err
			})
		}

		if err := g.Wait(); err == nil {
			d.logger.Debug("notification dispatched", "user_id", n.UserID)
		}
	}()
}

// Wait blocks until in flight dispatches finish
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// Shutdown waits for in flight dispatches or ctx, whichever comes first
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
