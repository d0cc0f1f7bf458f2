package cmdtrigger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Notification is a type alias of pgconn.Notification type.
type Notification = pgconn.Notification

// Closer is the interface which is implemented by the Listener.
// It's used to close the underline connection.
type Closer interface {
	Close(ctx context.Context) error
}

// Listener represents a postgres database LISTEN connection subscribed to
// the catalog's change channel.
type Listener struct {
	conn    *pgxpool.Conn
	channel string
	closed  uint32
}

var _ Closer = (*Listener)(nil)

// ErrEmptyPayload is returned when the notification payload is empty.
var ErrEmptyPayload = fmt.Errorf("empty payload")

// Listen acquires a dedicated connection from the catalog pool and
// subscribes it to the change channel.
func (c *PGCatalog) Listen(ctx context.Context) (*Listener, error) {
	conn, err := c.Pool.Acquire(ctx) // Always on top.
	if err != nil {
		return nil, err
	}

	query := `LISTEN ` + c.channel
	_, err = conn.Exec(ctx, query)
	if err != nil {
		conn.Release()
		return nil, err
	}

	l := &Listener{
		conn:    conn,
		channel: c.channel,
	}
	return l, nil
}

// Accept waits for a notification and returns it.
func (l *Listener) Accept(ctx context.Context) (*Notification, error) {
	nf, err := l.conn.Conn().WaitForNotification(ctx)
	if err != nil {
		return nil, err
	}

	if len(nf.Payload) == 0 {
		return nil, ErrEmptyPayload
	}

	return nf, nil
}

// Close unsubscribes and releases the listener connection.
func (l *Listener) Close(ctx context.Context) error {
	if l == nil {
		return nil
	}

	if l.conn == nil {
		return nil
	}

	if atomic.CompareAndSwapUint32(&l.closed, 0, 1) {
		defer l.conn.Release()

		query := `UNLISTEN ` + l.channel
		_, err := l.conn.Exec(ctx, query)
		if err != nil {
			return err
		}
	}

	return nil
}

// ChangeNotification is the message the catalog broadcasts after every
// committed definition mutation. The payload carries no row data, only
// what changed; listeners rebuild from the catalog on demand.
type ChangeNotification struct {
	Change string    `json:"change"` // insert, update, delete, delete_procedure.
	ID     int64     `json:"id"`
	At     time.Time `json:"at"`

	payload string `json:"-"` /* just in case */
}

// GetPayload returns the raw payload of the notification.
func (n ChangeNotification) GetPayload() string {
	return n.payload
}

// ListenChanges subscribes to the catalog's change channel and calls
// "callback" for every received notification.
//
// The callback function can return any error to stop the listener.
// The callback function can return nil to continue listening.
//
// Wire it to an Engine's firing cache like so:
//
//	closer, err := catalog.ListenChanges(ctx, func(ChangeNotification, error) error {
//		engine.Cache().Invalidate()
//		return nil
//	})
func (c *PGCatalog) ListenChanges(ctx context.Context, callback func(ChangeNotification, error) error) (Closer, error) {
	conn, err := c.Listen(ctx)
	if err != nil {
		return nil, err
	}

	go func() {
		defer conn.Close(ctx)

		for {
			var evt ChangeNotification

			notification, err := conn.Accept(ctx)
			if err != nil {
				if errors.Is(err, io.ErrUnexpectedEOF) {
					return // may produced by close.
				}

				if callback(evt, err) != nil {
					return
				}

				continue
			}

			// make payload available for debugging on errors.
			evt.payload = notification.Payload

			if err = json.Unmarshal(stringToBytes(notification.Payload), &evt); err != nil {
				if callback(evt, err) != nil {
					return
				}

				continue
			}

			if err = callback(evt, nil); err != nil {
				return
			}
		}
	}()

	return conn, nil
}

func stringToBytes(s string) []byte {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}
