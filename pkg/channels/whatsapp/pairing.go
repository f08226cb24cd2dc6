package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"

	_ "modernc.org/sqlite"
)

const (
	qrWaitTimeout   = 30 * time.Second
	pairWaitTimeout = 60 * time.Second
)

// PairResult is one step of a pairing session: either a QR code to
// render, or a terminal outcome.
type PairResult struct {
	QRCode  string // non-empty when the caller should display a new QR code
	Done    bool
	Success bool
	Error   string
}

// Pair drives a fresh whatsmeow device through QR pairing, emitting
// PairResult values on the returned channel as the exchange progresses.
// The caller (CLI `pair` command, or the dashboard's /api/pair handler)
// renders each QR code and reports the final outcome.
func Pair(ctx context.Context, dbPath string) (<-chan PairResult, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("whatsapp: db_path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("whatsapp: failed to create session directory: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite", "file:"+dbPath+"?_pragma=foreign_keys(1)", slogWALogger{module: "pairing"})
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to load device: %w", err)
	}

	client := whatsmeow.NewClient(device, slogWALogger{module: "pairing"})
	if client.Store.ID != nil {
		out := make(chan PairResult, 1)
		out <- PairResult{Done: true, Success: true}
		close(out)
		return out, nil
	}

	out := make(chan PairResult)

	connected := make(chan struct{}, 1)
	client.AddEventHandler(func(evt interface{}) {
		if _, ok := evt.(*events.Connected); ok {
			select {
			case connected <- struct{}{}:
			default:
			}
		}
	})

	qrChan, err := client.GetQRChannel(ctx)
	if err != nil {
		return nil, fmt.Errorf("whatsapp: failed to open QR channel: %w", err)
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("whatsapp: connect failed: %w", err)
	}

	go func() {
		defer close(out)
		defer client.Disconnect()

		qrDeadline := time.After(qrWaitTimeout)
		for {
			select {
			case evt, ok := <-qrChan:
				if !ok {
					goto awaitConnection
				}
				switch evt.Event {
				case "code":
					out <- PairResult{QRCode: evt.Code}
				case "success":
					goto awaitConnection
				case "timeout":
					out <- PairResult{Done: true, Success: false, Error: "QR code timed out"}
					return
				}
			case <-qrDeadline:
				out <- PairResult{Done: true, Success: false, Error: "timed out waiting for QR scan"}
				return
			case <-ctx.Done():
				out <- PairResult{Done: true, Success: false, Error: ctx.Err().Error()}
				return
			}
		}

	awaitConnection:
		select {
		case <-connected:
			out <- PairResult{Done: true, Success: true}
		case <-time.After(pairWaitTimeout):
			out <- PairResult{Done: true, Success: false, Error: "timed out waiting for connection after pairing"}
		case <-ctx.Done():
			out <- PairResult{Done: true, Success: false, Error: ctx.Err().Error()}
		}
	}()

	return out, nil
}
