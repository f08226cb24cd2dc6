// Package dashboard exposes a small bearer-token-gated HTTP API for
// WhatsApp pairing and health checks (§6): GET /api/health, POST
// /api/pair, GET /api/pair/status.
package dashboard

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"rsc.io/qr"

	"github.com/omegacortex/omega/pkg/channels/whatsapp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server is the pairing dashboard's HTTP surface.
type Server struct {
	APIKey   string
	Addr     string
	WADBPath string

	mu      sync.Mutex
	session *pairSession

	httpServer *http.Server
}

type pairSession struct {
	status string // "pending" | "success" | "failed"
	qrPNG  string // base64 PNG of the most recent QR code
	errMsg string
}

type healthResponse struct {
	Status string `json:"status"`
}

type pairStatusResponse struct {
	Status string `json:"status"`
	QRCode string `json:"qr_code,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Start binds Addr and serves in a background goroutine, shutting down
// when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.authed(s.handleHealth))
	mux.HandleFunc("/api/pair", s.authed(s.handlePair))
	mux.HandleFunc("/api/pair/status", s.authed(s.handlePairStatus))

	s.httpServer = &http.Server{Addr: s.Addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
	}()

	slog.Info("dashboard: listening", "addr", s.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.APIKey != "" {
			got := r.Header.Get("Authorization")
			if got != "Bearer "+s.APIKey {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
}

// handlePair starts a new pairing session in the background and
// immediately returns 202; the caller polls /api/pair/status for the
// QR code and outcome.
func (s *Server) handlePair(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	if s.session != nil && s.session.status == "pending" {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, pairStatusResponse{Status: "pending"})
		return
	}
	s.session = &pairSession{status: "pending"}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)

	results, err := whatsapp.Pair(ctx, s.WADBPath)
	if err != nil {
		cancel()
		s.mu.Lock()
		s.session = &pairSession{status: "failed", errMsg: err.Error()}
		s.mu.Unlock()
		writeJSON(w, http.StatusInternalServerError, pairStatusResponse{Status: "failed", Error: err.Error()})
		return
	}

	go func() {
		defer cancel()
		for res := range results {
			if res.QRCode != "" {
				png, err := qrToBase64PNG(res.QRCode)
				if err != nil {
					slog.Error("dashboard: failed to render QR", "error", err)
					continue
				}
				s.mu.Lock()
				s.session.qrPNG = png
				s.mu.Unlock()
				continue
			}
			if res.Done {
				s.mu.Lock()
				if res.Success {
					s.session.status = "success"
				} else {
					s.session.status = "failed"
					s.session.errMsg = res.Error
				}
				s.mu.Unlock()
			}
		}
	}()

	writeJSON(w, http.StatusAccepted, pairStatusResponse{Status: "pending"})
}

func (s *Server) handlePairStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		writeJSON(w, http.StatusOK, pairStatusResponse{Status: "none"})
		return
	}
	writeJSON(w, http.StatusOK, pairStatusResponse{
		Status: s.session.status,
		QRCode: s.session.qrPNG,
		Error:  s.session.errMsg,
	})
}

const qrScale = 8

// qrToBase64PNG encodes payload with the same QR library qrterminal
// renders to the terminal with (rsc.io/qr), rasterizes the module grid
// at qrScale pixels per module, and returns a base64-encoded PNG.
func qrToBase64PNG(payload string) (string, error) {
	code, err := qr.Encode(payload, qr.L)
	if err != nil {
		return "", err
	}

	size := code.Size * qrScale
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < code.Size; y++ {
		for x := 0; x < code.Size; x++ {
			c := color.Gray{Y: 255}
			if code.Black(x, y) {
				c = color.Gray{Y: 0}
			}
			for dy := 0; dy < qrScale; dy++ {
				for dx := 0; dx < qrScale; dx++ {
					img.SetGray(x*qrScale+dx, y*qrScale+dy, c)
				}
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
