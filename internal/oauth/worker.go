package oauth

import (
	"context"
	"net/http"
	"sync"

	"go.uber.org/zap"
)

// revocation is one unit of work for the worker.
type revocation struct {
	refreshToken string
	clientID     string
	serverURL    string
}

// Worker revokes refresh tokens in the background. Enqueue never blocks
// the caller and outcomes are log-only: a failed revocation is neither
// retried nor surfaced.
type Worker struct {
	jobs   chan revocation
	client *http.Client
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// StartWorker launches the revocation goroutine. It runs until ctx is
// cancelled or Close is called; any work still queued at that point is
// abandoned.
func StartWorker(ctx context.Context, client *http.Client, log *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(ctx)
	w := &Worker{
		jobs:   make(chan revocation, 16),
		client: client,
		log:    log,
		cancel: cancel,
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case job := <-w.jobs:
				if err := RevokeRefreshToken(ctx, w.client, job.serverURL, job.clientID, job.refreshToken); err != nil {
					w.log.Warn("refresh token revocation failed",
						zap.String("server", job.serverURL),
						zap.Error(err))
					continue
				}
				w.log.Info("refresh token revoked", zap.String("server", job.serverURL))
			}
		}
	}()
	return w
}

// Enqueue submits a revocation and returns immediately. If the queue is
// full the job is dropped and logged; revocation is best-effort.
func (w *Worker) Enqueue(refreshToken, clientID, serverURL string) {
	select {
	case w.jobs <- revocation{refreshToken: refreshToken, clientID: clientID, serverURL: serverURL}:
	default:
		w.log.Warn("revocation queue full, dropping request",
			zap.String("server", serverURL))
	}
}

// Close stops the worker and waits for the in-flight call, if any, to
// observe cancellation.
func (w *Worker) Close() {
	w.cancel()
	w.wg.Wait()
}
