// Package executor implements spec component 4.E: the attempt loop that
// turns one Request into a Response or a terminal *model.ClientError,
// driving the RetryEngine and PoolManager underneath it.
package executor

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/searchktools/fastclient/core/connpool"
	"github.com/searchktools/fastclient/core/model"
	"github.com/searchktools/fastclient/core/observability"
	"github.com/searchktools/fastclient/core/pools"
	"github.com/searchktools/fastclient/core/retry"
)

// maxDrainBytes caps how much of a retryable-status response body the
// Executor will drain before giving up and poisoning the connection. See
// DESIGN.md's Open Question decision.
const maxDrainBytes = 64 * 1024

// Option configures an Executor, following the functional-options idiom
// used across the corpus for library construction.
type Option func(*Executor)

// WithMonitor attaches a PerformanceMonitor that records per-origin
// latency and error rate for every attempt.
func WithMonitor(m *observability.PerformanceMonitor) Option {
	return func(ex *Executor) { ex.monitor = m }
}

// WithObserver registers a callback invoked once per attempt that the
// RetryEngine judges, with a retry-audit-trail entry (spec 4.E
// "Observable side effects"). The attempt that returns a Response to the
// caller and an attempt that fails with pool exhaustion produce no entry. The
// callback is dispatched through dispatch (if set) so a slow observer
// never stalls the attempt path.
func WithObserver(observer Observer) Option {
	return func(ex *Executor) { ex.observer = observer }
}

// WithDispatch sets the worker pool used to deliver observer callbacks
// off the hot path. Without one, observer callbacks run inline.
func WithDispatch(dispatch *pools.DispatchPool) Option {
	return func(ex *Executor) { ex.dispatch = dispatch }
}

// WithLogger overrides the default logger used for lifecycle-only
// logging (attempt detail is never logged here; that is the observer's
// job).
func WithLogger(logger *log.Logger) Option {
	return func(ex *Executor) { ex.logger = logger }
}

// Executor runs the attempt loop for one Request at a time, reentrantly
// safe for concurrent calls to Execute across goroutines.
type Executor struct {
	pool   *connpool.PoolManager
	engine *retry.Engine

	monitor  *observability.PerformanceMonitor
	dispatch *pools.DispatchPool
	observer Observer
	logger   *log.Logger

	attempts *pools.FastPool
	handles  *pools.HandlePool
}

// New builds an Executor bound to pool and engine.
func New(pool *connpool.PoolManager, engine *retry.Engine, opts ...Option) *Executor {
	ex := &Executor{
		pool:     pool,
		engine:   engine,
		logger:   log.Default(),
		attempts: pools.NewFastPool(func() any { return &model.Attempt{} }),
		handles: pools.NewHandlePool(pools.HandlePoolConfig{
			New:        func() any { return &bodyHandle{} },
			Reset:      func(o any) { *(o.(*bodyHandle)) = bodyHandle{} },
			WarmupSize: 64,
		}),
	}
	for _, opt := range opts {
		opt(ex)
	}
	return ex
}

// Execute runs request through the attempt loop described in spec 4.E
// until it succeeds, is terminally refused by the RetryEngine, or the
// effective deadline elapses.
func (ex *Executor) Execute(ctx context.Context, req *model.Request) (*model.Response, error) {
	deadline := ex.totalDeadline(time.Now(), req)
	idempotent := req.Idempotent()
	maxRetries := ex.engine.Policy.MaxRetries
	if req.MaxRetriesOverride != nil {
		maxRetries = *req.MaxRetriesOverride
	}

	var lastOutcome model.Outcome
	var lastErr error
	attemptIndex := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, &model.ClientError{Kind: model.ErrCanceled, Attempts: attemptIndex, Err: err}
		}
		if !time.Now().Before(deadline) {
			if lastErr == nil {
				return nil, &model.ClientError{Kind: model.ErrTimeout, Category: retry.CategoryTimeout.String(), Attempts: attemptIndex, Err: context.DeadlineExceeded}
			}
			return nil, ex.terminalError(lastOutcome, lastErr, attemptIndex)
		}

		attempt := ex.acquireAttempt(attemptIndex)

		checkoutCtx, cancelCheckout := context.WithDeadline(ctx, deadline)
		conn, err := ex.pool.Acquire(checkoutCtx, req)
		cancelCheckout()
		if err != nil {
			ex.releaseAttempt(attempt)
			if errors.Is(err, model.ErrPoolExhausted) {
				// Spec 4.E step 2a: pool exhaustion is always terminal,
				// never routed through the retry engine.
				return nil, &model.ClientError{Kind: model.ErrPoolExhausted, Category: "pool", Attempts: attemptIndex, Err: err}
			}

			// A dial/connect failure: no bytes of this attempt ever left
			// the client, so it is always safe to retry regardless of
			// idempotency (spec §4.D rule 2's carve-out).
			attempt.Outcome = model.Outcome{Kind: model.OutcomeNetwork, NetworkKind: model.NetConnectRefused, Err: err}
			attempt.BodyWritten = false
			lastOutcome, lastErr = attempt.Outcome, err

			verdict := ex.engine.Decide(*attempt, idempotent, maxRetries)
			ex.audit(attempt, verdict)
			attemptIndex = attempt.Index + 1
			ex.releaseAttempt(attempt)

			if verdict.Kind == retry.VerdictGiveup {
				return nil, ex.terminalError(lastOutcome, lastErr, attemptIndex)
			}
			if !ex.sleep(ctx, verdict.Delay) {
				return nil, &model.ClientError{Kind: model.ErrCanceled, Attempts: attemptIndex, Err: ctx.Err()}
			}
			continue
		}

		rewindBody(req.Body)

		attemptTimeout := ex.perAttemptTimeout(deadline)
		attemptCtx, cancelAttempt := context.WithTimeout(ctx, attemptTimeout)
		started := time.Now()
		resp, sendErr := conn.Transport().Send(attemptCtx, req)
		attemptDone := attemptCtx.Err()
		cancelAttempt()

		if sendErr != nil {
			ex.pool.Release(conn, connpool.BrokenDisposition)
			ex.record(req.Origin.String(), time.Since(started), true)

			outcome, bodyWritten := classifySendError(sendErr, req, attemptDone)
			attempt.Outcome = outcome
			attempt.BodyWritten = bodyWritten
			lastOutcome, lastErr = outcome, sendErr

			verdict := ex.engine.Decide(*attempt, idempotent, maxRetries)
			verdict = ex.guardUnsafeReplay(verdict, attempt, req)
			ex.audit(attempt, verdict)
			attemptIndex = attempt.Index + 1
			ex.releaseAttempt(attempt)

			if verdict.Kind == retry.VerdictGiveup {
				return nil, ex.terminalError(lastOutcome, lastErr, attemptIndex)
			}
			if !ex.sleep(ctx, verdict.Delay) {
				return nil, &model.ClientError{Kind: model.ErrCanceled, Attempts: attemptIndex, Err: ctx.Err()}
			}
			continue
		}

		if !ex.engine.Policy.IsRetryableStatus(resp.StatusCode) {
			ex.record(req.Origin.String(), time.Since(started), false)
			ex.releaseAttempt(attempt)
			resp.Body = ex.newBodyHandle(resp.Body, conn)
			return resp, nil
		}

		// Retryable status: drain and discard, bounded, then evaluate as
		// an HttpStatus Outcome (spec 4.E step e).
		ex.drainAndDiscard(resp)
		disposition := connpool.Reusable
		if conn.Transport().Broken() {
			disposition = connpool.BrokenDisposition
		}
		ex.pool.Release(conn, disposition)
		ex.record(req.Origin.String(), time.Since(started), true)

		outcome := model.Outcome{Kind: model.OutcomeHTTPStatus, StatusCode: resp.StatusCode, Header: resp.Header}
		attempt.Outcome = outcome
		attempt.BodyWritten = req.HasBody()
		lastOutcome, lastErr = outcome, &model.ClientError{Kind: model.ErrHTTP, StatusCode: resp.StatusCode, Header: resp.Header}

		verdict := ex.engine.Decide(*attempt, idempotent, maxRetries)
		verdict = ex.guardUnsafeReplay(verdict, attempt, req)
		ex.audit(attempt, verdict)
		attemptIndex = attempt.Index + 1
		ex.releaseAttempt(attempt)

		if verdict.Kind == retry.VerdictGiveup {
			return nil, ex.terminalError(lastOutcome, lastErr, attemptIndex)
		}
		if !ex.sleep(ctx, verdict.Delay) {
			return nil, &model.ClientError{Kind: model.ErrCanceled, Attempts: attemptIndex, Err: ctx.Err()}
		}
	}
}

func (ex *Executor) acquireAttempt(index int) *model.Attempt {
	a := ex.attempts.Get().(*model.Attempt)
	*a = model.Attempt{Index: index, StartedAt: time.Now()}
	return a
}

func (ex *Executor) releaseAttempt(a *model.Attempt) {
	ex.attempts.Put(a)
}

func (ex *Executor) totalDeadline(now time.Time, req *model.Request) time.Time {
	d := req.Timeout
	if d <= 0 {
		d = ex.engine.Policy.TotalDeadline
	}
	if ex.engine.Policy.TotalDeadline > 0 && ex.engine.Policy.TotalDeadline < d {
		d = ex.engine.Policy.TotalDeadline
	}
	if d <= 0 {
		d = 30 * time.Second
	}
	return now.Add(d)
}

func (ex *Executor) perAttemptTimeout(deadline time.Time) time.Duration {
	remaining := time.Until(deadline)
	perAttempt := ex.engine.Policy.PerAttemptTimeout
	if perAttempt <= 0 || remaining < perAttempt {
		return remaining
	}
	return perAttempt
}

// guardUnsafeReplay defends against replaying a partially-transmitted,
// non-seekable body: the RetryEngine's Decide only reasons about
// idempotency and category, not about whether the body stream can
// actually be rewound. See DESIGN.md's Open Question decision.
func (ex *Executor) guardUnsafeReplay(v retry.Verdict, attempt *model.Attempt, req *model.Request) retry.Verdict {
	if v.Kind == retry.VerdictGiveup || !attempt.BodyWritten || !req.HasBody() {
		return v
	}
	if _, ok := req.Body.Reader.(io.Seeker); !ok {
		return retry.Verdict{Kind: retry.VerdictGiveup, Reason: "body already transmitted and not seekable"}
	}
	return v
}

func rewindBody(body *model.Body) {
	if body == nil || body.Reader == nil {
		return
	}
	if seeker, ok := body.Reader.(io.Seeker); ok {
		_, _ = seeker.Seek(0, io.SeekStart)
	}
}

// classifySendError maps a Transport.Send error to an Outcome and
// reports whether any request-body byte is known to have left the
// client. The wrapped error text distinguishes the write-head stage
// (see core/transport/conn.go's Send error wrapping) from
// everything after it, since the Transport interface does not expose
// finer-grained phase information.
func classifySendError(err error, req *model.Request, ctxErr error) (model.Outcome, bool) {
	bodyWritten := req.HasBody() && !strings.Contains(err.Error(), "write head")

	if errors.Is(ctxErr, context.DeadlineExceeded) {
		phase := model.PhaseReadHeaders
		if !bodyWritten {
			if req.HasBody() {
				phase = model.PhaseWrite
			} else {
				phase = model.PhaseConnect
			}
		}
		return model.Outcome{Kind: model.OutcomeTimeout, TimeoutPhase: phase, Err: err}, bodyWritten
	}

	switch {
	case errors.Is(err, model.ErrProtocol):
		return model.Outcome{Kind: model.OutcomeProtocolError, Err: err}, bodyWritten
	default:
		return model.Outcome{Kind: model.OutcomeNetwork, NetworkKind: model.NetReset, Err: err}, bodyWritten
	}
}

func (ex *Executor) terminalError(outcome model.Outcome, cause error, attempts int) error {
	kind := model.ErrNetwork
	switch outcome.Kind {
	case model.OutcomeTimeout:
		kind = model.ErrTimeout
	case model.OutcomeProtocolError:
		kind = model.ErrProtocol
	case model.OutcomeHTTPStatus:
		kind = model.ErrHTTP
	case model.OutcomeCanceled:
		kind = model.ErrCanceled
	}
	return &model.ClientError{
		Kind:       kind,
		Category:   ex.engine.Classify(outcome).String(),
		StatusCode: outcome.StatusCode,
		Header:     outcome.Header,
		Attempts:   attempts,
		Err:        cause,
	}
}

func (ex *Executor) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (ex *Executor) record(origin string, d time.Duration, isError bool) {
	if ex.monitor != nil {
		ex.monitor.RecordRequest(origin, d, isError)
	}
}

// drainAndDiscard reads up to maxDrainBytes+1 bytes of resp's body and
// closes it. A body larger than the cap is left un-drained by the
// underlying bodyReader, which poisons the Transport on Close — the
// caller checks Transport.Broken() afterward rather than this function
// returning a verdict of its own.
func (ex *Executor) drainAndDiscard(resp *model.Response) {
	if resp.Body == nil {
		return
	}
	_, _ = io.CopyN(io.Discard, resp.Body, maxDrainBytes+1)
	_ = resp.Body.Close()
}

// AuditEntry is one line of the retry audit trail (spec 4.E "Observable
// side effects": "one entry in a retry audit trail per attempt
// {attempt-index, category, chosen delay}").
type AuditEntry struct {
	AttemptIndex int
	Category     string
	Verdict      string
	Delay        time.Duration
	Reason       string
}

// Observer receives one AuditEntry per attempt that the RetryEngine
// judged; the successful final attempt is not reported.
type Observer func(AuditEntry)

func (ex *Executor) audit(attempt *model.Attempt, verdict retry.Verdict) {
	if ex.observer == nil {
		return
	}
	entry := AuditEntry{
		AttemptIndex: attempt.Index,
		Category:     ex.engine.Classify(attempt.Outcome).String(),
		Verdict:      verdictString(verdict.Kind),
		Delay:        verdict.Delay,
		Reason:       verdict.Reason,
	}
	if ex.dispatch != nil {
		if ex.dispatch.Submit(func() { ex.observer(entry) }) {
			return
		}
	}
	ex.observer(entry)
}

func verdictString(k retry.VerdictKind) string {
	switch k {
	case retry.VerdictGiveup:
		return "giveup"
	case retry.VerdictRetryAfter:
		return "retry_after"
	case retry.VerdictRetryNow:
		return "retry_now"
	default:
		return "unknown"
	}
}

// bodyHandle is the caller-facing body handle described in spec §9's
// design notes: it must be fully read or explicitly discarded before the
// owning Connection is released, and it releases exactly once. Handles
// are pooled via Executor.handles (a HandlePool) rather than allocated
// fresh per response, per the response-object-pooling supplement.
type bodyHandle struct {
	inner   io.ReadCloser
	conn    *connpool.Connection
	pool    *connpool.PoolManager
	handles *pools.HandlePool
	once    sync.Once
}

func (ex *Executor) newBodyHandle(inner io.ReadCloser, conn *connpool.Connection) *bodyHandle {
	h := ex.handles.Get().(*bodyHandle)
	h.inner = inner
	h.conn = conn
	h.pool = ex.pool
	h.handles = ex.handles
	return h
}

func (b *bodyHandle) Read(p []byte) (int, error) {
	return b.inner.Read(p)
}

func (b *bodyHandle) Close() error {
	err := b.inner.Close()
	b.once.Do(func() {
		disposition := connpool.Reusable
		if b.conn.Transport().Broken() {
			disposition = connpool.BrokenDisposition
		}
		b.pool.Release(b.conn, disposition)
		if handles := b.handles; handles != nil {
			handles.Put(b)
		}
	})
	return err
}
