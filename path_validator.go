package quic

import (
	"crypto/rand"
	"io"
	"net"
	"time"

	"github.com/quivernet/quic/internal/protocol"
	"github.com/quivernet/quic/internal/utils"
	"github.com/quivernet/quic/logging"
)

// A PathValidationContext carries the address pair being probed.
// It is handed back unmodified in the result callbacks.
type PathValidationContext struct {
	LocalAddr  net.Addr
	RemoteAddr net.Addr
}

// A PathValidationReason says why a path validation was started.
// It is used for logging only.
type PathValidationReason uint8

const (
	PathValidationReasonUnknown PathValidationReason = iota
	PathValidationReasonConnectionMigration
	PathValidationReasonPortMigration
	PathValidationReasonServerPreferredAddress
)

func (r PathValidationReason) String() string {
	switch r {
	case PathValidationReasonConnectionMigration:
		return "connection migration"
	case PathValidationReasonPortMigration:
		return "port migration"
	case PathValidationReasonServerPreferredAddress:
		return "server preferred address"
	default:
		return "unknown"
	}
}

// A pathChallengeSendDelegate puts PATH_CHALLENGE frames on the wire.
// SendPathChallenge returning false vetoes the validation attempt (e.g. no
// route to the peer); the validator then fails the attempt immediately
// instead of arming a retry.
type pathChallengeSendDelegate interface {
	SendPathChallenge(data [protocol.PathChallengePayloadSize]byte, ctx *PathValidationContext) bool
	// RetryTimeout is the time to wait for a PATH_RESPONSE before
	// retransmitting the challenge.
	RetryTimeout() time.Duration
}

// A pathValidationResultDelegate receives exactly one terminal callback per
// validation attempt.
type pathValidationResultDelegate interface {
	// OnPathValidationSucceeded reports a matching PATH_RESPONSE. challengeSentTime
	// is the send time of the matched challenge, usable as an RTT sample.
	OnPathValidationSucceeded(ctx *PathValidationContext, challengeSentTime time.Time)
	OnPathValidationFailed(ctx *PathValidationContext)
}

type outstandingChallenge struct {
	data     [protocol.PathChallengePayloadSize]byte
	sentTime time.Time
}

// A pathValidator probes a network path with PATH_CHALLENGE frames.
// At most one validation is in flight at a time. The owner polls
// RetryDeadline and calls OnRetryTimeout when it passes.
// Not safe for concurrent use.
type pathValidator struct {
	sendDelegate pathChallengeSendDelegate

	context        *PathValidationContext
	resultDelegate pathValidationResultDelegate
	reason         PathValidationReason

	// history of the most recent challenges. Only these are plausible
	// matches for a response, older payloads are discarded.
	challenges []outstandingChallenge

	retryCount    int
	retryDeadline time.Time

	entropy io.Reader

	tracer *logging.ConnectionTracer
	logger utils.Logger
}

func newPathValidator(sendDelegate pathChallengeSendDelegate, tracer *logging.ConnectionTracer, logger utils.Logger) *pathValidator {
	return &pathValidator{
		sendDelegate: sendDelegate,
		challenges:   make([]outstandingChallenge, 0, protocol.MaxOutstandingPathChallenges),
		entropy:      rand.Reader,
		tracer:       tracer,
		logger:       logger,
	}
}

// HasPendingPathValidation says if a validation is in flight.
func (v *pathValidator) HasPendingPathValidation() bool { return v.context != nil }

// RetryDeadline is the time the pending challenge expires.
// The zero time means no validation is pending.
func (v *pathValidator) RetryDeadline() time.Time { return v.retryDeadline }

// StartPathValidation begins probing the path described by ctx and sends the
// first PATH_CHALLENGE right away. Starting while another validation is
// pending is a bug in the caller; the pending attempt is failed and the new
// one takes over.
func (v *pathValidator) StartPathValidation(ctx *PathValidationContext, resultDelegate pathValidationResultDelegate, reason PathValidationReason, now time.Time) {
	if v.HasPendingPathValidation() {
		v.logger.Errorf("BUG: path validation started while one is already pending")
		v.concludeFailed(logging.PathValidationFailed)
	}
	v.context = ctx
	v.resultDelegate = resultDelegate
	v.reason = reason
	if v.logger.Debug() {
		v.logger.Debugf("starting path validation to %s (%s)", ctx.RemoteAddr, reason)
	}
	if v.tracer != nil && v.tracer.PathValidationStarted != nil {
		v.tracer.PathValidationStarted(ctx.LocalAddr, ctx.RemoteAddr)
	}
	v.sendPathChallenge(now)
}

// OnPathResponse handles an incoming PATH_RESPONSE. Responses arriving
// while no validation is pending, or on a different local address than the
// one being probed, are ignored.
func (v *pathValidator) OnPathResponse(data [protocol.PathChallengePayloadSize]byte, localAddr net.Addr) {
	if !v.HasPendingPathValidation() {
		return
	}
	if localAddr.String() != v.context.LocalAddr.String() {
		if v.logger.Debug() {
			v.logger.Debugf("ignoring PATH_RESPONSE on %s, validating %s", localAddr, v.context.LocalAddr)
		}
		return
	}
	for _, c := range v.challenges {
		if c.data == data {
			ctx, delegate := v.context, v.resultDelegate
			v.reset()
			if v.tracer != nil && v.tracer.ConcludedPathValidation != nil {
				v.tracer.ConcludedPathValidation(ctx.RemoteAddr, logging.PathValidationSucceeded)
			}
			delegate.OnPathValidationSucceeded(ctx, c.sentTime)
			return
		}
	}
}

// OnRetryTimeout is called by the owner when the retry deadline passed.
// It resends the challenge, or fails the validation once the retries are
// exhausted.
func (v *pathValidator) OnRetryTimeout(now time.Time) {
	if !v.HasPendingPathValidation() {
		return
	}
	v.retryCount++
	if v.retryCount > protocol.MaxPathValidationRetries {
		if v.logger.Debug() {
			v.logger.Debugf("path validation to %s exhausted all retries", v.context.RemoteAddr)
		}
		v.concludeFailed(logging.PathValidationFailed)
		return
	}
	v.sendPathChallenge(now)
}

// CancelPathValidation aborts the pending validation, if any.
// The result delegate gets a failure callback.
func (v *pathValidator) CancelPathValidation() {
	if !v.HasPendingPathValidation() {
		return
	}
	v.concludeFailed(logging.PathValidationCanceled)
}

func (v *pathValidator) sendPathChallenge(now time.Time) {
	data := v.generatePathChallengePayload(now)
	if !v.sendDelegate.SendPathChallenge(data, v.context) {
		if v.logger.Debug() {
			v.logger.Debugf("sending PATH_CHALLENGE to %s refused, canceling path validation", v.context.RemoteAddr)
		}
		v.concludeFailed(logging.PathValidationCanceled)
		return
	}
	if v.tracer != nil && v.tracer.PathChallengeSent != nil {
		v.tracer.PathChallengeSent(v.context.RemoteAddr, data)
	}
	v.retryDeadline = now.Add(v.sendDelegate.RetryTimeout())
}

func (v *pathValidator) generatePathChallengePayload(now time.Time) [protocol.PathChallengePayloadSize]byte {
	var data [protocol.PathChallengePayloadSize]byte
	if _, err := io.ReadFull(v.entropy, data[:]); err != nil {
		panic("path validator: reading entropy failed: " + err.Error())
	}
	if len(v.challenges) == protocol.MaxOutstandingPathChallenges {
		copy(v.challenges, v.challenges[1:])
		v.challenges = v.challenges[:protocol.MaxOutstandingPathChallenges-1]
	}
	v.challenges = append(v.challenges, outstandingChallenge{data: data, sentTime: now})
	return data
}

func (v *pathValidator) concludeFailed(result logging.PathValidationResult) {
	ctx, delegate := v.context, v.resultDelegate
	v.reset()
	if v.tracer != nil && v.tracer.ConcludedPathValidation != nil {
		v.tracer.ConcludedPathValidation(ctx.RemoteAddr, result)
	}
	delegate.OnPathValidationFailed(ctx)
}

func (v *pathValidator) reset() {
	v.context = nil
	v.resultDelegate = nil
	v.challenges = v.challenges[:0]
	v.retryCount = 0
	v.retryDeadline = time.Time{}
}
