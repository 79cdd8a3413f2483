package signin

import (
	"context"

	"go.uber.org/zap"
)

// PresentationContext supplies the UI surface interactive flows present on.
type PresentationContext interface {
	// Active reports whether a surface is currently available.
	Active() bool
}

// Options configures a new Orchestrator. Provider is required for sign-in
// calls to succeed; everything else has a working default.
type Options struct {
	// Provider is the platform credential subsystem this orchestrator drives.
	Provider CredentialProvider
	// Presentation hosts the account picker; nil means interactive flows fail
	// with NO_ACTIVITY.
	Presentation PresentationContext
	// Logger defaults to a nop logger.
	Logger *zap.Logger
	// Metrics defaults to a nop recorder.
	Metrics MetricsRecorder
	// Attempts receives one record per terminal flow outcome; defaults to a
	// nop store.
	Attempts AttemptStore
	// PromptAccountCreation overrides the provider's own account-creation
	// prompt, shown best-effort when no accounts exist at all.
	PromptAccountCreation func(ctx context.Context)
}

type flowReply struct {
	signIn SignInResult
	tokens TokenRefreshResult
	err    error
}

// pendingOperation is the single in-flight request slot. At most one exists
// per orchestrator, whatever the flow type.
type pendingOperation struct {
	flow    FlowType
	nonce   string
	attempt int
	reply   chan flowReply
	ctx     context.Context
	cancel  context.CancelFunc
}

// Orchestrator serializes sign-in flows against one credential provider. All
// state lives on a single run-loop goroutine; public methods post tasks onto
// it and block until the flow resolves. A second request while one is pending
// is rejected with SIGN_IN_IN_PROGRESS, never queued.
type Orchestrator struct {
	provider              CredentialProvider
	presentation          PresentationContext
	logger                *zap.Logger
	metrics               MetricsRecorder
	attempts              AttemptStore
	promptAccountCreation func(ctx context.Context)

	tasks   chan func()
	stopped chan struct{}

	// Owned by the run loop.
	configured bool
	config     Config
	handle     CredentialProvider
	pending    *pendingOperation
	closed     bool
}

// New constructs an Orchestrator and starts its run loop.
func New(options Options) *Orchestrator {
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics := options.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	attempts := options.Attempts
	if attempts == nil {
		attempts = nopAttemptStore{}
	}
	orchestrator := &Orchestrator{
		provider:              options.Provider,
		presentation:          options.Presentation,
		logger:                logger,
		metrics:               metrics,
		attempts:              attempts,
		promptAccountCreation: options.PromptAccountCreation,
		tasks:                 make(chan func()),
		stopped:               make(chan struct{}),
	}
	go orchestrator.run()
	return orchestrator
}

func (orchestrator *Orchestrator) run() {
	for {
		select {
		case task := <-orchestrator.tasks:
			task()
		case <-orchestrator.stopped:
			// Execute whatever was already queued so no caller is left waiting;
			// tasks observe the closed flag and reply MODULE_DESTROYED.
			for {
				select {
				case task := <-orchestrator.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

func (orchestrator *Orchestrator) post(task func()) bool {
	select {
	case <-orchestrator.stopped:
		return false
	default:
	}
	select {
	case orchestrator.tasks <- task:
		return true
	case <-orchestrator.stopped:
		return false
	}
}

// Configure installs the configuration, replacing any previous one. It is
// rejected with SIGN_IN_IN_PROGRESS while an operation is pending; callers are
// expected to configure before issuing sign-in calls.
func (orchestrator *Orchestrator) Configure(ctx context.Context, configuration Config) error {
	reply := make(chan error, 1)
	posted := orchestrator.post(func() {
		if orchestrator.closed {
			reply <- newError(CodeModuleDestroyed, "orchestrator has been destroyed")
			return
		}
		if orchestrator.pending != nil {
			reply <- newError(CodeSignInInProgress, "configuration cannot change while an operation is pending")
			return
		}
		if orchestrator.provider == nil {
			reply <- newError(CodeConfigureError, "no credential provider available")
			return
		}
		normalized, configErr := normalizeConfig(configuration, orchestrator.logger)
		if configErr != nil {
			reply <- configErr
			return
		}
		orchestrator.config = normalized
		orchestrator.configured = true
		orchestrator.handle = orchestrator.provider
		orchestrator.logger.Info("configured",
			zap.String("code", "signin.configure.ok"),
			zap.String("client_id", normalized.ClientID),
			zap.Strings("scopes", normalized.Scopes),
			zap.Bool("offline_access", normalized.OfflineAccess))
		reply <- nil
	})
	if !posted {
		return newError(CodeModuleDestroyed, "orchestrator has been destroyed")
	}
	return <-reply
}

// SignIn runs the interactive flow: first restricted to previously authorized
// accounts, then retried once over all accounts if the first attempt finds no
// credential. Nonce is optional; when supplied it must pass format validation
// and is verified against the returned token's nonce claim.
func (orchestrator *Orchestrator) SignIn(ctx context.Context, nonce string) (SignInResult, error) {
	outcome := orchestrator.runFlow(ctx, FlowInteractive, nonce)
	return outcome.signIn, outcome.err
}

// SignInSilently runs the silent flow: one request over authorized accounts
// only, no fallback. A no-credential result surfaces as SIGN_IN_REQUIRED.
func (orchestrator *Orchestrator) SignInSilently(ctx context.Context, nonce string) (SignInResult, error) {
	outcome := orchestrator.runFlow(ctx, FlowSilent, nonce)
	return outcome.signIn, outcome.err
}

// GetTokens runs the token-refresh flow: one request over authorized accounts
// only, shaped as tokens. A no-credential result surfaces as NO_USER.
func (orchestrator *Orchestrator) GetTokens(ctx context.Context) (TokenRefreshResult, error) {
	outcome := orchestrator.runFlow(ctx, FlowTokenRefresh, "")
	return outcome.tokens, outcome.err
}

func (orchestrator *Orchestrator) runFlow(ctx context.Context, flow FlowType, nonce string) flowReply {
	reply := make(chan flowReply, 1)
	posted := orchestrator.post(func() {
		if precondition := orchestrator.checkPreconditions(flow, nonce); precondition != nil {
			reply <- flowReply{err: precondition}
			return
		}
		flowCtx, cancel := context.WithCancel(ctx)
		operation := &pendingOperation{
			flow:    flow,
			nonce:   nonce,
			attempt: 1,
			reply:   reply,
			ctx:     flowCtx,
			cancel:  cancel,
		}
		orchestrator.pending = operation
		orchestrator.startAttempt(operation, true)
	})
	if !posted {
		return flowReply{err: newError(CodeModuleDestroyed, "orchestrator has been destroyed")}
	}
	return <-reply
}

// checkPreconditions enforces the fail-fast guards shared by all flows. It
// runs on the loop before any provider call.
func (orchestrator *Orchestrator) checkPreconditions(flow FlowType, nonce string) *ErrorRecord {
	if orchestrator.closed {
		return newError(CodeModuleDestroyed, "orchestrator has been destroyed")
	}
	if orchestrator.pending != nil {
		orchestrator.metrics.Increment("signin.rejected.in_progress")
		return newError(CodeSignInInProgress, "another sign-in operation is already in progress")
	}
	if !orchestrator.configured || orchestrator.handle == nil {
		return newError(CodeNotConfigured, "configure must be called before sign-in")
	}
	if flow == FlowInteractive && (orchestrator.presentation == nil || !orchestrator.presentation.Active()) {
		return newError(CodeNoActivity, "no presentation surface available for interactive sign-in")
	}
	if nonce != "" {
		if formatErr := ValidateNonceFormat(nonce); formatErr != nil {
			return formatErr.(*ErrorRecord)
		}
	}
	return nil
}

// startAttempt issues one provider call off-loop and posts its completion back
// onto the loop. The loop itself never blocks on the provider.
func (orchestrator *Orchestrator) startAttempt(operation *pendingOperation, authorizedOnly bool) {
	request := CredentialRequest{
		AuthorizedAccountsOnly: authorizedOnly,
		Nonce:                  operation.nonce,
		ClientID:               orchestrator.config.ClientID,
		Scopes:                 orchestrator.config.Scopes,
		OfflineAccess:          orchestrator.config.OfflineAccess,
	}
	handle := orchestrator.handle
	go func() {
		outcome := handle.GetCredential(operation.ctx, request)
		posted := orchestrator.post(func() {
			orchestrator.finishAttempt(operation, outcome)
		})
		if !posted {
			// Orchestrator destroyed while the provider was suspended; the
			// operation was already failed with MODULE_DESTROYED.
			operation.cancel()
		}
	}()
}

func (orchestrator *Orchestrator) finishAttempt(operation *pendingOperation, outcome CredentialOutcome) {
	if orchestrator.pending != operation {
		// Preempted by sign-out or destroy; the reply was already delivered.
		return
	}

	if outcome.Kind == OutcomeCredential {
		orchestrator.finishSuccess(operation, outcome.Credential)
		return
	}

	if operation.flow == FlowInteractive && isNoCredential(outcome) {
		if operation.attempt == 1 {
			// Single fallback: relax the filter so first-time accounts can
			// sign up. Only the no-credential signal triggers it.
			operation.attempt = 2
			orchestrator.metrics.Increment("signin.interactive.fallback")
			orchestrator.logger.Info("no authorized credential, retrying over all accounts",
				zap.String("code", "signin.interactive.fallback"))
			orchestrator.startAttempt(operation, false)
			return
		}
		// Both attempts found nothing: there are no accounts at all. Nudge
		// the platform to create one, then surface the error.
		orchestrator.nudgeAccountCreation(operation.ctx)
		orchestrator.resolveError(operation,
			newErrorDetail(CodeNoAccountsAvailable, "no accounts available on this device", outcome.Detail))
		return
	}

	orchestrator.resolveError(operation, classifyOutcome(outcome, operation.flow))
}

func (orchestrator *Orchestrator) finishSuccess(operation *pendingOperation, credential Credential) {
	if operation.nonce != "" {
		if bindingErr := ValidateNonceBinding(credential.IDToken, operation.nonce); bindingErr != nil {
			// Security-relevant: terminate immediately, never retry.
			orchestrator.logger.Warn("nonce binding validation failed",
				zap.String("code", "signin.nonce.binding_failed"),
				zap.String("flow", string(operation.flow)))
			orchestrator.resolveError(operation, bindingErr.(*ErrorRecord))
			return
		}
	}

	if operation.flow == FlowTokenRefresh {
		result, buildErr := buildTokenRefreshResult(credential)
		if buildErr != nil {
			orchestrator.resolveError(operation, buildErr)
			return
		}
		orchestrator.resolve(operation, flowReply{tokens: result}, result.IDToken)
		return
	}

	result, buildErr := buildSignInResult(credential, operation.nonce)
	if buildErr != nil {
		orchestrator.resolveError(operation, buildErr)
		return
	}
	orchestrator.resolve(operation, flowReply{signIn: result}, result.IDToken)
}

func (orchestrator *Orchestrator) nudgeAccountCreation(ctx context.Context) {
	if orchestrator.promptAccountCreation != nil {
		orchestrator.promptAccountCreation(ctx)
		return
	}
	if creator, ok := orchestrator.handle.(AccountCreator); ok {
		creator.PromptAccountCreation(ctx)
	}
}

// resolve delivers a terminal result. The pending slot is cleared before the
// reply is sent, so the caller may start a new operation from its callback.
func (orchestrator *Orchestrator) resolve(operation *pendingOperation, reply flowReply, idToken string) {
	orchestrator.pending = nil
	operation.cancel()
	orchestrator.metrics.Increment("signin." + string(operation.flow) + ".success")
	orchestrator.recordAttempt(operation.flow, AttemptOutcomeSuccess, subjectOf(idToken))
	operation.reply <- reply
}

func (orchestrator *Orchestrator) resolveError(operation *pendingOperation, record *ErrorRecord) {
	orchestrator.pending = nil
	operation.cancel()
	orchestrator.metrics.Increment("signin." + string(operation.flow) + ".failure")
	orchestrator.logger.Info("sign-in flow failed",
		zap.String("code", "signin.flow.failed"),
		zap.String("flow", string(operation.flow)),
		zap.String("outcome", string(record.Code)))
	orchestrator.recordAttempt(operation.flow, string(record.Code), "")
	operation.reply <- flowReply{err: record}
}

func (orchestrator *Orchestrator) recordAttempt(flow FlowType, outcome string, subject string) {
	record := AttemptRecord{Flow: flow, Outcome: outcome, Subject: subject}
	if err := orchestrator.attempts.Append(context.Background(), record); err != nil {
		orchestrator.logger.Warn("attempt record not persisted",
			zap.String("code", "signin.audit.append_failed"),
			zap.Error(err))
	}
}

func subjectOf(idToken string) string {
	return claimString(decodeTokenClaims(idToken), "sub")
}

// SignOut fails any pending operation with SIGN_OUT_REQUESTED and clears the
// configuration and provider handle. It is idempotent and purely local; no
// server-side grant is revoked.
func (orchestrator *Orchestrator) SignOut(ctx context.Context) error {
	reply := make(chan error, 1)
	posted := orchestrator.post(func() {
		if orchestrator.closed {
			reply <- newError(CodeModuleDestroyed, "orchestrator has been destroyed")
			return
		}
		if orchestrator.pending != nil {
			orchestrator.resolveError(orchestrator.pending,
				newError(CodeSignOutRequested, "sign-out was requested while the operation was pending"))
		}
		orchestrator.config = Config{}
		orchestrator.configured = false
		orchestrator.handle = nil
		orchestrator.logger.Info("signed out", zap.String("code", "signin.signout.ok"))
		reply <- nil
	})
	if !posted {
		return newError(CodeModuleDestroyed, "orchestrator has been destroyed")
	}
	return <-reply
}

// IsSignedIn always reports false. The orchestrator never tracks persistent
// session state; callers own their own session model.
func (orchestrator *Orchestrator) IsSignedIn() bool {
	return false
}

// Availability reports whether a credential provider is present at all, the
// platform-defined availability probe.
func (orchestrator *Orchestrator) Availability() bool {
	return orchestrator.provider != nil
}

// Close destroys the orchestrator: any pending operation fails with
// MODULE_DESTROYED and later calls are rejected with the same code.
func (orchestrator *Orchestrator) Close() {
	done := make(chan struct{})
	posted := orchestrator.post(func() {
		defer close(done)
		if orchestrator.closed {
			return
		}
		if orchestrator.pending != nil {
			orchestrator.resolveError(orchestrator.pending,
				newError(CodeModuleDestroyed, "orchestrator was destroyed while the operation was pending"))
		}
		orchestrator.config = Config{}
		orchestrator.configured = false
		orchestrator.handle = nil
		orchestrator.closed = true
		close(orchestrator.stopped)
	})
	if posted {
		<-done
	}
}
