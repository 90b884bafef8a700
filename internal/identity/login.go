package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/ispauth/pkg/auth"
	"github.com/giantswarm/ispauth/pkg/logging"
)

// otpMechanisms never take the login secret as their answer.
var otpMechanisms = map[string]bool{
	"EMAIL": true,
	"SMS":   true,
	"OTP":   true,
	"OATH":  true,
	"PF":    true,
}

// LoginRequest carries everything a single login needs.
type LoginRequest struct {
	Username string
	Settings auth.IdentitySettings
	// Secret answers password-like mechanisms once.
	Secret auth.Secret
}

// login tracks one run of the exchange.
type login struct {
	c          *Client
	req        LoginRequest
	attemptID  string
	endpoint   string
	sessionID  string
	secretUsed bool
}

// Login authenticates req.Username and returns the issued token.
//
// Provider refusals and transport failures are
// *auth.AuthenticationRejectedError, the latter keeping the cause. A
// mechanism that needs a typed answer while Settings.Interactive is false
// fails with *auth.InteractiveInputRequiredError.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*auth.Token, error) {
	l := &login{c: c, req: req, attemptID: uuid.NewString()}
	tok, err := l.run(ctx)
	if err != nil {
		err = classify(err)
		c.setState(StateFailed, err)
		logging.Debug("Identity", "Login %s for %s failed: %v", l.attemptID, req.Username, err)
		return nil, err
	}
	c.setState(StateAuthenticated, nil)
	return tok, nil
}

// classify turns transport and decoding failures into a rejection so every
// Login error is one of the auth error kinds.
func classify(err error) error {
	var (
		resolveErr *auth.EndpointResolutionError
		noneErr    *auth.NoChallengeAvailableError
		inputErr   *auth.InteractiveInputRequiredError
		rejectErr  *auth.AuthenticationRejectedError
	)
	switch {
	case errors.As(err, &resolveErr), errors.As(err, &noneErr),
		errors.As(err, &inputErr), errors.As(err, &rejectErr):
		return err
	}
	return &auth.AuthenticationRejectedError{Summary: "RequestFailed", Message: err.Error(), Err: err}
}

func (l *login) transition(s State) {
	logging.Debug("Identity", "Login %s: %s -> %s", l.attemptID, l.c.State(), s)
	l.c.setState(s, nil)
}

func (l *login) run(ctx context.Context) (*auth.Token, error) {
	l.transition(StateResolvingEndpoint)
	endpoint, err := l.c.resolver.Resolve(ctx, l.req.Username, l.req.Settings.URL, l.req.Settings.TenantSubdomain)
	if err != nil {
		return nil, err
	}
	l.endpoint = endpoint

	l.transition(StateAwaitingChallenge)
	var start startAuthResponse
	err = l.c.postJSON(ctx, endpoint+"/Security/StartAuthentication", startAuthRequest{
		User:                  l.req.Username,
		Version:               "1.0",
		PlatformTokenResponse: true,
	}, &start)
	if err != nil {
		return nil, fmt.Errorf("start authentication: %w", err)
	}
	if !start.Success {
		return nil, &auth.AuthenticationRejectedError{Summary: start.Result.Summary, Message: start.Message}
	}
	if !hasMechanisms(start.Result.Challenges) {
		return nil, &auth.NoChallengeAvailableError{Username: l.req.Username}
	}
	l.sessionID = start.Result.SessionID

	for idx := 0; idx < len(start.Result.Challenges); idx++ {
		mech := SelectMechanism(start.Result.Challenges[idx].Mechanisms, l.req.Settings.MFAType)
		if mech == nil {
			logging.Debug("Identity", "Login %s: challenge %d offers no mechanism, skipping", l.attemptID, idx+1)
			continue
		}

		l.transition(StateAwaitingMechanismAnswer)
		result, err := l.answerWithRetry(ctx, *mech)
		if err != nil {
			return nil, err
		}

		switch result.Result.Summary {
		case SummaryLoginSuccess:
			return l.token(result)
		case SummaryStartNextChallenge:
			logging.Debug("Identity", "Login %s: challenge %d satisfied, %d remaining",
				l.attemptID, idx+1, len(start.Result.Challenges)-idx-1)
		}
	}

	return nil, &auth.AuthenticationRejectedError{
		Summary: SummaryStartNextChallenge,
		Message: "identity provider asked for another challenge but none is left",
	}
}

// answerWithRetry answers mech and asks again once if the provider rejects
// the answer. It returns only LoginSuccess or StartNextChallenge results.
func (l *login) answerWithRetry(ctx context.Context, mech Mechanism) (*advanceAuthResponse, error) {
	for attempt := 0; ; attempt++ {
		resp, err := l.answer(ctx, mech)
		if err != nil {
			return nil, err
		}

		summary := resp.summary()
		if resp.Success && (summary == SummaryLoginSuccess || summary == SummaryStartNextChallenge) {
			return resp, nil
		}

		rejected := &auth.AuthenticationRejectedError{Summary: summary, Message: resp.Message}
		if attempt >= maxAnswerRetries || !l.req.Settings.Interactive {
			return nil, rejected
		}
		logging.Warn("Identity", "Login %s: %s answer rejected (%s), asking again", l.attemptID, mech.Name, summary)
	}
}

// answer performs the AdvanceAuthentication calls for one mechanism.
func (l *login) answer(ctx context.Context, mech Mechanism) (*advanceAuthResponse, error) {
	switch mech.AnswerType {
	case answerTypeStartOob:
		if !l.req.Settings.Interactive {
			return nil, &auth.InteractiveInputRequiredError{Mechanism: mech.Name}
		}
		if err := l.startOOB(ctx, mech); err != nil {
			return nil, err
		}
		return l.poll(ctx, mech)

	case answerTypeStartTextOob:
		if !l.req.Settings.Interactive {
			return nil, &auth.InteractiveInputRequiredError{Mechanism: mech.Name}
		}
		if err := l.startOOB(ctx, mech); err != nil {
			return nil, err
		}
		code, err := l.c.ask(mech, false)
		if err != nil {
			return nil, err
		}
		return l.advance(ctx, mech, actionAnswer, code)

	default:
		answer, err := l.textAnswer(mech)
		if err != nil {
			return nil, err
		}
		return l.advance(ctx, mech, actionAnswer, answer)
	}
}

// startOOB asks the provider to send the out-of-band message for mech.
func (l *login) startOOB(ctx context.Context, mech Mechanism) error {
	resp, err := l.advance(ctx, mech, actionStartOOB, "")
	if err != nil {
		return err
	}
	if !resp.Success {
		return &auth.AuthenticationRejectedError{Summary: resp.summary(), Message: resp.Message}
	}
	return nil
}

// textAnswer uses the login secret for password-like mechanisms the first
// time and prompts otherwise.
func (l *login) textAnswer(mech Mechanism) (string, error) {
	passwordLike := IsPasswordMechanism(mech)
	if passwordLike && !l.secretUsed && !l.req.Secret.IsEmpty() {
		l.secretUsed = true
		return l.req.Secret.Reveal(), nil
	}
	if !l.req.Settings.Interactive {
		return "", &auth.InteractiveInputRequiredError{Mechanism: mech.Name}
	}
	return l.c.ask(mech, passwordLike)
}

func (c *Client) ask(mech Mechanism, hidden bool) (string, error) {
	if c.prompter == nil {
		return "", &auth.InteractiveInputRequiredError{Mechanism: mech.Name}
	}
	label := mech.PromptMechChosen
	if label == "" {
		label = fmt.Sprintf("Enter %s answer", strings.ToLower(mech.Name))
	}
	var (
		answer string
		err    error
	)
	if hidden {
		answer, err = c.prompter.Password(label)
	} else {
		answer, err = c.prompter.Code(label)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read answer for %s: %w", mech.Name, err)
	}
	return answer, nil
}

func (l *login) advance(ctx context.Context, mech Mechanism, action, answer string) (*advanceAuthResponse, error) {
	var resp advanceAuthResponse
	err := l.c.postJSON(ctx, l.endpoint+"/Security/AdvanceAuthentication", advanceAuthRequest{
		SessionID:   l.sessionID,
		MechanismID: mech.MechanismID,
		Action:      action,
		Answer:      answer,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("advance authentication (%s %s): %w", mech.Name, action, err)
	}
	return &resp, nil
}

// poll waits for an out-of-band approval.
func (l *login) poll(ctx context.Context, mech Mechanism) (*advanceAuthResponse, error) {
	deadline := l.c.now().Add(l.c.maxPollDuration)
	ticker := time.NewTicker(l.c.pollInterval)
	defer ticker.Stop()

	for {
		resp, err := l.advance(ctx, mech, actionPoll, "")
		if err != nil {
			return nil, err
		}
		if !resp.Success || resp.Result.Summary != SummaryOobPending {
			return resp, nil
		}
		if l.c.now().After(deadline) {
			return nil, &auth.AuthenticationRejectedError{Summary: SummaryOobPending, Message: "timed out waiting for approval"}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (l *login) token(resp *advanceAuthResponse) (*auth.Token, error) {
	if resp.Result.Token == "" {
		return nil, &auth.AuthenticationRejectedError{Summary: SummaryLoginSuccess, Message: "response carried no token"}
	}

	lifetime := DefaultTokenLifetime
	if resp.Result.TokenLifetime > 0 {
		lifetime = time.Duration(resp.Result.TokenLifetime) * time.Second
	}

	metadata := map[string]string{
		auth.MetadataEnv:       l.c.resolver.Env(),
		auth.MetadataAttemptID: l.attemptID,
	}
	cookies, err := l.c.exportCookies(l.endpoint)
	if err != nil {
		logging.Warn("Identity", "Could not capture session cookies: %v", err)
	} else if cookies != "" {
		metadata[auth.MetadataCookies] = cookies
	}

	return &auth.Token{
		Token:        auth.NewSecret(resp.Result.Token),
		Username:     l.req.Username,
		Endpoint:     l.endpoint,
		Type:         auth.TokenTypeJWT,
		Method:       auth.MethodIdentity,
		ExpiresAt:    l.c.now().Add(lifetime),
		RefreshToken: auth.NewSecret(resp.Result.RefreshToken),
		Metadata:     metadata,
	}, nil
}

// SelectMechanism returns the mechanism whose name matches preferred
// (case-insensitive) or the first one.
func SelectMechanism(mechs []Mechanism, preferred string) *Mechanism {
	if len(mechs) == 0 {
		return nil
	}
	if preferred != "" {
		for i := range mechs {
			if strings.EqualFold(mechs[i].Name, preferred) {
				return &mechs[i]
			}
		}
	}
	return &mechs[0]
}

// IsPasswordMechanism reports whether the login secret may answer mech.
func IsPasswordMechanism(mech Mechanism) bool {
	name := strings.ToUpper(mech.Name)
	if name == "UP" {
		return true
	}
	return mech.AnswerType == answerTypeText && !otpMechanisms[name]
}

func hasMechanisms(challenges []Challenge) bool {
	for _, ch := range challenges {
		if len(ch.Mechanisms) > 0 {
			return true
		}
	}
	return false
}
