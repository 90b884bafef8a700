package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/ispauth/internal/httpx"
	"github.com/giantswarm/ispauth/internal/prompt"
	"github.com/giantswarm/ispauth/pkg/auth"
)

// fakeTenant serves StartAuthentication and replays scripted
// AdvanceAuthentication responses.
type fakeTenant struct {
	t          *testing.T
	start      startAuthResponse
	advance    []advanceAuthResponse
	mu         sync.Mutex
	advanceReq []advanceAuthRequest
	startCalls int
}

func (f *fakeTenant) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("X-IDAP-NATIVE-CLIENT") != "true" {
		f.t.Errorf("missing X-IDAP-NATIVE-CLIENT header on %s", r.URL.Path)
	}

	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/Security/StartAuthentication":
		f.startCalls++
		http.SetCookie(w, &http.Cookie{Name: "sess", Value: "mfa-ok", Path: "/"})
		_ = json.NewEncoder(w).Encode(f.start)
	case "/Security/AdvanceAuthentication":
		var req advanceAuthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			f.t.Errorf("bad advance body: %v", err)
		}
		f.advanceReq = append(f.advanceReq, req)
		if len(f.advance) == 0 {
			http.Error(w, "unexpected advance call", http.StatusInternalServerError)
			return
		}
		resp := f.advance[0]
		f.advance = f.advance[1:]
		_ = json.NewEncoder(w).Encode(resp)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeTenant) requests() []advanceAuthRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]advanceAuthRequest(nil), f.advanceReq...)
}

func upMechanism() Mechanism {
	return Mechanism{MechanismID: "mech-up", Name: "UP", AnswerType: answerTypeText}
}

func emailMechanism() Mechanism {
	return Mechanism{MechanismID: "mech-email", Name: "EMAIL", AnswerType: answerTypeText}
}

func success(token string, lifetime int) advanceAuthResponse {
	return advanceAuthResponse{Success: true, Result: advanceAuthResult{
		Summary:       SummaryLoginSuccess,
		Token:         token,
		RefreshToken:  "refresh-" + token,
		TokenLifetime: lifetime,
	}}
}

func nextChallenge() advanceAuthResponse {
	return advanceAuthResponse{Success: true, Result: advanceAuthResult{Summary: SummaryStartNextChallenge}}
}

func rejected() advanceAuthResponse {
	return advanceAuthResponse{Success: false, Message: "Authentication (login or challenge) has failed."}
}

func startWith(challenges ...Challenge) startAuthResponse {
	return startAuthResponse{Success: true, Result: startAuthResult{SessionID: "session-1", Challenges: challenges}}
}

func newTestClient(t *testing.T, p prompt.Prompter) *Client {
	t.Helper()
	hc, err := httpx.NewClient(httpx.Options{Timeout: 5 * time.Second})
	require.NoError(t, err)
	opts := []Option{WithPollInterval(time.Millisecond), WithDeployEnv("prod")}
	if p != nil {
		opts = append(opts, WithPrompter(p))
	}
	return NewClient(hc, opts...)
}

func TestLogin_PasswordOnly(t *testing.T) {
	tenant := &fakeTenant{
		t:       t,
		start:   startWith(Challenge{Mechanisms: []Mechanism{upMechanism()}}),
		advance: []advanceAuthResponse{success("token", 123)},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	c := newTestClient(t, nil)
	before := time.Now()
	tok, err := c.Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL},
		Secret:   auth.NewSecret("hunter2"),
	})
	require.NoError(t, err)

	assert.Equal(t, "token", tok.Token.Reveal())
	assert.Equal(t, "refresh-token", tok.RefreshToken.Reveal())
	assert.Equal(t, "user@acme", tok.Username)
	assert.Equal(t, server.URL, tok.Endpoint)
	assert.Equal(t, auth.TokenTypeJWT, tok.Type)
	assert.Equal(t, auth.MethodIdentity, tok.Method)
	assert.WithinDuration(t, before.Add(123*time.Second), tok.ExpiresAt, 5*time.Second)
	assert.Equal(t, "prod", tok.Meta(auth.MetadataEnv))
	assert.NotEmpty(t, tok.Meta(auth.MetadataAttemptID))
	assert.Contains(t, tok.Meta(auth.MetadataCookies), "mfa-ok")
	assert.Equal(t, StateAuthenticated, c.State())

	reqs := tenant.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "session-1", reqs[0].SessionID)
	assert.Equal(t, "mech-up", reqs[0].MechanismID)
	assert.Equal(t, actionAnswer, reqs[0].Action)
	assert.Equal(t, "hunter2", reqs[0].Answer)
}

func TestLogin_DefaultLifetime(t *testing.T) {
	tenant := &fakeTenant{
		t:       t,
		start:   startWith(Challenge{Mechanisms: []Mechanism{upMechanism()}}),
		advance: []advanceAuthResponse{success("token", 0)},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	tok, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL},
		Secret:   auth.NewSecret("pw"),
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenLifetime), tok.ExpiresAt, 5*time.Second)
}

func TestLogin_SecondChallengePrompted(t *testing.T) {
	tenant := &fakeTenant{
		t: t,
		start: startWith(
			Challenge{Mechanisms: []Mechanism{upMechanism()}},
			Challenge{Mechanisms: []Mechanism{
				{MechanismID: "mech-sms", Name: "SMS", AnswerType: answerTypeText},
				emailMechanism(),
			}},
		),
		advance: []advanceAuthResponse{nextChallenge(), success("jwt", 60)},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	p := &prompt.Scripted{Answers: []string{"123456"}}
	tok, err := newTestClient(t, p).Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL, MFAType: "email", Interactive: true},
		Secret:   auth.NewSecret("pw"),
	})
	require.NoError(t, err)
	assert.Equal(t, "jwt", tok.Token.Reveal())

	reqs := tenant.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "pw", reqs[0].Answer)
	assert.Equal(t, "mech-email", reqs[1].MechanismID)
	assert.Equal(t, "123456", reqs[1].Answer)
	assert.Len(t, p.Asked, 1)
}

func TestLogin_NonInteractiveOTP(t *testing.T) {
	tenant := &fakeTenant{
		t: t,
		start: startWith(
			Challenge{Mechanisms: []Mechanism{upMechanism()}},
			Challenge{Mechanisms: []Mechanism{emailMechanism()}},
		),
		advance: []advanceAuthResponse{nextChallenge()},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	p := &prompt.Scripted{Answers: []string{"never-used"}}
	c := newTestClient(t, p)
	_, err := c.Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL},
		Secret:   auth.NewSecret("pw"),
	})

	var need *auth.InteractiveInputRequiredError
	require.True(t, errors.As(err, &need), "expected InteractiveInputRequiredError, got %v", err)
	assert.Equal(t, "EMAIL", need.Mechanism)
	assert.Empty(t, p.Asked)
	assert.Equal(t, StateFailed, c.State())
	assert.Equal(t, err, c.LastError())
}

func TestLogin_RejectedAnswer(t *testing.T) {
	tests := []struct {
		name        string
		interactive bool
		advance     []advanceAuthResponse
		answers     []string
		wantErr     bool
		wantCalls   int
	}{
		{
			name:      "non-interactive fails on first rejection",
			advance:   []advanceAuthResponse{rejected(), success("late", 60)},
			wantErr:   true,
			wantCalls: 1,
		},
		{
			name:        "interactive retries once and succeeds",
			interactive: true,
			advance:     []advanceAuthResponse{rejected(), success("ok", 60)},
			answers:     []string{"correct"},
			wantCalls:   2,
		},
		{
			name:        "interactive gives up after one retry",
			interactive: true,
			advance:     []advanceAuthResponse{rejected(), rejected(), success("late", 60)},
			answers:     []string{"wrong", "unused"},
			wantErr:     true,
			wantCalls:   2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tenant := &fakeTenant{
				t:       t,
				start:   startWith(Challenge{Mechanisms: []Mechanism{upMechanism()}}),
				advance: tt.advance,
			}
			server := httptest.NewServer(tenant)
			defer server.Close()

			p := &prompt.Scripted{Answers: tt.answers}
			tok, err := newTestClient(t, p).Login(context.Background(), LoginRequest{
				Username: "user@acme",
				Settings: auth.IdentitySettings{URL: server.URL, Interactive: tt.interactive},
				Secret:   auth.NewSecret("first"),
			})

			assert.Len(t, tenant.requests(), tt.wantCalls)
			if tt.wantErr {
				var rej *auth.AuthenticationRejectedError
				assert.True(t, errors.As(err, &rej), "expected AuthenticationRejectedError, got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "ok", tok.Token.Reveal())
			assert.Equal(t, "correct", tenant.requests()[1].Answer)
		})
	}
}

func TestLogin_StartFailures(t *testing.T) {
	t.Run("no mechanisms", func(t *testing.T) {
		server := httptest.NewServer(&fakeTenant{t: t, start: startWith()})
		defer server.Close()

		_, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
			Username: "user@acme",
			Settings: auth.IdentitySettings{URL: server.URL},
		})
		var none *auth.NoChallengeAvailableError
		assert.True(t, errors.As(err, &none), "got %v", err)
	})

	t.Run("unsuccessful start", func(t *testing.T) {
		server := httptest.NewServer(&fakeTenant{t: t, start: startAuthResponse{Success: false, Message: "unknown user"}})
		defer server.Close()

		_, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
			Username: "ghost@acme",
			Settings: auth.IdentitySettings{URL: server.URL},
		})
		var rej *auth.AuthenticationRejectedError
		require.True(t, errors.As(err, &rej), "got %v", err)
		assert.Equal(t, "unknown user", rej.Message)
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusBadGateway)
		}))
		defer server.Close()

		_, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
			Username: "user@acme",
			Settings: auth.IdentitySettings{URL: server.URL},
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "502")
	})

	t.Run("empty token on success", func(t *testing.T) {
		server := httptest.NewServer(&fakeTenant{
			t:       t,
			start:   startWith(Challenge{Mechanisms: []Mechanism{upMechanism()}}),
			advance: []advanceAuthResponse{{Success: true, Result: advanceAuthResult{Summary: SummaryLoginSuccess}}},
		})
		defer server.Close()

		_, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
			Username: "user@acme",
			Settings: auth.IdentitySettings{URL: server.URL},
			Secret:   auth.NewSecret("pw"),
		})
		var rej *auth.AuthenticationRejectedError
		assert.True(t, errors.As(err, &rej), "got %v", err)
	})
}

func TestLogin_PushApproval(t *testing.T) {
	pending := advanceAuthResponse{Success: true, Result: advanceAuthResult{Summary: SummaryOobPending}}
	tenant := &fakeTenant{
		t: t,
		start: startWith(Challenge{Mechanisms: []Mechanism{
			{MechanismID: "mech-pf", Name: "PF", AnswerType: answerTypeStartOob},
		}}),
		advance: []advanceAuthResponse{pending, pending, success("pushed", 60)},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	tok, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL, Interactive: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "pushed", tok.Token.Reveal())

	reqs := tenant.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, actionStartOOB, reqs[0].Action)
	assert.Equal(t, actionPoll, reqs[1].Action)
	assert.Equal(t, actionPoll, reqs[2].Action)
}

func TestLogin_TextOutOfBand(t *testing.T) {
	tenant := &fakeTenant{
		t: t,
		start: startWith(Challenge{Mechanisms: []Mechanism{
			{MechanismID: "mech-sms", Name: "SMS", AnswerType: answerTypeStartTextOob},
		}}),
		advance: []advanceAuthResponse{
			{Success: true, Result: advanceAuthResult{Summary: SummaryOobPending}},
			success("sms", 60),
		},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	p := &prompt.Scripted{Answers: []string{"424242"}}
	_, err := newTestClient(t, p).Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL, Interactive: true},
	})
	require.NoError(t, err)

	reqs := tenant.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, actionStartOOB, reqs[0].Action)
	assert.Equal(t, actionAnswer, reqs[1].Action)
	assert.Equal(t, "424242", reqs[1].Answer)
}

func TestLogin_SkipsChallengeWithoutMechanisms(t *testing.T) {
	tenant := &fakeTenant{
		t:       t,
		start:   startWith(Challenge{}, Challenge{Mechanisms: []Mechanism{upMechanism()}}),
		advance: []advanceAuthResponse{success("token", 60)},
	}
	server := httptest.NewServer(tenant)
	defer server.Close()

	tok, err := newTestClient(t, nil).Login(context.Background(), LoginRequest{
		Username: "user@acme",
		Settings: auth.IdentitySettings{URL: server.URL},
		Secret:   auth.NewSecret("pw"),
	})
	require.NoError(t, err)
	assert.Equal(t, "token", tok.Token.Reveal())

	reqs := tenant.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "mech-up", reqs[0].MechanismID)
	assert.Equal(t, "pw", reqs[0].Answer)
}

func TestLogin_OutOfBandStartRefused(t *testing.T) {
	tests := []struct {
		name string
		mech Mechanism
	}{
		{name: "push", mech: Mechanism{MechanismID: "mech-pf", Name: "PF", AnswerType: answerTypeStartOob}},
		{name: "text", mech: Mechanism{MechanismID: "mech-sms", Name: "SMS", AnswerType: answerTypeStartTextOob}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refused := advanceAuthResponse{Success: false, Message: "Too many messages sent."}
			tenant := &fakeTenant{
				t:       t,
				start:   startWith(Challenge{Mechanisms: []Mechanism{tt.mech}}),
				advance: []advanceAuthResponse{refused, success("never", 60)},
			}
			server := httptest.NewServer(tenant)
			defer server.Close()

			p := &prompt.Scripted{Answers: []string{"424242"}}
			_, err := newTestClient(t, p).Login(context.Background(), LoginRequest{
				Username: "user@acme",
				Settings: auth.IdentitySettings{URL: server.URL, Interactive: true},
			})

			var rej *auth.AuthenticationRejectedError
			require.True(t, errors.As(err, &rej), "got %v", err)
			assert.Equal(t, "Too many messages sent.", rej.Message)
			reqs := tenant.requests()
			require.Len(t, reqs, 1, "nothing is polled or answered after a refused start")
			assert.Equal(t, actionStartOOB, reqs[0].Action)
		})
	}
}

func TestSelectMechanism(t *testing.T) {
	mechs := []Mechanism{upMechanism(), emailMechanism()}

	tests := []struct {
		name      string
		mechs     []Mechanism
		preferred string
		want      string
	}{
		{name: "preferred match", mechs: mechs, preferred: "email", want: "mech-email"},
		{name: "no preference", mechs: mechs, want: "mech-up"},
		{name: "preference not offered", mechs: mechs, preferred: "sms", want: "mech-up"},
		{name: "empty", mechs: nil, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectMechanism(tt.mechs, tt.preferred)
			if tt.want == "" {
				if got != nil {
					t.Errorf("expected nil, got %+v", got)
				}
				return
			}
			if got == nil || got.MechanismID != tt.want {
				t.Errorf("expected %s, got %+v", tt.want, got)
			}
		})
	}
}

func TestIsPasswordMechanism(t *testing.T) {
	if !IsPasswordMechanism(upMechanism()) {
		t.Error("UP should take the password")
	}
	if IsPasswordMechanism(emailMechanism()) {
		t.Error("EMAIL should not take the password")
	}
	if !IsPasswordMechanism(Mechanism{Name: "SQ", AnswerType: answerTypeText}) {
		t.Error("security question text answers are password-like")
	}
	if IsPasswordMechanism(Mechanism{Name: "PF", AnswerType: answerTypeStartOob}) {
		t.Error("push mechanisms are not password-like")
	}
}
