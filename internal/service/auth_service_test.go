package service

import (
	"context"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/fastplat/auth/internal/domain"
	"github.com/fastplat/auth/internal/security"
	passwordPolicy "github.com/fastplat/auth/pkg/validator"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	svc    AuthService
	store  *memStore
	mailer *fakeMailer
	ctx    context.Context
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()

	hasher, err := security.NewHasher(bcrypt.MinCost)
	require.NoError(t, err)

	tokens, err := security.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)

	store := newMemStore()
	mailer := newFakeMailer()

	svc := NewAuthService(Dependencies{
		DB:        fakeDB{},
		Users:     fakeUsers{store},
		Sessions:  fakeSessions{store},
		Events:    fakeEvents{store},
		Hasher:    hasher,
		Tokens:    tokens,
		Mailer:    mailer,
		Passwords: passwordPolicy.NewValidator(passwordPolicy.Policy{MinLength: 3}),
		Logger:    zap.NewNop(),
	}, opts)

	return &testEnv{svc: svc, store: store, mailer: mailer, ctx: context.Background()}
}

func (e *testEnv) register(t *testing.T, name, email, password string) *domain.User {
	t.Helper()
	user, err := e.svc.Register(e.ctx, RegisterInput{UserName: name, Email: email, Password: password})
	require.NoError(t, err)
	return user
}

// activeUser registers and activates an account.
func (e *testEnv) activeUser(t *testing.T, name, email, password string) *domain.User {
	t.Helper()
	e.register(t, name, email, password)
	user, err := e.svc.Activate(e.ctx, e.mailer.activationCodes[email])
	require.NoError(t, err)
	return user
}

func (e *testEnv) login(t *testing.T, email, password string) (string, *domain.Identity) {
	t.Helper()
	res, err := e.svc.Login(e.ctx, LoginInput{Email: email, Password: password, UserAgent: "test-agent"})
	require.NoError(t, err)

	identity, err := e.svc.Authenticate(e.ctx, res.Token)
	require.NoError(t, err)
	return res.Token, identity
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.register(t, "alice", "alice@x.com", "pw1")

	_, err := env.svc.Register(env.ctx, RegisterInput{UserName: "alice2", Email: "alice@x.com", Password: "pw1"})
	require.ErrorIs(t, err, domain.ErrConflict)

	_, err = env.svc.Register(env.ctx, RegisterInput{UserName: "alice3", Email: " ALICE@X.com ", Password: "pw1"})
	require.ErrorIs(t, err, domain.ErrConflict)

	require.Len(t, env.store.users, 1)
}

func TestRegister_ValidationBeforeStoreAccess(t *testing.T) {
	env := newTestEnv(t, Options{})

	cases := []RegisterInput{
		{UserName: "alice", Email: "not-an-email", Password: "pw1"},
		{UserName: "al", Email: "alice@x.com", Password: "pw1"},
		{UserName: "alice", Email: "alice@x.com", Password: ""},
		{UserName: "alice", Email: "alice@x.com", Password: "pw"},
	}

	for _, in := range cases {
		_, err := env.svc.Register(env.ctx, in)
		require.ErrorIs(t, err, domain.ErrValidation)
	}

	require.Zero(t, env.store.reads)
	require.Empty(t, env.store.users)
}

func TestRegister_StoresPendingUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.register(t, "alice", "Alice@X.com", "pw1")

	require.Equal(t, "alice@x.com", user.Email)
	require.False(t, user.IsConfirmed)
	require.Equal(t, domain.RoleUser, user.Role)
	require.NotEqual(t, "pw1", *user.PasswordHash)

	code := env.mailer.activationCodes["alice@x.com"]
	require.Len(t, code, 128)
	require.Equal(t, code, *env.store.users[user.ID].ActivationCode)
}

func TestRegister_DeliveryFailureKeepsUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.mailer.err = errSMTPDown

	_, err := env.svc.Register(env.ctx, RegisterInput{UserName: "alice", Email: "alice@x.com", Password: "pw1"})
	require.ErrorIs(t, err, domain.ErrDeliveryFailed)
	require.ErrorIs(t, err, errSMTPDown)

	require.Len(t, env.store.users, 1)
	for _, u := range env.store.users {
		require.False(t, u.IsConfirmed)
		require.NotNil(t, u.ActivationCode)
	}
}

func TestActivate_ExactlyOnce(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.register(t, "alice", "alice@x.com", "pw1")
	code := env.mailer.activationCodes["alice@x.com"]

	user, err := env.svc.Activate(env.ctx, code)
	require.NoError(t, err)
	require.True(t, user.IsConfirmed)
	require.Nil(t, user.ActivationCode)

	_, err = env.svc.Activate(env.ctx, code)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Activate(env.ctx, "never-issued")
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Activate(env.ctx, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestResendActivation(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.register(t, "alice", "alice@x.com", "pw1")
	first := env.mailer.activationCodes["alice@x.com"]

	require.NoError(t, env.svc.ResendActivation(env.ctx, "alice@x.com"))
	second := env.mailer.activationCodes["alice@x.com"]
	require.NotEqual(t, first, second)

	_, err := env.svc.Activate(env.ctx, first)
	require.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.svc.Activate(env.ctx, second)
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.ResendActivation(env.ctx, "alice@x.com"), domain.ErrConflict)
	require.ErrorIs(t, env.svc.ResendActivation(env.ctx, "nobody@x.com"), domain.ErrNotFound)
}

func TestLogin_UnconfirmedAccount(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.register(t, "alice", "alice@x.com", "pw1")

	_, err := env.svc.Login(env.ctx, LoginInput{Email: "alice@x.com", Password: "pw1"})
	require.ErrorIs(t, err, domain.ErrAccountNotActivated)
	require.Empty(t, env.store.sessionsOf(user.ID))

	_, err = env.svc.Login(env.ctx, LoginInput{Email: "alice@x.com", Password: "wrong"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_WrongPasswordAndUnknownEmail(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	_, err := env.svc.Login(env.ctx, LoginInput{Email: "alice@x.com", Password: "pw2"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	_, unknownErr := env.svc.Login(env.ctx, LoginInput{Email: "bob@x.com", Password: "pw1"})
	require.ErrorIs(t, unknownErr, domain.ErrInvalidCredentials)
	require.Equal(t, err.Error(), unknownErr.Error())

	require.Empty(t, env.store.sessionsOf(user.ID))
}

func TestLogin_AccountWithoutPassword(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.users["oauth"] = &domain.User{ID: "oauth", Email: "oauth@x.com", IsConfirmed: true, Role: domain.RoleUser}

	_, err := env.svc.Login(env.ctx, LoginInput{Email: "oauth@x.com", Password: "anything"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)
}

func TestLogin_IssuesLedgeredToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	res, err := env.svc.Login(env.ctx, LoginInput{Email: "ALICE@x.com", Password: "pw1", UserAgent: "curl/8"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, domain.StatusOnline, res.User.Status)
	require.Equal(t, domain.StatusOnline, env.store.users[user.ID].Status)

	sessions := env.store.sessionsOf(user.ID)
	require.Len(t, sessions, 1)
	require.Equal(t, res.Token, sessions[0].Token)
	require.Equal(t, "curl/8", sessions[0].UserAgent)
	require.Equal(t, domain.PurposeLogin, sessions[0].Purpose)
	require.True(t, sessions[0].IsValid)
	require.NotNil(t, sessions[0].ExpiresAt)

	identity, err := env.svc.Authenticate(env.ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, identity.UserID)
	require.Equal(t, "alice@x.com", identity.Email)
	require.Equal(t, domain.RoleUser, identity.Role)
	require.Equal(t, domain.PurposeLogin, identity.Purpose)
}

func TestAuthenticate_RoleFollowsStoredUser(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")
	token, identity := env.login(t, "alice@x.com", "pw1")
	require.Equal(t, domain.RoleUser, identity.Role)

	env.store.users[user.ID].Role = domain.RoleAdmin
	env.store.users[user.ID].IsPremium = true

	identity, err := env.svc.Authenticate(env.ctx, token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, identity.Role)
	require.True(t, identity.Premium)

	env.store.users[user.ID].Role = domain.RoleUser

	identity, err = env.svc.Authenticate(env.ctx, token)
	require.NoError(t, err)
	require.Equal(t, domain.RoleUser, identity.Role)

	delete(env.store.users, user.ID)

	_, err = env.svc.Authenticate(env.ctx, token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAuthenticate_RejectsUnledgeredAndInvalidated(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.activeUser(t, "alice", "alice@x.com", "pw1")
	token, identity := env.login(t, "alice@x.com", "pw1")

	_, err := env.svc.Authenticate(env.ctx, "")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = env.svc.Authenticate(env.ctx, "not.a.jwt")
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.NoError(t, env.svc.Logout(env.ctx, *identity))

	_, err = env.svc.Authenticate(env.ctx, token)
	require.ErrorIs(t, err, domain.ErrUnauthorized)

	require.ErrorIs(t, env.svc.Logout(env.ctx, *identity), domain.ErrUnauthorized)
}

func TestAuthenticate_RejectsSignedButUnrecordedToken(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	tokens, err := security.NewTokenManager("test-secret", time.Hour)
	require.NoError(t, err)
	forged, _, err := tokens.Issue(user)
	require.NoError(t, err)

	_, err = env.svc.Authenticate(env.ctx, forged)
	require.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestRecovery_VerifyCode(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	res, err := env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)

	code := env.mailer.recoveryCodes["alice@x.com"]
	require.Regexp(t, regexp.MustCompile(`^[0-9]{5}$`), code)
	require.Equal(t, code, *env.store.users[user.ID].ForgetCode)
	require.Equal(t, domain.RecoveryCodeIssued, env.store.users[user.ID].RecoveryState)

	identity, err := env.svc.Authenticate(env.ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, domain.PurposeRecovery, identity.Purpose)

	for _, wrong := range []string{"", "00000x", code + "0", " " + code} {
		require.ErrorIs(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, wrong), domain.ErrInvalidCode)
		require.Equal(t, code, *env.store.users[user.ID].ForgetCode)
	}

	require.NoError(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, code))
	require.Nil(t, env.store.users[user.ID].ForgetCode)
	require.Equal(t, domain.RecoveryVerified, env.store.users[user.ID].RecoveryState)

	require.ErrorIs(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, code), domain.ErrNoCodeIssued)
}

func TestRecovery_RequestOverwritesPendingCode(t *testing.T) {
	env := newTestEnv(t, Options{RecoveryCodeLength: 8})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	first, err := env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)
	firstCode := env.mailer.recoveryCodes["alice@x.com"]
	require.Len(t, firstCode, 8)

	_, err = env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)
	secondCode := env.mailer.recoveryCodes["alice@x.com"]
	require.Equal(t, secondCode, *env.store.users[user.ID].ForgetCode)

	identity, err := env.svc.Authenticate(env.ctx, first.Token)
	require.NoError(t, err)

	if firstCode != secondCode {
		require.ErrorIs(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, firstCode), domain.ErrInvalidCode)
	}
	require.NoError(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, secondCode))
}

func TestRecovery_UnknownEmailAndDeliveryFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	_, err := env.svc.RequestRecoveryCode(env.ctx, "nobody@x.com", "test-agent")
	require.ErrorIs(t, err, domain.ErrNotFound)

	env.mailer.err = errSMTPDown
	_, err = env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.ErrorIs(t, err, domain.ErrDeliveryFailed)
	require.NotNil(t, env.store.users[user.ID].ForgetCode)
}

func TestResetPassword_InvalidatesAllSessions(t *testing.T) {
	env := newTestEnv(t, Options{})
	user := env.activeUser(t, "alice", "alice@x.com", "pw1")

	firstToken, _ := env.login(t, "alice@x.com", "pw1")
	secondToken, identity := env.login(t, "alice@x.com", "pw1")

	require.NoError(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"))

	sessions := env.store.sessionsOf(user.ID)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		require.False(t, s.IsValid)
	}

	for _, tok := range []string{firstToken, secondToken} {
		_, err := env.svc.Authenticate(env.ctx, tok)
		require.ErrorIs(t, err, domain.ErrUnauthorized)
	}

	_, err := env.svc.Login(env.ctx, LoginInput{Email: "alice@x.com", Password: "pw1"})
	require.ErrorIs(t, err, domain.ErrInvalidCredentials)

	env.login(t, "alice@x.com", "pw2")
}

func TestResetPassword_WeakPassword(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.activeUser(t, "alice", "alice@x.com", "pw1")
	_, identity := env.login(t, "alice@x.com", "pw1")

	require.ErrorIs(t, env.svc.ResetPassword(env.ctx, *identity, "p"), domain.ErrValidation)
}

func TestResetPassword_RequireVerified(t *testing.T) {
	env := newTestEnv(t, Options{RequireVerifiedRecovery: true})
	env.activeUser(t, "alice", "alice@x.com", "pw1")

	res, err := env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)
	identity, err := env.svc.Authenticate(env.ctx, res.Token)
	require.NoError(t, err)

	require.ErrorIs(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"), domain.ErrNoCodeIssued)

	require.NoError(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, env.mailer.recoveryCodes["alice@x.com"]))
	require.NoError(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"))
}

func TestResetPassword_WithoutVerifyAllowedByDefault(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.activeUser(t, "alice", "alice@x.com", "pw1")
	_, identity := env.login(t, "alice@x.com", "pw1")

	require.NoError(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"))
}

func TestOutboxEventsWritten(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.activeUser(t, "alice", "alice@x.com", "pw1")
	_, identity := env.login(t, "alice@x.com", "pw1")

	_, err := env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)
	require.NoError(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"))

	require.Equal(t, []string{
		domain.EventUserRegistered,
		domain.EventUserActivated,
		domain.EventUserLoggedIn,
		domain.EventUserRecoveryRequested,
		domain.EventUserPasswordReset,
	}, env.store.eventTypes())

	for _, e := range env.store.events {
		require.Equal(t, "user_events", e.Topic)
		require.NotContains(t, string(e.Payload), "password")
		require.NotContains(t, string(e.Payload), "code")
		require.NotContains(t, string(e.Payload), "token")
	}
}

func TestEndToEndScenario(t *testing.T) {
	env := newTestEnv(t, Options{})

	user := env.register(t, "alice", "alice@x.com", "pw1")
	code := *env.store.users[user.ID].ActivationCode

	_, err := env.svc.Activate(env.ctx, code)
	require.NoError(t, err)

	loginRes, err := env.svc.Login(env.ctx, LoginInput{Email: "alice@x.com", Password: "pw1", UserAgent: "e2e"})
	require.NoError(t, err)

	sessions := env.store.sessionsOf(user.ID)
	require.Len(t, sessions, 1)
	require.True(t, sessions[0].IsValid)

	_, err = env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)
	forgetCode := *env.store.users[user.ID].ForgetCode
	require.Regexp(t, regexp.MustCompile(`^[0-9]{5}$`), forgetCode)

	identity, err := env.svc.Authenticate(env.ctx, loginRes.Token)
	require.NoError(t, err)

	wrong := "99999"
	if forgetCode == wrong {
		wrong = "11111"
	}
	require.ErrorIs(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, wrong), domain.ErrInvalidCode)

	require.NoError(t, env.svc.VerifyRecoveryCode(env.ctx, *identity, forgetCode))
	require.Nil(t, env.store.users[user.ID].ForgetCode)

	require.NoError(t, env.svc.ResetPassword(env.ctx, *identity, "pw2"))

	for _, s := range env.store.sessionsOf(user.ID) {
		if s.Token == loginRes.Token {
			require.False(t, s.IsValid)
		}
	}
}

func TestDirectory(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.register(t, "alice", "alice@x.com", "pw1")
	env.register(t, "bob", "bob@x.com", "pw1")
	env.register(t, "carol", "carol@x.com", "pw1")

	page, err := env.svc.ListUsers(env.ctx, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Page)
	require.Equal(t, 10, page.Limit)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Users, 3)

	page, err = env.svc.ListUsers(env.ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Users, 1)

	page, err = env.svc.ListUsers(env.ctx, 1, 1000)
	require.NoError(t, err)
	require.Equal(t, 100, page.Limit)

	_, err = env.svc.ListUsers(env.ctx, math.MaxInt/5, 10)
	require.ErrorIs(t, err, domain.ErrValidation)

	got, err := env.svc.GetUser(env.ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.UserName)

	_, err = env.svc.GetUser(env.ctx, "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.GetUser(env.ctx, "6f1c2a6e-0000-4000-8000-000000000000")
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListUserSessions(t *testing.T) {
	env := newTestEnv(t, Options{})
	alice := env.activeUser(t, "alice", "alice@x.com", "pw1")
	env.activeUser(t, "bob", "bob@x.com", "pw1")

	env.login(t, "alice@x.com", "pw1")
	env.login(t, "bob@x.com", "pw1")
	_, err := env.svc.RequestRecoveryCode(env.ctx, "alice@x.com", "test-agent")
	require.NoError(t, err)

	sessions, err := env.svc.ListUserSessions(env.ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	purposes := []domain.SessionPurpose{sessions[0].Purpose, sessions[1].Purpose}
	require.ElementsMatch(t, []domain.SessionPurpose{domain.PurposeLogin, domain.PurposeRecovery}, purposes)
	for _, s := range sessions {
		require.Equal(t, alice.ID, s.UserID)
	}

	_, err = env.svc.ListUserSessions(env.ctx, "not-a-uuid")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, err = env.svc.ListUserSessions(env.ctx, "6f1c2a6e-0000-4000-8000-000000000000")
	require.ErrorIs(t, err, domain.ErrNotFound)
}
