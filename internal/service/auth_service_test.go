package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/eventhub-app/eventhub/internal/model"
	"github.com/eventhub-app/eventhub/internal/notify"
	"github.com/eventhub-app/eventhub/internal/otc"
	"github.com/eventhub-app/eventhub/internal/repository"
)

type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User // keyed by email
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User)}
}

func (f *fakeUserStore) Create(_ context.Context, name, email, passwordHash string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[email]; ok {
		return nil, repository.ErrEmailTaken
	}
	user := &model.User{ID: "user-" + name, Name: name, Email: email, PasswordHash: passwordHash}
	f.users[email] = user
	return user, nil
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	snapshot := *user
	return &snapshot, nil
}

func (f *fakeUserStore) UpdatePassword(_ context.Context, email, passwordHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[email]
	if !ok {
		return repository.ErrUserNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

type fakeIssuer struct{}

func (fakeIssuer) IssueToken(identity model.Identity) (string, error) {
	return "token-for-" + identity.UserID, nil
}

func newAuthFixture(t *testing.T) (*AuthService, *fakeUserStore, *fakeNotifier) {
	t.Helper()
	users := newFakeUserStore()
	notifier := &fakeNotifier{}
	codes := otc.NewStore(10*time.Minute, 10*time.Minute, nil)
	svc := NewAuthService(users, codes, fakeIssuer{}, notifier, zap.NewNop())
	return svc, users, notifier
}

func signupTestUser(t *testing.T, svc *AuthService) {
	t.Helper()
	_, err := svc.Signup(context.Background(), model.SignupRequest{
		Name:     "Alice",
		Email:    "a@x.com",
		Password: "original-password",
	})
	require.NoError(t, err)
}

func TestSignup(t *testing.T) {
	svc, users, _ := newAuthFixture(t)

	token, err := svc.Signup(context.Background(), model.SignupRequest{
		Name:     "Alice",
		Email:    "A@X.com",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	assert.Equal(t, "token-for-user-Alice", token)

	// Email is normalized and the password stored hashed.
	user, err := users.GetByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword(
		[]byte(user.PasswordHash), []byte("hunter2hunter2")))
}

func TestSignup_DuplicateEmail(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	signupTestUser(t, svc)

	_, err := svc.Signup(context.Background(), model.SignupRequest{
		Name:     "Other",
		Email:    "a@x.com",
		Password: "another-password",
	})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestSignup_Validation(t *testing.T) {
	svc, _, _ := newAuthFixture(t)

	cases := []model.SignupRequest{
		{Email: "a@x.com", Password: "long-enough"},           // no name
		{Name: "A", Email: "not-an-email", Password: "long-enough"},
		{Name: "A", Email: "a@x.com", Password: "short"},
	}
	for _, req := range cases {
		_, err := svc.Signup(context.Background(), req)
		assert.Error(t, err)
	}
}

func TestLogin(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	signupTestUser(t, svc)

	token, err := svc.Login(context.Background(), model.LoginRequest{
		Email:    "a@x.com",
		Password: "original-password",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = svc.Login(context.Background(), model.LoginRequest{
		Email:    "a@x.com",
		Password: "wrong-password",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// Unknown emails are indistinguishable from wrong passwords.
	_, err = svc.Login(context.Background(), model.LoginRequest{
		Email:    "nobody@x.com",
		Password: "whatever",
	})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestSendCode(t *testing.T) {
	svc, _, notifier := newAuthFixture(t)
	signupTestUser(t, svc)

	require.NoError(t, svc.SendCode(context.Background(), "a@x.com"))

	require.Len(t, notifier.sent, 1)
	assert.Equal(t, notify.KindResetCode, notifier.sent[0].kind)
	assert.Equal(t, "a@x.com", notifier.sent[0].recipient)
	assert.Len(t, notifier.sent[0].payload.Code, 6)
}

func TestSendCode_UnknownUser(t *testing.T) {
	svc, _, notifier := newAuthFixture(t)

	err := svc.SendCode(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
	assert.Empty(t, notifier.sent)
}

func TestResetFlow(t *testing.T) {
	svc, _, notifier := newAuthFixture(t)
	signupTestUser(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SendCode(ctx, "a@x.com"))
	code := notifier.sent[0].payload.Code

	// Wrong code: rejected, but the real one survives for a retry.
	_, err := svc.VerifyCode(ctx, "a@x.com", "000000")
	assert.ErrorIs(t, err, otc.ErrMismatch)

	ticket, err := svc.VerifyCode(ctx, "a@x.com", code)
	require.NoError(t, err)
	require.NotEmpty(t, ticket)

	// The code was consumed by the successful verify.
	_, err = svc.VerifyCode(ctx, "a@x.com", code)
	assert.ErrorIs(t, err, otc.ErrNoActiveCode)

	require.NoError(t, svc.ResetPassword(ctx, model.ResetPasswordRequest{
		Email:       "a@x.com",
		ResetTicket: ticket,
		NewPassword: "brand-new-password",
	}))

	// Old credential is dead, new one works.
	_, err = svc.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "original-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "brand-new-password"})
	assert.NoError(t, err)
}

func TestResetPassword_RequiresVerify(t *testing.T) {
	svc, _, _ := newAuthFixture(t)
	signupTestUser(t, svc)
	ctx := context.Background()

	// Reset without any prior verify is rejected outright.
	err := svc.ResetPassword(ctx, model.ResetPasswordRequest{
		Email:       "a@x.com",
		ResetTicket: "forged",
		NewPassword: "brand-new-password",
	})
	assert.ErrorIs(t, err, otc.ErrInvalidTicket)

	// And the old credential still works.
	_, err = svc.Login(ctx, model.LoginRequest{Email: "a@x.com", Password: "original-password"})
	assert.NoError(t, err)
}

func TestResetPassword_TicketSingleUse(t *testing.T) {
	svc, _, notifier := newAuthFixture(t)
	signupTestUser(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SendCode(ctx, "a@x.com"))
	ticket, err := svc.VerifyCode(ctx, "a@x.com", notifier.sent[0].payload.Code)
	require.NoError(t, err)

	require.NoError(t, svc.ResetPassword(ctx, model.ResetPasswordRequest{
		Email:       "a@x.com",
		ResetTicket: ticket,
		NewPassword: "brand-new-password",
	}))

	err = svc.ResetPassword(ctx, model.ResetPasswordRequest{
		Email:       "a@x.com",
		ResetTicket: ticket,
		NewPassword: "sneaky-second-reset",
	})
	assert.ErrorIs(t, err, otc.ErrInvalidTicket)
}

func TestSendCode_ReissueInvalidatesOldCode(t *testing.T) {
	svc, _, notifier := newAuthFixture(t)
	signupTestUser(t, svc)
	ctx := context.Background()

	require.NoError(t, svc.SendCode(ctx, "a@x.com"))
	oldCode := notifier.sent[0].payload.Code

	require.NoError(t, svc.SendCode(ctx, "a@x.com"))
	newCode := notifier.sent[1].payload.Code

	if oldCode == newCode {
		t.Skip("codes collided; re-issue produced the same value")
	}

	_, err := svc.VerifyCode(ctx, "a@x.com", oldCode)
	assert.ErrorIs(t, err, otc.ErrMismatch)

	_, err = svc.VerifyCode(ctx, "a@x.com", newCode)
	assert.NoError(t, err)
}
