package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/common"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/notify"
	"github.com/dmitrijs2005/authkeeper/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authkeeper/internal/server/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- helpers ---

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, m notify.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, m)
	return n.err
}

func (n *recordingNotifier) last(t *testing.T) notify.Message {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	require.NotEmpty(t, n.msgs)
	return n.msgs[len(n.msgs)-1]
}

type fixture struct {
	svc      *SessionService
	store    *memory.Manager
	notifier *recordingNotifier
	issuer   *auth.Issuer
	clock    time.Time
}

func (f *fixture) advance(d time.Duration) { f.clock = f.clock.Add(d) }

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()

	cfg := &config.Config{}
	cfg.LoadDefaults()
	for _, m := range mutate {
		m(cfg)
	}

	hasher, err := secrets.NewHasher(secrets.AlgorithmBcrypt, bcrypt.MinCost)
	require.NoError(t, err)

	store := memory.NewManager()
	issuer := auth.NewIssuer([]byte(cfg.SecretKey), cfg.TokenIssuer, cfg.AccessTokenValidityDuration, cfg.RefreshTokenValidityDuration)
	n := &recordingNotifier{}

	f := &fixture{store: store, notifier: n, issuer: issuer, clock: time.Now()}
	f.svc = NewSessionService(nil, store, store, issuer, hasher, n, cfg, logging.Nop{})
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) registerAndVerify(t *testing.T, name, email, password string) *models.User {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, name, email, password))
	u, err := f.svc.VerifyOTP(ctx, email, f.notifier.last(t).Code)
	require.NoError(t, err)
	return u
}

// --- scenario ---

func TestAnnScenario(t *testing.T) {
	f := newFixture(t)
	f.svc.generateOTP = func() (string, error) { return "123456", nil }
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))

	msg := f.notifier.last(t)
	assert.Equal(t, notify.KindRegistration, msg.Kind)
	assert.Equal(t, "ann@x.com", msg.To)
	assert.Equal(t, "123456", msg.Code)
	assert.Equal(t, 5*time.Minute, msg.ExpiresIn)

	f.advance(4 * time.Minute)
	u, err := f.svc.VerifyOTP(ctx, "ann@x.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, "Ann", u.DisplayName)
	assert.NotEmpty(t, u.ID)

	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.AccessToken)
	assert.NotEmpty(t, sess.RefreshToken)
	assert.Equal(t, 15*time.Minute, sess.ExpiresIn)

	id, err := f.issuer.Verify(sess.AccessToken, common.AudienceAccess)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, "ann@x.com", id.Email)
	assert.Equal(t, "Ann", id.Name)

	_, err = f.issuer.Verify(sess.AccessToken, common.AudienceRefresh)
	assert.ErrorIs(t, err, common.ErrWrongAudience)
	_, err = f.issuer.Verify(sess.RefreshToken, common.AudienceRefresh)
	require.NoError(t, err)

	next, err := f.svc.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)

	_, err = f.svc.Refresh(ctx, next.RefreshToken)
	assert.NoError(t, err)
}

// --- registration ---

func TestRegister_AlreadyVerified(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")

	err := f.svc.Register(context.Background(), "Ann", "ann@x.com", "other12")
	assert.ErrorIs(t, err, common.ErrEmailAlreadyVerified)
}

func TestRegister_SupersedesEarlierCode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	f.svc.generateOTP = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))
	require.NoError(t, f.svc.Register(ctx, "Annie", "ann@x.com", "secret2"))

	_, err := f.svc.VerifyOTP(ctx, "ann@x.com", "111111")
	assert.ErrorIs(t, err, common.ErrOTPMismatch)

	u, err := f.svc.VerifyOTP(ctx, "ann@x.com", "222222")
	require.NoError(t, err)
	assert.Equal(t, "Annie", u.DisplayName)

	_, err = f.svc.Login(ctx, "ann@x.com", "secret2")
	assert.NoError(t, err)
}

func TestRegister_NotifierFailureKeepsRecord(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("smtp down")
	ctx := context.Background()

	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))
	_, err := f.svc.VerifyOTP(ctx, "ann@x.com", f.notifier.last(t).Code)
	assert.NoError(t, err)
}

func TestRegister_OTPGeneratorFailure(t *testing.T) {
	f := newFixture(t)
	f.svc.generateOTP = func() (string, error) { return "", errors.New("entropy") }

	err := f.svc.Register(context.Background(), "Ann", "ann@x.com", "secret1")
	assert.ErrorContains(t, err, "generate otp")
}

func TestVerifyOTP_Once(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))
	code := f.notifier.last(t).Code

	_, err := f.svc.VerifyOTP(ctx, "ann@x.com", code)
	require.NoError(t, err)

	_, err = f.svc.VerifyOTP(ctx, "ann@x.com", code)
	assert.ErrorIs(t, err, common.ErrNoPendingRegistration)
}

func TestVerifyOTP_NoPending(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.VerifyOTP(context.Background(), "nobody@x.com", "123456")
	assert.ErrorIs(t, err, common.ErrNoPendingRegistration)
}

func TestVerifyOTP_ExpiredDeletesRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))
	code := f.notifier.last(t).Code

	f.advance(5*time.Minute + time.Second)
	_, err := f.svc.VerifyOTP(ctx, "ann@x.com", code)
	assert.ErrorIs(t, err, common.ErrOTPExpired)

	_, err = f.svc.VerifyOTP(ctx, "ann@x.com", code)
	assert.ErrorIs(t, err, common.ErrNoPendingRegistration)
}

func TestVerifyOTP_ExactMatchOnly(t *testing.T) {
	f := newFixture(t)
	f.svc.generateOTP = func() (string, error) { return "012345", nil }
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))

	for _, bad := range []string{"12345", " 012345", "012345 ", "000000"} {
		_, err := f.svc.VerifyOTP(ctx, "ann@x.com", bad)
		assert.ErrorIs(t, err, common.ErrOTPMismatch, bad)
	}

	_, err := f.svc.VerifyOTP(ctx, "ann@x.com", "012345")
	assert.NoError(t, err)
}

func TestVerifyOTP_ConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))
	code := f.notifier.last(t).Code

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyOTP(ctx, "ann@x.com", code)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrNoPendingRegistration)
	}
	assert.Equal(t, 1, ok)
}

// --- login ---

func TestLogin_InvalidCredentialsAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	_, errUnknown := f.svc.Login(ctx, "ghost@x.com", "secret1")
	_, errWrong := f.svc.Login(ctx, "ann@x.com", "wrong12")

	assert.ErrorIs(t, errUnknown, common.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, common.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestLogin_MultipleSessions(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	a, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	b, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	assert.NotEqual(t, a.RefreshToken, b.RefreshToken)

	_, err = f.svc.Refresh(ctx, a.RefreshToken)
	assert.NoError(t, err)
	_, err = f.svc.Refresh(ctx, b.RefreshToken)
	assert.NoError(t, err)
}

func TestLogin_PendingUserCannotLogIn(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.svc.Register(ctx, "Ann", "ann@x.com", "secret1"))

	_, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

// --- refresh ---

func TestRefresh_RejectsAccessToken(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	sess, err := f.svc.Login(context.Background(), "ann@x.com", "secret1")
	require.NoError(t, err)

	_, err = f.svc.Refresh(context.Background(), sess.AccessToken)
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestRefresh_Garbage(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Refresh(context.Background(), "not-a-token")
	assert.ErrorIs(t, err, common.ErrInvalidRefreshToken)
}

func TestRefresh_StoredRecordExpired(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()
	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)

	// the signature is still valid by wall clock, only the record has lapsed
	f.advance(8 * 24 * time.Hour)
	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)

	_, err = f.store.RefreshTokens(nil).Find(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorNotFound, "stale record must be deleted")
}

func TestRefresh_SignatureExpired(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RefreshTokenValidityDuration = time.Nanosecond })
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)

	_, err = f.store.RefreshTokens(nil).Find(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefresh_ConcurrentRotationSingleWinner(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()
	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)

	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Refresh(ctx, sess.RefreshToken)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)
	}
	assert.Equal(t, 1, ok)
}

func TestRefresh_ReuseRevokesWhenEnabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config) { c.RevokeOnReuse = true })
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	other, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, common.ErrRefreshTokenNotFound)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)
	_, err = f.svc.Refresh(ctx, other.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)
}

func TestRefresh_ReuseKeepsOtherSessionsByDefault(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)
	rotated, err := f.svc.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, common.ErrRefreshTokenNotFound)

	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	assert.NoError(t, err)
}

// --- logout ---

func TestLogout_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()
	sess, err := f.svc.Login(ctx, "ann@x.com", "secret1")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, sess.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, "never-issued"))

	_, err = f.svc.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenNotFound)
}

// --- password reset ---

func TestForgotPassword_SameOutcomeForUnknownEmail(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()
	sent := len(f.notifier.msgs)

	assert.NoError(t, f.svc.ForgotPassword(ctx, "ghost@x.com"))
	assert.Len(t, f.notifier.msgs, sent, "nothing is sent for unknown emails")

	assert.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com"))
	msg := f.notifier.last(t)
	assert.Equal(t, notify.KindPasswordReset, msg.Kind)
	assert.Equal(t, "Ann", msg.Name)
}

func TestResetPassword_Flow(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com"))
	code := f.notifier.last(t).Code

	err := f.svc.ResetPassword(ctx, "ann@x.com", code, "secret1")
	assert.ErrorIs(t, err, common.ErrSamePassword)

	// same code still usable after a rejected password
	require.NoError(t, f.svc.ResetPassword(ctx, "ann@x.com", code, "secret2"))

	_, err = f.svc.Login(ctx, "ann@x.com", "secret1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ann@x.com", "secret2")
	assert.NoError(t, err)

	err = f.svc.ResetPassword(ctx, "ann@x.com", code, "secret3")
	assert.ErrorIs(t, err, common.ErrNoResetRequest)
}

func TestResetPassword_Errors(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.com", "123456", "secret2"), common.ErrNoResetRequest)

	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com"))
	code := f.notifier.last(t).Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.com", wrong, "secret2"), common.ErrOTPMismatch)

	f.advance(6 * time.Minute)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.com", code, "secret2"), common.ErrOTPExpired)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.com", code, "secret2"), common.ErrNoResetRequest)
}

func TestResetPassword_RepeatRequestSupersedes(t *testing.T) {
	f := newFixture(t)
	f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()
	codes := []string{"111111", "222222"}
	f.svc.generateOTP = func() (string, error) {
		c := codes[0]
		codes = codes[1:]
		return c, nil
	}

	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com"))
	require.NoError(t, f.svc.ForgotPassword(ctx, "ann@x.com"))

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@x.com", "111111", "secret2"), common.ErrOTPMismatch)
	assert.NoError(t, f.svc.ResetPassword(ctx, "ann@x.com", "222222", "secret2"))
}

// --- me ---

func TestCurrentUser(t *testing.T) {
	f := newFixture(t)
	u := f.registerAndVerify(t, "Ann", "ann@x.com", "secret1")
	ctx := context.Background()

	got, err := f.svc.CurrentUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "ann@x.com", got.Email)

	_, err = f.svc.CurrentUser(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrUserNotFound)
}
