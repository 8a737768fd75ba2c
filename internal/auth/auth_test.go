package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ariefcatur/go-storefront/internal/ledger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func testIssuer(now time.Time) *Issuer {
	i := NewIssuer("test-secret", time.Hour)
	i.now = func() time.Time { return now }
	return i
}

func TestIssueAndVerify(t *testing.T) {
	iss := testIssuer(t0)
	tok, err := iss.Issue(ledger.User{ID: "u-1", Email: "a@b.io", Role: ledger.RoleAdmin})
	require.NoError(t, err)

	p, err := iss.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u-1", p.UserID)
	assert.Equal(t, "a@b.io", p.Email)
	assert.Equal(t, ledger.RoleAdmin, p.RoleName())
	assert.True(t, p.Can(CapReconcile))
}

func TestVerifyRejects(t *testing.T) {
	iss := testIssuer(t0)
	tok, err := iss.Issue(ledger.User{ID: "u-1", Email: "a@b.io", Role: ledger.RoleUser})
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		_, err := testIssuer(t0.Add(2 * time.Hour)).Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("wrong secret", func(t *testing.T) {
		other := NewIssuer("other", time.Hour)
		other.now = iss.now
		_, err := other.Verify(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("garbage", func(t *testing.T) {
		_, err := iss.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("none algorithm", func(t *testing.T) {
		claims := Claims{Role: ledger.RoleAdmin, RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "u-1",
			ExpiresAt: jwt.NewNumericDate(t0.Add(time.Hour)),
		}}
		s, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = iss.Verify(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
	t.Run("unknown role", func(t *testing.T) {
		s, err := iss.Issue(ledger.User{ID: "u-2", Role: "superuser"})
		require.NoError(t, err)
		_, err = iss.Verify(s)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestRoles(t *testing.T) {
	assert.True(t, Customer.Can(CapPlaceOrder))
	assert.True(t, Customer.Can(CapManageCart))
	assert.True(t, Customer.Can(CapViewOwnOrders))
	for _, c := range []Capability{CapManageCatalog, CapViewAllOrders, CapViewReports, CapReconcile} {
		assert.False(t, Customer.Can(c), c)
		assert.True(t, Administrator.Can(c), c)
	}
	_, err := RoleFor("guest")
	assert.Error(t, err)
	assert.False(t, Principal{}.Can(CapPlaceOrder))
}

func TestMiddleware(t *testing.T) {
	iss := testIssuer(t0)
	userTok, err := iss.Issue(ledger.User{ID: "u-1", Role: ledger.RoleUser})
	require.NoError(t, err)
	adminTok, err := iss.Issue(ledger.User{ID: "u-2", Role: ledger.RoleAdmin})
	require.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := PrincipalFrom(r.Context())
		_, _ = w.Write([]byte(p.UserID))
	})
	h := Authenticate(iss)(Authorizer{}.Require(CapManageCatalog)(ok))

	cases := []struct {
		name   string
		header string
		code   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + userTok, http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"customer", "Bearer " + userTok, http.StatusForbidden},
		{"admin", "Bearer " + adminTok, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.code, rec.Code)
			if tc.code != http.StatusOK {
				assert.Contains(t, rec.Body.String(), `"error"`)
			} else {
				assert.Equal(t, "u-2", rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	Authorizer{}.Require(CapPlaceOrder)(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type memUsers struct {
	byEmail map[string]ledger.User
}

func (m *memUsers) CreateUser(_ context.Context, in ledger.NewUser) (ledger.User, error) {
	if _, ok := m.byEmail[in.Email]; ok {
		return ledger.User{}, ledger.ErrEmailTaken
	}
	u := ledger.User{ID: "u-" + in.Username, Username: in.Username, Email: in.Email, PasswordHash: in.PasswordHash, Role: in.Role}
	m.byEmail[in.Email] = u
	return u, nil
}

func (m *memUsers) UserByEmail(_ context.Context, email string) (ledger.User, error) {
	u, ok := m.byEmail[email]
	if !ok {
		return ledger.User{}, ledger.ErrNotFound
	}
	return u, nil
}

func TestRegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	svc := &Service{Users: &memUsers{byEmail: map[string]ledger.User{}}, Issuer: testIssuer(t0)}

	u, err := svc.Register(ctx, RegisterInput{Username: "ana", Email: " Ana@Shop.io ", Password: "pw", Role: ledger.RoleAdmin})
	require.NoError(t, err)
	assert.Equal(t, "ana@shop.io", u.Email)
	assert.Equal(t, ledger.RoleUser, u.Role, "admin signup is disabled")
	assert.NotEqual(t, "pw", u.PasswordHash)

	_, err = svc.Register(ctx, RegisterInput{Username: "ana2", Email: "ana@shop.io", Password: "pw"})
	assert.ErrorIs(t, err, ledger.ErrEmailTaken)

	_, err = svc.Register(ctx, RegisterInput{Email: "x@y.io", Password: "pw"})
	assert.ErrorIs(t, err, ErrMissingFields)

	_, err = svc.Register(ctx, RegisterInput{Username: "x", Email: "not-an-email", Password: "pw"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	tok, got, err := svc.Login(ctx, "ANA@shop.io", "pw")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	p, err := svc.Issuer.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, u.ID, p.UserID)

	_, _, err = svc.Login(ctx, "ana@shop.io", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "nobody@shop.io", "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = svc.Login(ctx, "", "pw")
	assert.ErrorIs(t, err, ErrMissingFields)
}

func TestAdminSignupWhenAllowed(t *testing.T) {
	svc := &Service{Users: &memUsers{byEmail: map[string]ledger.User{}}, Issuer: testIssuer(t0), AllowAdminSignup: true}
	u, err := svc.Register(context.Background(), RegisterInput{Username: "root", Email: "root@shop.io", Password: "pw", Role: "admin"})
	require.NoError(t, err)
	assert.Equal(t, ledger.RoleAdmin, u.Role)
	assert.True(t, strings.HasPrefix(u.PasswordHash, "$2a$10$"))
}
