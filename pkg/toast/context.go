package toast

import (
	"context"
	"net/http"
	"time"

	"github.com/vango-dev/campusdesk/internal/errors"
)

type contextKey struct{}

// activeChecker is implemented by scopes that can end, such as *Notifier.
type activeChecker interface {
	Active() bool
}

// WithToaster returns a context carrying t as the active provider scope.
// Use hands consumers a wrapper exposing only the Toaster methods.
func WithToaster(ctx context.Context, t Toaster) context.Context {
	return context.WithValue(ctx, contextKey{}, t)
}

// Use returns the Toaster of the enclosing provider scope, or E001 when
// there is none or it has been closed.
func Use(ctx context.Context) (Toaster, error) {
	if ctx == nil {
		return nil, errors.New("E001")
	}
	t, _ := ctx.Value(contextKey{}).(Toaster)
	if t == nil {
		return nil, errors.New("E001").
			WithSuggestion("Install the provider with toast.Middleware(notifier) or toast.WithToaster(ctx, notifier)")
	}
	if a, ok := t.(activeChecker); ok && !a.Active() {
		return nil, errors.New("E001").WithDetail("The toast provider for this context has been closed.")
	}
	return scoped{t}, nil
}

// scoped is the Toaster handed to consumers. It hides the provider's
// concrete type, so a *Notifier cannot be recovered with a type assertion.
type scoped struct {
	t Toaster
}

func (s scoped) Success(message string, duration ...time.Duration) string {
	return s.t.Success(message, duration...)
}

func (s scoped) Error(message string, duration ...time.Duration) string {
	return s.t.Error(message, duration...)
}

func (s scoped) Info(message string, duration ...time.Duration) string {
	return s.t.Info(message, duration...)
}

// FromContext is like Use but panics when no provider is active.
func FromContext(ctx context.Context) Toaster {
	t, err := Use(ctx)
	if err != nil {
		panic(err)
	}
	return t
}

// Middleware installs t as the provider scope for every request.
func Middleware(t Toaster) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithToaster(r.Context(), t)))
		})
	}
}

// Success shows a success toast in the scope carried by ctx.
//
//	toast.Success(r.Context(), "Student saved")
func Success(ctx context.Context, message string, duration ...time.Duration) string {
	return FromContext(ctx).Success(message, duration...)
}

// Error shows an error toast in the scope carried by ctx.
//
//	toast.Error(r.Context(), "Failed to record payment")
func Error(ctx context.Context, message string, duration ...time.Duration) string {
	return FromContext(ctx).Error(message, duration...)
}

// Info shows an info toast in the scope carried by ctx.
func Info(ctx context.Context, message string, duration ...time.Duration) string {
	return FromContext(ctx).Info(message, duration...)
}
