// Package toast provides transient, auto-expiring notifications.
//
// A Notifier is the provider scope: it owns an insertion-ordered list of
// toasts and one expiry timer per toast. Consumers never see the Notifier
// itself. They get a Toaster, which can only emit:
//
//	n := toast.NewNotifier()
//	defer n.Close()
//
//	r := chi.NewRouter()
//	r.Use(toast.Middleware(n))
//
//	r.Post("/students", func(w http.ResponseWriter, r *http.Request) {
//	    if err := save(r); err != nil {
//	        toast.Error(r.Context(), "Failed to save student")
//	        return
//	    }
//	    toast.Success(r.Context(), "Student saved")
//	})
//
// Calling FromContext (or the package-level helpers) on a context without a
// provider panics with error E001, "toast must be used within a provider".
// Use returns the same error instead of panicking.
//
// # Lifecycle
//
// Each toast is visible from the moment it is emitted until it is removed,
// either by Remove (user dismissal, available only to the provider owner) or
// by its expiry timer, whichever comes first. Removal is keyed by id, so an
// expiry that fires after a manual dismissal is a no-op and never disturbs
// other toasts. Remaining toasts keep their order.
//
// # Client Events
//
// List changes are published to Subscribe listeners. The websocket transport
// forwards them to browsers as the "campusdesk:toast" event:
//
//	window.addEventListener("campusdesk:toast", (e) => {
//	    renderToasts(e.detail.toasts);
//	});
package toast
