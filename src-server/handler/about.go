// This package contains the Discord Interaction handlers.
//
// There are 2 functions per handler, one for adding the handler & the
// command information to send to Discord (public), and one for handling the
// interaction (private).
//
// Only return errors when it's the backend's fault, nil if user's fault. The
// user always gets a message either way.
package handler
