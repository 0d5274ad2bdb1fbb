// Package dialogue tracks the two-stage feedback conversation per user.
//
// Invariants:
// - At most one session per user id.
// - Transitions for one user are serialized; different users run concurrently.
// - A completed session produces exactly one ledger append attempt.
// - Reply failures never change the transition taken.
//
// Usage:
//
//	tracker, _ := dialogue.NewTracker(writer, dialogue.Options{})
//	outcome, err := tracker.Handle(ctx, dialogue.Event{UserID: "42", Command: "start"}, replier)
//	_, _ = outcome, err
package dialogue
