package experiment

import (
	"fmt"
	"slices"
	"time"
)

// Timestamps are normalised so a value read back from any supported
// database compares equal to the value that was written.
func normalize(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

func ptr(t time.Time) *time.Time { return &t }

// clone copies the record so transitions never alias the caller's slices.
func clone(exp Experiment) Experiment {
	out := exp
	out.BaseMedia = slices.Clone(exp.BaseMedia)
	out.TestMedia = slices.Clone(exp.TestMedia)
	out.Overrides = slices.Clone(exp.Overrides)
	return out
}

// IsDue reports whether an ACTIVE experiment has reached its next window.
func IsDue(exp Experiment, now time.Time) bool {
	if exp.Status != StatusActive || exp.NextRotationAt == nil {
		return false
	}
	return !now.Before(*exp.NextRotationAt)
}

func NextCase(exp Experiment) Case {
	return exp.CurrentCase.Other()
}

// Apply performs one automatic rotation.
func Apply(exp Experiment, now time.Time) Experiment {
	return Force(exp, NextCase(exp), now)
}

// Force sets the live case outside the schedule. Timestamps are reset
// exactly as Apply resets them.
func Force(exp Experiment, c Case, now time.Time) Experiment {
	at := normalize(now)
	out := clone(exp)
	out.CurrentCase = c
	out.LastRotatedAt = ptr(at)
	out.NextRotationAt = ptr(at.Add(exp.Interval()))
	return out
}

// ClaimWindow is the next_rotation_at a claim writes before the catalog is
// touched. A transition out of ACTIVE still claims a regular window, so the
// experiment keeps rotating if the transition is never saved.
func ClaimWindow(exp, target Experiment, now time.Time) *time.Time {
	if target.NextRotationAt != nil || exp.Status != StatusActive {
		return target.NextRotationAt
	}
	return ptr(normalize(now).Add(exp.Interval()))
}

// Activate starts or resumes the rotation clock.
func Activate(exp Experiment, now time.Time) (Experiment, error) {
	if exp.Status != StatusDraft && exp.Status != StatusPaused {
		return exp, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, StatusActive)
	}
	if exp.RotationIntervalSeconds <= 0 {
		return exp, ErrInvalidInterval
	}
	at := normalize(now)
	out := clone(exp)
	if !out.CurrentCase.Valid() {
		out.CurrentCase = CaseBase
	}
	out.Status = StatusActive
	out.NextRotationAt = ptr(at.Add(exp.Interval()))
	return out, nil
}

// Pause stops rotation and keeps the live case.
func Pause(exp Experiment) (Experiment, error) {
	if exp.Status != StatusActive {
		return exp, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, StatusPaused)
	}
	out := clone(exp)
	out.Status = StatusPaused
	out.NextRotationAt = nil
	return out, nil
}

// Complete ends the experiment with BASE as the resting case.
func Complete(exp Experiment, now time.Time) (Experiment, error) {
	if exp.Status == StatusCompleted {
		return exp, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, exp.Status, StatusCompleted)
	}
	out := clone(exp)
	if out.CurrentCase != CaseBase {
		out.LastRotatedAt = ptr(normalize(now))
	}
	out.Status = StatusCompleted
	out.CurrentCase = CaseBase
	out.NextRotationAt = nil
	return out, nil
}
