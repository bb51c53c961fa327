// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import "time"

// SetClock replaces the service clock in tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}
