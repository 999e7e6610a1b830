//go:build !debug

package mvsession

func (s *Session) checkInvariants() {}
