package entitlement

// SetCodeSource replaces the license code generator.
func (s *Service) SetCodeSource(next func() string) {
	s.newCode = next
}
