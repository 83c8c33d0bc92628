package services

import "pairlink/internal/core/domain"

// NegotiateCapabilities computes the agreed capability set for a pairing
// from each side's request. Video is unconditionally carried; audio requires
// both sides to have asked for it. The result applies identically to both
// sides: asymmetric audio is not supported.
func NegotiateCapabilities(a, b domain.MediaRequest) domain.Capabilities {
	return domain.Capabilities{
		Video: true,
		Audio: a.Audio && b.Audio,
	}
}
