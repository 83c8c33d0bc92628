package domain

// Capabilities describes what media a pairing is allowed to carry. Video is
// unconditionally true once a pairing is negotiated; audio requires both
// sides to have requested it. Capabilities are a property of the pairing,
// not asymmetric per side.
type Capabilities struct {
	Video bool `json:"video"`
	Audio bool `json:"audio"`
}

// MediaRequest is one side's capability request at create/join time.
type MediaRequest struct {
	Audio bool `json:"audio"`
}

// Eviction records that Identity lost its pairing with FormerPeer during a
// privileged forced reconnection.
type Eviction struct {
	Identity   Identity
	FormerPeer Identity
}

type MediaChannel string

const (
	ChannelVideo MediaChannel = "video"
	ChannelAudio MediaChannel = "audio"
)
