// internal/models/user.go
package models

// ProfileSummary is the minimal display and contact data the pipeline needs
// about a user. Resolved from the user-profile collaborator; the pipeline
// never renders opaque identifiers into user-facing text.
type ProfileSummary struct {
	Username     string
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	PushEndpoint string // SNS platform endpoint ARN
	OptIns       ChannelOptIns
}

// ChannelOptIns records per-channel consent.
type ChannelOptIns struct {
	Email bool
	SMS   bool
	Push  bool
}

// OptedIn reports consent for a single channel.
func (o ChannelOptIns) OptedIn(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return o.Email
	case ChannelSMS:
		return o.SMS
	case ChannelPush:
		return o.Push
	}
	return false
}

// DisplayName returns the name used in rendered notifications.
func (p *ProfileSummary) DisplayName() string {
	if p.FirstName == "" {
		return p.Username
	}
	return p.FirstName
}
