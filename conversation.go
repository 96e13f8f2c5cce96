package staffchat

// ConversationKey uniquely identifies one message thread, direct or channel.
type ConversationKey string

// ChatMode selects how a conversation target is addressed.
type ChatMode string

const (
	ModeDirect  ChatMode = "direct"
	ModeChannel ChatMode = "channel"
)

const keySeparator = "_"

// DirectKey derives the key for a direct conversation between two
// participants. It is symmetric: DirectKey(a, b) == DirectKey(b, a), which is
// what lets two independent clients converge on the same ledger slot without
// a server-assigned conversation id. A self-chat (a == b) is a valid,
// distinct conversation.
func DirectKey(a, b string) ConversationKey {
	if b < a {
		a, b = b, a
	}
	return ConversationKey(a + keySeparator + b)
}

// ChannelKey derives the key for a channel conversation: the channel id
// unchanged.
func ChannelKey(channelID string) ConversationKey {
	return ConversationKey(channelID)
}

// ResolveKey maps (mode, local, target) to a conversation key. Both outbound
// command construction and inbound event classification go through here so
// the two paths always agree.
func ResolveKey(mode ChatMode, localID, targetID string) ConversationKey {
	if mode == ModeChannel {
		return ChannelKey(targetID)
	}
	return DirectKey(localID, targetID)
}
