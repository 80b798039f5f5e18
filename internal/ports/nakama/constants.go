package nakama

const (
	// RpcIntent runs one intent envelope on behalf of the calling user.
	RpcIntent = "trickroom_intent"

	// RpcPoll returns buffered room broadcasts newer than a timestamp.
	RpcPoll = "trickroom_poll"

	// StreamModeRoom is the custom stream mode room broadcasts are sent on. The room id is the stream label.
	StreamModeRoom uint8 = 200

	// MatchHistoryCollection stores one object per finished match.
	MatchHistoryCollection = "match_history"
)
