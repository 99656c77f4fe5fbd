package protocol

// Command codes. Stable across versions — never renumber an existing entry;
// append new ones. This is not a full enumeration of the wire surface (the
// source of truth for that lives in a companion table kept in sync with the
// server binary); it covers the commands exercised by the engine core.
const (
	CommandPing                        uint32 = 1
	CommandSendMessages                uint32 = 16
	CommandPollMessages                uint32 = 17
	CommandStoreConsumerOffset         uint32 = 18
	CommandGetConsumerOffset           uint32 = 19
	CommandGetMe                       uint32 = 20
	CommandGetClients                  uint32 = 21
	CommandLoginUser                   uint32 = 38
	CommandLogoutUser                  uint32 = 39
	CommandGetUsers                    uint32 = 40
	CommandCreateUser                  uint32 = 41
	CommandLoginWithPersonalAccessToken uint32 = 42
	CommandCreatePersonalAccessToken   uint32 = 43
	CommandGetStreams                  uint32 = 100
	CommandGetStream                   uint32 = 101
	CommandCreateStream                uint32 = 102
	CommandDeleteStream                uint32 = 103
	CommandGetTopics                   uint32 = 200
	CommandGetTopic                    uint32 = 201
	CommandCreateTopic                 uint32 = 202
	CommandDeleteTopic                 uint32 = 203
	CommandCreatePartitions            uint32 = 204
	CommandDeletePartitions            uint32 = 205
	CommandCreateConsumerGroup         uint32 = 300
	CommandDeleteConsumerGroup         uint32 = 301
	CommandJoinConsumerGroup           uint32 = 302
	CommandLeaveConsumerGroup          uint32 = 303
	CommandGetConsumerGroups           uint32 = 304
)

// CommandName maps a code to its human-readable name, used in logging and
// error messages. Unknown codes map to "unknown".
func CommandName(code uint32) string {
	if name, ok := commandNames[code]; ok {
		return name
	}
	return "unknown"
}

var commandNames = map[uint32]string{
	CommandPing:                         "Ping",
	CommandSendMessages:                 "SendMessages",
	CommandPollMessages:                 "PollMessages",
	CommandStoreConsumerOffset:          "StoreConsumerOffset",
	CommandGetConsumerOffset:            "GetConsumerOffset",
	CommandGetMe:                        "GetMe",
	CommandGetClients:                   "GetClients",
	CommandLoginUser:                    "LoginUser",
	CommandLogoutUser:                   "LogoutUser",
	CommandGetUsers:                     "GetUsers",
	CommandCreateUser:                   "CreateUser",
	CommandLoginWithPersonalAccessToken: "LoginWithPersonalAccessToken",
	CommandCreatePersonalAccessToken:    "CreatePersonalAccessToken",
	CommandGetStreams:                   "GetStreams",
	CommandGetStream:                    "GetStream",
	CommandCreateStream:                 "CreateStream",
	CommandDeleteStream:                 "DeleteStream",
	CommandGetTopics:                    "GetTopics",
	CommandGetTopic:                     "GetTopic",
	CommandCreateTopic:                  "CreateTopic",
	CommandDeleteTopic:                  "DeleteTopic",
	CommandCreatePartitions:             "CreatePartitions",
	CommandDeletePartitions:             "DeletePartitions",
	CommandCreateConsumerGroup:          "CreateConsumerGroup",
	CommandDeleteConsumerGroup:          "DeleteConsumerGroup",
	CommandJoinConsumerGroup:            "JoinConsumerGroup",
	CommandLeaveConsumerGroup:           "LeaveConsumerGroup",
	CommandGetConsumerGroups:            "GetConsumerGroups",
}

// RequiresAuth reports whether a command needs an authenticated session.
// Only ping, login, PAT-login, and get-me are exempt (§4.H).
func RequiresAuth(code uint32) bool {
	switch code {
	case CommandPing, CommandLoginUser, CommandLoginWithPersonalAccessToken, CommandGetMe:
		return false
	default:
		return true
	}
}
