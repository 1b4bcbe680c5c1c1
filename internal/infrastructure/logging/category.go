package logging

type Category string
type SubCategory string
type ExtraKey string

const (
	General  Category = "General"
	IO       Category = "IO"
	Internal Category = "Internal"
	Socket   Category = "Socket"
	Codec    Category = "Codec"
	Rest     Category = "Rest"
	Store    Category = "Store"
	Presence Category = "Presence"
	Http     Category = "Http"
)

const (
	// General
	Startup         SubCategory = "Startup"
	ExternalService SubCategory = "ExternalService"
	Command         SubCategory = "Command"

	// Socket
	Connect   SubCategory = "Connect"
	Reconnect SubCategory = "Reconnect"
	Heartbeat SubCategory = "Heartbeat"
	Dispatch  SubCategory = "Dispatch"

	// Codec
	Encode SubCategory = "Encode"
	Decode SubCategory = "Decode"

	// Store
	Dedup   SubCategory = "Dedup"
	History SubCategory = "History"
	Send    SubCategory = "Send"
	Typing  SubCategory = "Typing"

	// Http
	Api      SubCategory = "Api"
	Shutdown SubCategory = "Shutdown"
)

const (
	AppName      ExtraKey = "AppName"
	LoggerName   ExtraKey = "Logger"
	Endpoint     ExtraKey = "Endpoint"
	RoomID       ExtraKey = "RoomId"
	PeerID       ExtraKey = "PeerId"
	MessageID    ExtraKey = "MessageId"
	FrameType    ExtraKey = "FrameType"
	Attempt      ExtraKey = "Attempt"
	Delay        ExtraKey = "Delay"
	Outcome      ExtraKey = "Outcome"
	Method       ExtraKey = "Method"
	Path         ExtraKey = "Path"
	StatusCode   ExtraKey = "StatusCode"
	Latency      ExtraKey = "Latency"
	Count        ExtraKey = "Count"
	RemoteAddr   ExtraKey = "RemoteAddr"
	ErrorMessage ExtraKey = "ErrorMessage"
)
