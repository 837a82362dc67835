package command

const (
	JSONOutputFlag = "json"
	LogLevelFlag   = "log-level"
)

const (
	DefaultLogLevel  = "INFO"
	DefaultNodeStore = "leveldb"
)
