package cnst

const (
	AppName     = "sessionkv"
	CommandName = "sessionkv"
)
