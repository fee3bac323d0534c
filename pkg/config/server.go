package config

var (
	serverConf Server
	logConf    Log
)

type Server struct {
	Addr    string `mapstructure:"addr"`
	RunMode string `mapstructure:"runMode"`
}

type Log struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // text | json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"maxSizeMb"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAgeDays"`
}

func GetServerConf() Server {
	return serverConf
}

func GetLogConf() Log {
	return logConf
}

func GetRunMode() string {
	return serverConf.RunMode
}
