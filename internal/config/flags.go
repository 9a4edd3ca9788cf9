package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// flagBinding ties a command line flag to a config key.
type flagBinding struct {
	flag  string
	key   string
	usage string
	kind  string
}

var flagBindings = []flagBinding{
	{"name", "app.name", "application name used as the messenger namespace prefix", "string"},
	{"log-level", "app.log_level", "log level (debug, info, warn, error)", "string"},
	{"workers", "app.worker_count", "number of workers running blocking tasks", "int"},
	{"shutdown-grace", "app.shutdown_grace", "how long to wait for tasks after shutdown starts", "duration"},

	{"task-monitor-frequency", "monitoring.task_frequency", "task monitor frequency in Hz, 0 disables it", "float"},
	{"periodicals-monitor-frequency", "monitoring.periodicals_frequency", "periodicals monitor frequency in Hz, 0 disables it", "float"},
	{"process-monitor-frequency", "monitoring.process_frequency", "process monitor frequency in Hz, 0 disables it", "float"},
	{"system-monitor-frequency", "monitoring.system_frequency", "system monitor frequency in Hz, 0 disables it", "float"},

	{"messenger", "messenger.backend", "messenger backend (memory, postgres)", "string"},
	{"database-url", "messenger.database_url", "PostgreSQL URL of the postgres messenger", "string"},

	{"serve", "server.enabled", "serve the status API", "bool"},
	{"port", "server.port", "status API port", "int"},
	{"linger", "server.linger", "keep serving results this long after the run ends", "duration"},

	{"demo", "demo.enabled", "register the demo tasks", "bool"},
	{"say-hello-frequency", "demo.say_hello_frequency", "frequency of the demo greeting in Hz", "float"},
	{"exit-after", "demo.exit_after", "stop the demo run after this long, 0 runs until interrupted", "duration"},
}

// RegisterFlags adds a command line override for the commonly tuned config
// keys to fs. Pass fs to LoadWith after parsing; only flags that were set
// override other sources.
func RegisterFlags(fs *pflag.FlagSet) {
	for _, b := range flagBindings {
		switch b.kind {
		case "string":
			fs.String(b.flag, "", b.usage)
		case "int":
			fs.Int(b.flag, 0, b.usage)
		case "float":
			fs.Float64(b.flag, 0, b.usage)
		case "bool":
			fs.Bool(b.flag, false, b.usage)
		case "duration":
			fs.Duration(b.flag, 0, b.usage)
		}
	}
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for _, b := range flagBindings {
		f := fs.Lookup(b.flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(b.key, f); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", b.flag, err)
		}
	}
	return nil
}
