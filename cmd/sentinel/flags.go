package main

// GlobalFlags holds the persistent flags shared by every subcommand.
type GlobalFlags struct {
	ConfigPath string
}

// ScheduleFlags holds flags for the schedule subcommands.
type ScheduleFlags struct {
	Binary string // override the executable path written into crontab
}

// RunsFlags holds flags for the runs subcommand.
type RunsFlags struct {
	Limit int
}
