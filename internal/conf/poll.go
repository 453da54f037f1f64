package conf

import (
	"fmt"
	"time"
)

type Poll struct {
	IdleSec      int `yaml:"session_idle_timeout"`
	TotalSec     int `yaml:"long_poll_total"`
	HeartbeatSec int `yaml:"long_poll_heartbeat"`
}

func (p *Poll) setDefaults() {
	if p.IdleSec == 0 {
		p.IdleSec = 300
	}
	if p.TotalSec == 0 {
		p.TotalSec = 25
	}
	if p.HeartbeatSec == 0 {
		p.HeartbeatSec = 5
	}
}

func (p *Poll) validate() []error {
	var errors []error

	if p.IdleSec < 1 {
		errors = append(errors, fmt.Errorf("session_idle_timeout must be positive"))
	}
	if p.TotalSec < 1 {
		errors = append(errors, fmt.Errorf("long_poll_total must be positive"))
	}
	if p.HeartbeatSec < 1 || p.HeartbeatSec > p.TotalSec {
		errors = append(errors, fmt.Errorf("long_poll_heartbeat must be between 1 and long_poll_total"))
	}
	return errors
}

func (p *Poll) Idle() time.Duration      { return time.Duration(p.IdleSec) * time.Second }
func (p *Poll) Total() time.Duration     { return time.Duration(p.TotalSec) * time.Second }
func (p *Poll) Heartbeat() time.Duration { return time.Duration(p.HeartbeatSec) * time.Second }
