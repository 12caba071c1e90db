package models

import (
	"encoding/json"
	"time"
)

type CommandType string

const (
	CmdRunNow     CommandType = "run_now"
	CmdRunAccount CommandType = "run_account"
	CmdPause      CommandType = "pause"
	CmdResume     CommandType = "resume"
)

// Command is an operator request queued in the store and picked up by the daemon.
type Command struct {
	ID          int64           `json:"id" db:"id"`
	Command     CommandType     `json:"command" db:"command"`
	Params      json.RawMessage `json:"params" db:"params"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	ProcessedAt *time.Time      `json:"processed_at" db:"processed_at"`
}

type CommandParams struct {
	Username string `json:"username,omitempty"`
	Measure  string `json:"measure,omitempty"`
}

// ParseParams decodes the optional JSON params. Missing params decode to zero values.
func (c *Command) ParseParams() (*CommandParams, error) {
	if len(c.Params) == 0 || string(c.Params) == "null" {
		return &CommandParams{}, nil
	}
	var params CommandParams
	if err := json.Unmarshal(c.Params, &params); err != nil {
		return nil, err
	}
	return &params, nil
}
