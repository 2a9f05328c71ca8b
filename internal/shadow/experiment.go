// Package shadow replays multi-turn conversation flows against the Ask
// service and summarizes narrator shadow logs.
package shadow

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/askgate/internal/ask"
)

// DefaultSleep is the pause after a failed question when sleep_ms is unset.
const DefaultSleep = 500 * time.Millisecond

// Flow is one conversation: every question is sent with the same identity.
type Flow struct {
	ID             string   `yaml:"id"`
	ClientID       string   `yaml:"client_id"`
	ConversationID string   `yaml:"conversation_id"`
	Nickname       string   `yaml:"nickname"`
	TypeUser       string   `yaml:"type_user,omitempty"`
	Questions      []string `yaml:"questions"`
}

// Identity returns the identity sent with every question of the flow.
func (f Flow) Identity() ask.Identity {
	return ask.Identity{
		ConversationID: f.ConversationID,
		ClientID:       f.ClientID,
		Nickname:       f.Nickname,
		TypeUser:       f.TypeUser,
	}
}

// Experiment is a named list of flows.
type Experiment struct {
	Name    string `yaml:"name"`
	SleepMS *int   `yaml:"sleep_ms"`
	// Timeout is a Go duration ("45s"); empty uses the client default.
	Timeout string `yaml:"timeout"`
	Flows   []Flow `yaml:"flows"`
}

// Sleep returns the pause applied after a failed question.
func (e *Experiment) Sleep() time.Duration {
	if e.SleepMS == nil {
		return DefaultSleep
	}
	return time.Duration(*e.SleepMS) * time.Millisecond
}

// TimeoutDuration parses Timeout. Zero means unset.
func (e *Experiment) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(e.Timeout)
	return d
}

// Questions counts every question across flows.
func (e *Experiment) Questions() int {
	n := 0
	for _, f := range e.Flows {
		n += len(f.Questions)
	}
	return n
}

// LoadExperiment reads and validates an experiment file.
func LoadExperiment(path string) (*Experiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read experiment: %w", err)
	}
	return ParseExperiment(path, data)
}

// ParseExperiment validates raw experiment bytes. path is used in errors.
func ParseExperiment(path string, data []byte) (*Experiment, error) {
	var exp Experiment
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("%s: parse experiment: %w", path, err)
	}

	var problems []string
	if exp.SleepMS != nil && *exp.SleepMS < 0 {
		problems = append(problems, "sleep_ms must not be negative")
	}
	if exp.Timeout != "" {
		if d, err := time.ParseDuration(exp.Timeout); err != nil || d <= 0 {
			problems = append(problems, fmt.Sprintf("timeout %q is not a positive duration", exp.Timeout))
		}
	}
	if len(exp.Flows) == 0 {
		problems = append(problems, "flows: at least one flow is required")
	}
	seen := make(map[string]bool)
	for i := range exp.Flows {
		f := &exp.Flows[i]
		f.ID = strings.TrimSpace(f.ID)
		switch {
		case f.ID == "":
			problems = append(problems, fmt.Sprintf("flows[%d]: id is required", i))
		case seen[f.ID]:
			problems = append(problems, fmt.Sprintf("flows[%d]: duplicate id %q", i, f.ID))
		}
		seen[f.ID] = true

		questions := f.Questions[:0]
		for _, q := range f.Questions {
			if q = strings.TrimSpace(q); q != "" {
				questions = append(questions, q)
			}
		}
		f.Questions = questions
		if len(f.Questions) == 0 {
			problems = append(problems, fmt.Sprintf("flows[%d]: questions must not be empty", i))
		}
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("%s: invalid experiment: %s", path, strings.Join(problems, "; "))
	}
	if exp.Name == "" {
		exp.Name = "shadow"
	}
	return &exp, nil
}
