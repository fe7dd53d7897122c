package command

import "github.com/planora/hub/internal/schema"

// Outcome is the uniform envelope every verb returns. Expected failure
// modes (unknown entity, missing input, ambiguity, confirmation) are
// folded into it; only infrastructure failures surface as Go errors.
type Outcome struct {
	OK              bool            `json:"ok"`
	Message         string          `json:"message"`
	Data            map[string]any  `json:"data,omitempty"`
	Navigate        string          `json:"navigate,omitempty"`
	NeedResolve     bool            `json:"needResolve,omitempty"`
	Choices         []schema.Choice `json:"choices,omitempty"`
	ConfirmRequired bool            `json:"confirmRequired,omitempty"`
	Missing         []string        `json:"missing,omitempty"`
}

func fail(message string) Outcome {
	return Outcome{OK: false, Message: message}
}

func failResolve(message string) Outcome {
	return Outcome{OK: false, Message: message, NeedResolve: true}
}

func failChoices(message string, choices []schema.Choice) Outcome {
	return Outcome{OK: false, Message: message, NeedResolve: true, Choices: choices}
}

func failMissing(message string, missing []string) Outcome {
	return Outcome{OK: false, Message: message, NeedResolve: true, Missing: missing}
}
