package analyses

// stepProgress maps each step to a stable percentage so clients can render a
// progress bar without inferring pipeline internals. Percentages only move
// forward; error and cancelled freeze at wherever the run stopped.
var stepProgress = map[Step]int{
	StepPending:        5,
	StepIngesting:      20,
	StepIndexing:       40,
	StepDetecting:      50,
	StepAwaitingIntent: 55,
	StepAnalyzing:      75,
	StepScoring:        90,
	StepPersisting:     98,
	StepComplete:       100,
}

var stepMessages = map[Step]string{
	StepPending:        "Waiting to start",
	StepIngesting:      "Reading your documents",
	StepIndexing:       "Organizing document contents",
	StepDetecting:      "Working out what kind of document this is",
	StepAwaitingIntent: "Waiting for you to confirm your goal",
	StepAnalyzing:      "Reviewing the document in detail",
	StepScoring:        "Calculating scores",
	StepPersisting:     "Saving results",
	StepComplete:       "Analysis complete",
	StepError:          "Analysis failed",
	StepCancelled:      "Analysis cancelled",
}

// Progress returns the percentage for a step. Error and cancelled report 0
// progress of their own; callers show the message instead.
func Progress(step Step) int {
	return stepProgress[step]
}

// StepMessage returns a short human-readable description of a step.
func StepMessage(step Step) string {
	if msg, ok := stepMessages[step]; ok {
		return msg
	}
	return string(step)
}
