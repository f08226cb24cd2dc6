package gateway

import (
	"strings"

	"github.com/omegacortex/omega/pkg/store"
)

// recallKeywords surface messages from past conversations worth
// recalling verbatim (multilingual: English, Spanish, Portuguese,
// French).
var recallKeywords = []string{
	"remember", "recall", "mentioned", "said before", "earlier",
	"last time", "previously",
	"recuerda", "recuerdas", "dijiste", "antes",
	"lembra", "lembras", "disse", "anteriormente",
	"souviens", "rappelle", "précédemment",
}

// scheduleKeywords indicate the message is about reminders, tasks, or
// scheduled actions, which pulls in the pending-tasks section and the
// sender's profile (so the provider can reference existing facts when
// proposing a schedule).
var scheduleKeywords = []string{
	"remind", "reminder", "schedule", "task", "every day", "every week",
	"tomorrow", "later today", "cancel my",
	"recuérdame", "recordatorio", "programar", "tarea",
	"lembrete", "agendar", "tarefa",
	"rappelle-moi", "planifier", "tâche",
}

// outcomeKeywords signal the user is reflecting on past results,
// pulling in recent outcome/lesson history.
var outcomeKeywords = []string{
	"how did", "went well", "went wrong", "last build", "last attempt",
	"feedback", "review my",
}

// classifyNeeds applies multilingual keyword heuristics over the
// lowercased message text to decide which BuildContext sections are
// worth assembling, so routine exchanges skip the cost of recall and
// outcome lookups.
func classifyNeeds(text string) store.ContextNeeds {
	lower := strings.ToLower(text)

	needs := store.ContextNeeds{
		Profile:   true,
		Summaries: true,
	}

	if containsAny(lower, recallKeywords) {
		needs.Recall = true
		needs.Summaries = true
	}

	if containsAny(lower, scheduleKeywords) {
		needs.PendingTasks = true
		needs.Profile = true
	}

	if containsAny(lower, outcomeKeywords) {
		needs.Outcomes = true
	}

	return needs
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
