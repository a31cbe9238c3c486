package httpapi

import (
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func TestSSEEventName(t *testing.T) {
	cases := map[models.AgentEventType]string{
		models.AgentEventModelDelta:     "text",
		models.AgentEventToolStarted:    "toolcall",
		models.AgentEventToolFinished:   "toolresult",
		models.AgentEventDone:           "done",
		models.AgentEventGoalAbandon:    "goal_abandoned",
		models.AgentEventRunStarted:     "run.started",
		models.AgentEventCompactionEvent: "compaction",
	}
	for in, want := range cases {
		if got := sseEventName(in); got != want {
			t.Errorf("sseEventName(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestLastEventIDPrefersHeader(t *testing.T) {
	r := newTestRequest(t, "/tasks/x/stream?after=3")
	r.Header.Set("Last-Event-ID", "7")
	if got := lastEventID(r); got != 7 {
		t.Errorf("lastEventID = %d, want 7", got)
	}
}

func TestLastEventIDFallsBackToQuery(t *testing.T) {
	r := newTestRequest(t, "/tasks/x/stream?after=3")
	if got := lastEventID(r); got != 3 {
		t.Errorf("lastEventID = %d, want 3", got)
	}
}
