package pipeline

import (
	"fmt"

	"github.com/aixgo-dev/searchflow/agent"
)

// Fixed status texts emitted to the caller.
const (
	StatusOpening      = "I am analyzing your question to understand what you need..."
	StatusResearching  = "I am searching for relevant information..."
	StatusAnalyzing    = "I am analyzing the information..."
	StatusFormatting   = "I am formatting the results..."
	CompleteMessage    = "I have completed my search and prepared a response for you!"
	ErrorMessagePrefix = "Sorry, I encountered an error while processing your request: "
)

// DefaultStages is the linear research, analysis, formatting pipeline.
var DefaultStages = []string{"researcher", "analyzer", "formatter"}

// step is one dispatch of a plan.
type step struct {
	name   string
	status string
	phase  EventType
	input  func(query string) agent.Metadata
}

// stepFor builds the step for a registered stage from its role.
func stepFor(name string, role agent.Role) step {
	switch role {
	case agent.RoleResearcher:
		return step{name: name, status: StatusResearching, phase: EventResearch, input: func(string) agent.Metadata {
			return agent.Metadata{agent.KeyResearchType: "web_search", agent.KeyQueryType: "search"}
		}}
	case agent.RoleAnalyzer:
		return step{name: name, status: StatusAnalyzing, phase: EventAnalysis, input: func(q string) agent.Metadata {
			return agent.Metadata{agent.KeyAnalysisType: "comprehensive", agent.KeyQuery: q}
		}}
	case agent.RoleFormatter:
		return step{name: name, status: StatusFormatting, phase: EventFormatting, input: func(q string) agent.Metadata {
			return agent.Metadata{agent.KeyFormatType: "markdown", agent.KeyQuery: q}
		}}
	}
	// other roles report as analysis output
	return step{name: name, status: fmt.Sprintf("I am running the %s step...", name), phase: EventAnalysis,
		input: func(q string) agent.Metadata { return agent.Metadata{agent.KeyQuery: q} }}
}
