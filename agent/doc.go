// Package agent provides the public types shared by every searchflow stage.
//
// This package exports the Message envelope, the ConversationState threaded through a
// pipeline run, and the Stage interface that concrete stages implement.
//
// # Basic Usage
//
// To create a custom stage, implement the Stage interface:
//
//	type Echo struct{}
//
//	func (Echo) Name() string     { return "echo" }
//	func (Echo) Role() agent.Role { return agent.RoleAssistant }
//
//	func (Echo) ProcessMessage(ctx context.Context, msg *agent.Message) (*agent.Message, error) {
//	    return msg.Derive(agent.RoleAssistant, msg.Content(), agent.Metadata{
//	        agent.KeyReasoning: "echoed input",
//	    }), nil
//	}
//
//	func (Echo) State() agent.StageState { return agent.StageState{ID: "echo", Role: agent.RoleAssistant} }
//
// # Message Format
//
// Messages are immutable. Role and content are required; ID, timestamp and metadata are filled in:
//
//	msg := agent.NewMessage(agent.RoleUser, "climate change impacts",
//	    agent.WithMetadataValue(agent.KeyResearchType, "web_search"))
//
// Recognized metadata keys (KeyQuery, KeyExpandedQueries, ...) are type-checked by
// Metadata.Validate at the coordinator boundary; other keys pass through unchanged.
package agent
