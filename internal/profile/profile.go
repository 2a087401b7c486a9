package profile

import "time"

// Profile is the persisted per-user record. The store is its only writer;
// everyone else treats it as a read-only value.
type Profile struct {
	UserID                  string                  `json:"user_id"`
	Name                    string                  `json:"name,omitempty"`
	Role                    string                  `json:"role,omitempty"`
	BasicInformation        BasicInformation        `json:"basic_information"`
	CognitiveProfile        CognitiveProfile        `json:"cognitive_profile"`
	CommunicationGuidelines CommunicationGuidelines `json:"communication_guidelines"`
	RelationshipToAI        RelationshipToAI        `json:"relationship_to_ai"`
	MemoryContextIndex      MemoryContextIndex      `json:"memory_context_index"`
	SystemMetadata          SystemMetadata          `json:"system_metadata"`
}

// BasicInformation holds free-form display attributes.
type BasicInformation struct {
	PlatformID string `json:"platform_id,omitempty"`
	Age        string `json:"age,omitempty"`
	Location   string `json:"location,omitempty"`
}

// CognitiveProfile carries hints for prompt rendering.
type CognitiveProfile struct {
	CognitiveStyle string   `json:"cognitive_style,omitempty"`
	KeyTraits      []string `json:"key_traits,omitempty"`
}

// CommunicationGuidelines carry tone hints for prompt rendering.
type CommunicationGuidelines struct {
	Tone      string `json:"tone,omitempty"`
	Avoid     string `json:"avoid,omitempty"`
	Emphasize string `json:"emphasize,omitempty"`
}

// RelationshipToAI describes what the user expects from the assistant.
type RelationshipToAI struct {
	Role               string `json:"role,omitempty"`
	Expectation        string `json:"expectation,omitempty"`
	CommunicationStyle string `json:"communication_style,omitempty"`
}

// MemoryContextIndex is the rolling context-line index. Invariant:
// len(ContextLines) == TotalMemories; append-only in normal operation.
type MemoryContextIndex struct {
	TotalMemories int      `json:"total_memories"`
	ContextLines  []string `json:"context_lines"`
}

// SystemMetadata tracks bookkeeping stamps.
type SystemMetadata struct {
	CreatedDate         string  `json:"created_date"`
	LastUpdated         string  `json:"last_updated"`
	InteractionCount    int     `json:"interaction_count"`
	ProfileCompleteness float64 `json:"profile_completeness"`
	TrustLevel          float64 `json:"trust_level"`
}

// Summary is the compact per-user memory overview.
type Summary struct {
	UserID      string   `json:"user_id"`
	HasProfile  bool     `json:"has_profile"`
	MemoryCount int      `json:"memory_count"`
	MemoryTypes []string `json:"memory_types"`
	LastUpdated string   `json:"last_updated,omitempty"`
}

// defaultProfile synthesises a fresh profile from the default template.
// It is persisted lazily, on the first mutation.
func defaultProfile(userID string, now time.Time) *Profile {
	stamp := now.Format(time.RFC3339)
	return &Profile{
		UserID: userID,
		Name:   "Unknown",
		Role:   "User",
		BasicInformation: BasicInformation{
			PlatformID: userID,
			Age:        "Unknown",
		},
		CognitiveProfile: CognitiveProfile{
			CognitiveStyle: "Standard",
		},
		CommunicationGuidelines: CommunicationGuidelines{
			Tone:      "Professional",
			Avoid:     "Condescension",
			Emphasize: "Respect",
		},
		RelationshipToAI: RelationshipToAI{
			Role:               "User",
			Expectation:        "Standard assistance",
			CommunicationStyle: "Standard",
		},
		MemoryContextIndex: MemoryContextIndex{
			TotalMemories: 0,
			ContextLines:  []string{},
		},
		SystemMetadata: SystemMetadata{
			CreatedDate: stamp,
			LastUpdated: stamp,
		},
	}
}
