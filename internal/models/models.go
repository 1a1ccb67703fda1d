// Package models defines the core data structures for PromptDeck.
//
// It includes prompts, packs, per-pack progress and delivered notices, which are
// shared across the engine, the notification scheduler and the stores.
package models

// PromptType defines how a prompt's content should be interpreted.
type PromptType string

const (
	// PromptTypeText is plain text content.
	PromptTypeText PromptType = "text"
	// PromptTypeLink is a link, optionally in markdown [label](url) form.
	PromptTypeLink PromptType = "link"
	// PromptTypeRichText is markdown content.
	PromptTypeRichText PromptType = "rich-text"
)

// IsValidPromptType checks if the given prompt type is supported.
func IsValidPromptType(pt PromptType) bool {
	switch pt {
	case PromptTypeText, PromptTypeLink, PromptTypeRichText:
		return true
	default:
		return false
	}
}

// PackType selects the strategy used to pick the next prompt of a pack.
type PackType string

const (
	// PackTypeSequential delivers prompts in order.
	PackTypeSequential PackType = "sequential"
	// PackTypeRandom delivers prompts at random without replacement within a cycle.
	PackTypeRandom PackType = "random"
	// PackTypeDateBased delivers the prompts dated for the current local day.
	PackTypeDateBased PackType = "date"
)

// IsValidPackType checks if the given pack type is supported.
func IsValidPackType(pt PackType) bool {
	switch pt {
	case PackTypeSequential, PackTypeRandom, PackTypeDateBased:
		return true
	default:
		return false
	}
}

// DeliveryChannel selects how notices for a pack reach the user.
type DeliveryChannel string

const (
	// ChannelNative pushes notices through an external transport and needs permission.
	ChannelNative DeliveryChannel = "native"
	// ChannelInApp keeps notices in the in-process feed.
	ChannelInApp DeliveryChannel = "in-app"
)

// IsValidChannel checks if the given delivery channel is supported.
func IsValidChannel(c DeliveryChannel) bool {
	return c == ChannelNative || c == ChannelInApp
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}
