// Package transcription defines the interface boundary to the external
// AI service used for audio transcription and semantic analysis,
// following the hexagonal architecture pattern. Implementations live
// under internal/platform.
package transcription
