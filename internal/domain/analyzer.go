package domain

import "context"

// AnalysisDepth selects the prompt template for an analysis call. The
// catalog is a fixed mapping, not data-driven.
type AnalysisDepth string

const (
	DepthTranscript AnalysisDepth = "transcript" // verbatim transcription only
	DepthBrief      AnalysisDepth = "brief"      // short summary
	DepthFull       AnalysisDepth = "full"       // transcription plus summary
	DepthDetails    AnalysisDepth = "details"    // deepest breakdown, used by !details
	DepthActions    AnalysisDepth = "actions"    // action items only
	DepthTranslate  AnalysisDepth = "translate"  // translation of the audio
	DepthDescribe   AnalysisDepth = "describe"   // image description
	DepthContact    AnalysisDepth = "contact"    // contact extraction from an image
)

// Duration thresholds for unsolicited audio, in seconds.
const (
	briefThreshold = 30
	fullThreshold  = 120
)

// ClassifyByDuration maps an audio duration to the depth used when an
// audio file is analyzed without an explicit menu choice.
func ClassifyByDuration(seconds int) AnalysisDepth {
	switch {
	case seconds < briefThreshold:
		return DepthTranscript
	case seconds < fullThreshold:
		return DepthBrief
	default:
		return DepthFull
	}
}

// Analyzer is the boundary with the remote analysis engine. One call, one
// request/response exchange; no retry, no streaming.
type Analyzer interface {
	// Available reports whether the engine was configured with credentials.
	// Handlers must check this first and short-circuit with a fixed
	// configuration-error reply when false.
	Available() bool

	// Analyze runs the template selected by depth against the media and
	// returns the engine's text response. It fails when the engine was
	// never configured or the remote call errors; callers convert the
	// error to a user-facing message.
	Analyze(ctx context.Context, data []byte, mimeType string, depth AnalysisDepth) (string, error)
}
