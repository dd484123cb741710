package service

import (
	"fmt"

	"go.uber.org/zap"
)

// LoopDetector is an AgentLoop safety-net hook: it watches the stream of
// tool calls for two patterns of unproductive repetition and, rather than
// terminating the run, returns a reflection prompt to inject into the
// conversation so the model can self-correct.
//
//  1. Name-only: the same tool name dominates the sliding window,
//     regardless of arguments (catches e.g. bash called repeatedly with
//     different commands that are all failing the same way).
//  2. Exact-match: the same tool name and arguments repeat consecutively
//     (catches a call that cannot produce a different result).
type LoopDetector struct {
	windowSize    int
	threshold     int // consecutive identical calls to trigger reflection
	nameThreshold int // same tool name within the window to trigger reflection

	recentCalls []string
	nameHistory []string

	logger *zap.Logger
}

// NewLoopDetector builds a LoopDetector. windowSize bounds both sliding
// windows; threshold/nameThreshold are the trigger counts for the
// exact-match and name-only strategies respectively.
func NewLoopDetector(windowSize, threshold, nameThreshold int, logger *zap.Logger) *LoopDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LoopDetector{
		windowSize:    windowSize,
		threshold:     threshold,
		nameThreshold: nameThreshold,
		recentCalls:   make([]string, 0, windowSize),
		nameHistory:   make([]string, 0, windowSize),
		logger:        logger,
	}
}

// RecordName tracks tool-name frequency in the sliding window and returns
// a reflection prompt once toolName accounts for nameThreshold or more of
// the last windowSize calls.
func (d *LoopDetector) RecordName(toolName string) string {
	d.nameHistory = append(d.nameHistory, toolName)
	if len(d.nameHistory) > d.windowSize {
		d.nameHistory = d.nameHistory[1:]
	}

	count := 0
	for _, name := range d.nameHistory {
		if name == toolName {
			count++
		}
	}

	if count >= d.nameThreshold {
		d.logger.Warn("tool name dominates sliding window",
			zap.String("tool", toolName),
			zap.Int("count", count),
			zap.Int("window", len(d.nameHistory)),
		)
		return fmt.Sprintf(
			"[system] Tool %q has been called %d times in the last %d calls. "+
				"You are likely stuck in a retry loop. Stop calling tools and "+
				"explain to the user what you were attempting, what went wrong, "+
				"and what you recommend instead.",
			toolName, count, len(d.nameHistory),
		)
	}
	return ""
}

// Record tracks exact name+argsFingerprint signatures and returns a
// reflection prompt once the same signature repeats threshold times
// consecutively.
func (d *LoopDetector) Record(toolName, argsFingerprint string) string {
	sig := toolName
	if argsFingerprint != "" {
		sig = toolName + "|" + argsFingerprint
	}

	d.recentCalls = append(d.recentCalls, sig)
	if len(d.recentCalls) > d.windowSize {
		d.recentCalls = d.recentCalls[1:]
	}
	if len(d.recentCalls) < d.threshold {
		return ""
	}

	tail := d.recentCalls[len(d.recentCalls)-d.threshold:]
	for _, s := range tail {
		if s != tail[0] {
			return ""
		}
	}

	d.logger.Warn("exact tool call loop detected",
		zap.String("signature", sig),
		zap.Int("consecutive", d.threshold),
	)
	return fmt.Sprintf(
		"[system] Tool %q was called %d times in a row with identical "+
			"arguments; the result will not change. Stop repeating the call — "+
			"try a different approach or report the result to the user.",
		toolName, d.threshold,
	)
}
