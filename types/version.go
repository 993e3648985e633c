package types

// Version is the canonical project version.
// The CLI, the transcript format, and the run-finished event all report
// this version (lockstep versioning).
const Version = "0.3.0"
