package preflight

// Version is the release of the preflight module and binary.
const Version = "0.3.0"
