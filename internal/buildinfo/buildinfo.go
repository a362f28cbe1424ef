package buildinfo

// Version is stamped at release time via -ldflags.
var Version = "dev"
