package config

// Version is the build version, overridden at link time.
var Version = "0.3.0"
