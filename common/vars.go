package common

var (
	// Version is overridden at build time with -ldflags "-X ...common.Version=<tag>".
	Version = "dev"

	// PackageName is used as the metrics namespace.
	PackageName = "data_exchange_registry"
)
