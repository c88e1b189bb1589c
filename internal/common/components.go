package common

const (
	ComponentRPCClient    = "rpc-client"
	ComponentRangeFetcher = "range-fetcher"
	ComponentLogStore     = "log-store"
	ComponentHolders      = "holders"
	ComponentCLI          = "cli"
)

var AllComponents = map[string]struct{}{
	ComponentRPCClient:    {},
	ComponentRangeFetcher: {},
	ComponentLogStore:     {},
	ComponentHolders:      {},
	ComponentCLI:          {},
}
