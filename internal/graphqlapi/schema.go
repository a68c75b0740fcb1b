// Package graphqlapi serves the Indexer mode GraphQL wire protocol of
// spec.md §6: the getLogEvents/getNetworkHistoricalSync/getEthLogs/getEthBlock
// queries and the onNewHistoricalCheckpoint/onHistoricalSyncComplete/
// onNewRealtimeCheckpoint/onNewFinalityCheckpoint/onReorg subscriptions that
// internal/rpcclient.RemoteIndexerClient consumes as a Watcher-mode transport.
//
// Grounded on go-ethereum's own graphql package (same library choice,
// graph-gophers/graphql-go, schema-first with struct-method resolvers, no
// codegen step) and the teacher's pkg/api HTTP server shape (mux + layered
// middleware), generalized from REST to one POST endpoint plus a websocket
// subscription endpoint.
package graphqlapi

import (
	_ "embed"

	"github.com/graph-gophers/graphql-go"
)

//go:embed schema.graphql
var schemaSDL string

// ParseSchema parses the embedded SDL against root, failing fast on any
// mismatch between the schema and the resolver's method set.
func ParseSchema(root any) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaSDL, root, graphql.UseFieldAliases())
}
