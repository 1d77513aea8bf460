// Package opensearch is the OpenSearch engine driver. It wraps the official
// github.com/opensearch-project/opensearch-go/v2 client and adds a declarative
// Config, a cluster Healthcheck and an implementation of entityrepo.Engine.
//
// The client is thread-safe, so a single Engine can serve every repository.
// Connection problems surface as ErrConnectionFailed and ErrHealthcheckFailed;
// any other non-2xx response is a *ResponseError wrapped in *entityrepo.Error.
//
// # Usage
//
//	dial := opensearch.NewDialer(l, opensearch.Config{
//	    Addresses: []string{"https://localhost:9200"},
//	    Username:  "admin",
//	    Password:  "admin",
//	})
//	manager, err := connection.Register(ctx, dial, connection.WithLogger(l))
//
// # Filters
//
// Filters are query DSL objects (map[string]any or json.RawMessage). A plain
// string is sent as a query_string query and nil matches all documents.
//
// # Limits
//
// OpenSearch rejects windows where from+size exceeds index.max_result_window
// (10,000 by default). The driver does not validate this bound.
package opensearch
