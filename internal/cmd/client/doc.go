// Package client provides the `enrichd` command-line client.
//
// The CLI talks to the enrichd HTTP API to submit and manage enrichment
// batches from a terminal. It is primarily intended for developers and
// operators.
//
// # Address configuration
//
// The HTTP base URL is discovered by the application that embeds the
// commands via a BaseURLFunc. When using the standalone binary, it defaults
// to http://127.0.0.1:8080 and can be overridden with ENRICH_HTTP.
//
// Usage
//
//	enrichd batch submit --file contacts.json --priority 5 --timeout-ms 60000
//	enrichd batch enqueue --file contacts.json --batch weekly-refresh
//	enrichd batch status --batch weekly-refresh
//	enrichd batch wait --batch weekly-refresh --timeout-ms 120000
//	enrichd batch cancel --batch weekly-refresh
//	enrichd batch recent --limit 20
//	enrichd batch events --batch weekly-refresh
//	enrichd queue depth
//
// The contacts file holds a JSON array of contact identities:
//
//	[{"contactId":1,"firstName":"Ada","lastName":"Lovelace","companyDomain":"acme.test"}]
//
// Pass --file - to read the array from stdin. A CEL --filter expression over
// contact fields (contact_id, first_name, last_name, email, title,
// company_name, company_domain) limits which contacts get enqueued.
package client
