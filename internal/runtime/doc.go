// Package runtime wires storage, config, providers, and the enrichment
// pipeline into a single-node instance. It exposes Open/Close, basic health
// checks, and helpers to open the components used by the HTTP surface.
//
// Example:
//
//	cfg := config.Default()
//	rt, _ := runtime.Open(runtime.Options{DataDir: "./data", Config: cfg})
//	defer rt.Close()
//	p, _ := rt.OpenPipeline("email_enrichment")
//	res, _ := p.SubmitBatch(ctx, contacts, pipeline.SubmitOptions{})
package runtime
