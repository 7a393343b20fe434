/*
Package monitoring provides Prometheus metrics for the filtering agent.

It tracks the page pipeline (processed pages by disposition, bypasses),
remote classification calls (counts, outcomes, latency), registration
attempts, fingerprint generation, and the HTTP surface itself.

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
*/
package monitoring
