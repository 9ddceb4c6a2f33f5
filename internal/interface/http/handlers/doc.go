// Package handlers holds the HTTP building blocks shared by the API
// server: health checks and the middleware its routes compose.
//
// # Health Checks
//
// The HealthChecker interface runs multiple named checks in parallel:
//
//	checker := handlers.NewCompositeHealthChecker("v1.0.0")
//	checker.AddCheck("database", handlers.NewDatabaseCheck(db))
//	checker.AddCheck("cache", handlers.NewCacheCheck(cache))
//	checker.AddCheck("results_api", handlers.NewExternalAPICheck(resultsClient))
//
//	status := checker.Check(ctx)
//
// # Middleware
//
// Moderation routes authenticate by API key; board reads set short
// cache-control headers on top of the Redis board cache:
//
//	auth := handlers.NewAPIKeyAuth("X-API-Key", []string{"secret-key"})
//	protected := auth.Middleware(verifyHandler)
//
//	handler := handlers.ChainHandler(
//	    boardHandler,
//	    handlers.SecurityHeadersMiddleware,
//	    handlers.RequestSizeLimitMiddleware(1<<20),
//	)
package handlers
