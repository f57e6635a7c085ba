// Package health provides liveness and readiness endpoints for the
// long-running `mercator-export run` process.
//
// # Checks
//
// Components register checks with a Checker:
//
//	checker := health.New(5 * time.Second)
//	checker.RegisterCriticalCheck("store", health.PingCheck(st))
//	checker.RegisterCheck("sink:siem", health.PingCheck(amqpSink))
//	checker.RegisterCheck("spool", health.DirCheck(cfg.Spool.Dir))
//	checker.RegisterCheck("scheduler", health.RunningCheck("scheduler", sched.Running))
//
// Readiness runs all checks concurrently, each under its own timeout. A
// failing critical check reports "unhealthy" and a 503; any other failure
// reports "degraded" with a 200, since exports to healthy sinks still run.
//
// # Endpoints
//
// Mount registers the handlers at the configured paths, by default:
//
//	GET /health   liveness, always 200 while the process serves HTTP
//	GET /ready    readiness, aggregated component checks
//	GET /version  build information
package health
