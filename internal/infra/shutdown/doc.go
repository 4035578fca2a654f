// Package shutdown coordinates graceful termination of rafter-node.
//
// Components register named hooks as they start; on SIGINT, SIGTERM or
// context cancellation the hooks run in reverse registration order under a
// shared deadline, so the last component started is the first one stopped.
//
//	h := shutdown.NewHandler(10*time.Second, logger)
//	h.OnShutdown("mesh", func(context.Context) error { return srv.Close() })
//	return h.Wait(ctx)
package shutdown
