// Package syncbridge keeps a local record store and a RabbitMQ topic
// exchange fabric in agreement.
//
// Outbound, the Producer turns local mutations into XML change messages and
// fans them out to the downstream consumer exchanges. Inbound, the Drainer
// periodically empties the service's bound queues in bounded batches and
// applies each change to the local store idempotently. A shared reentrancy
// registry keeps applied inbound changes from being re-published as local
// mutations.
//
// Build a Service with NewService, call Producer and Registrar methods from
// application code, and run Service.Run in the background:
//
//	conf, err := syncbridge.ConfigFromEnv()
//	if err != nil {
//		log.Fatal(err)
//	}
//	logger := syncbridge.NewSlogServiceLogger(slog.New(slog.NewJSONHandler(os.Stdout, nil)))
//	svc := syncbridge.NewService(conf, logger, syncbridge.ServiceDependencies{})
//	defer svc.Close()
//	go svc.Run(ctx)
//
//	svc.Producer.OnProfileMutated(ctx, "42", previous, current)
package syncbridge
