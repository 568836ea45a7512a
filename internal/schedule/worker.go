package schedule

import (
	"github.com/rotisserie/eris"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

// Dial connects to the Temporal frontend.
func Dial(hostPort, namespace string) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  hostPort,
		Namespace: namespace,
		Logger:    NewLogger(zap.L()),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "schedule: dial temporal %s", hostPort)
	}
	return c, nil
}

// NewWorker registers the site check workflow and its activity on taskQueue.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflow(SiteCheckWorkflow)
	w.RegisterActivity(acts)
	return w
}
